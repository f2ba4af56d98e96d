package models

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RolePlayer Role = "player"
	RoleNPC    Role = "npc"
)

// Valid reports whether the role is one of the known variants.
func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleNPC
}

// Turn is one message in a conversation at a fixed position.
// Turns are append-only: for a given session, TurnIndex values are
// contiguous non-negative integers starting at 0, and each appended pair
// is player at an even index followed by npc at the next index.
type Turn struct {
	SessionID string    `json:"sessionId"`
	TurnIndex int       `json:"turnIndex"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
