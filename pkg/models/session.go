// Package models contains domain models for parley.
package models

import "time"

// Scenario describes the situation a session drops the learner into.
type Scenario struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Setting            string      `json:"setting"`
	LearningObjectives StringArray `json:"learningObjectives,omitempty"`
	SupportingFacts    StringArray `json:"supportingFacts,omitempty"`
	TensionLevel       string      `json:"tensionLevel,omitempty"`
}

// NPCProfile describes the scripted character the learner talks to.
type NPCProfile struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Role       string      `json:"role"`
	Persona    string      `json:"persona"`
	Goals      StringArray `json:"goals,omitempty"`
	Tactics    StringArray `json:"tactics,omitempty"`
	Boundaries StringArray `json:"boundaries,omitempty"`
}

// Session is one simulated conversation instance with its configuration
// and denormalized status fields.
type Session struct {
	ID               string     `json:"id"`
	Scenario         Scenario   `json:"scenario"`
	NPC              NPCProfile `json:"npc"`
	Locale           string     `json:"locale"`
	AllowAutoEnd     bool       `json:"allowAutoEnd"`
	LastRiskLevel    string     `json:"lastRiskLevel,omitempty"`
	LastScore        *int       `json:"lastScore,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	CompletionReason string     `json:"completionReason,omitempty"`
}

// Complete reports whether the session has been closed to further turns.
func (s *Session) Complete() bool {
	return s.CompletedAt != nil
}

// SessionPatch carries the denormalized fields Update is allowed to merge.
// Nil fields are left untouched.
type SessionPatch struct {
	Locale           *string
	AllowAutoEnd     *bool
	LastRiskLevel    *string
	LastScore        *int
	CompletedAt      *time.Time
	CompletionReason *string
}
