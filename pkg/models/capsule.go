package models

import "time"

// SuggestedScenario is one ranked follow-up scenario inside a capsule.
type SuggestedScenario struct {
	ScenarioID string `json:"scenarioId"`
	Title      string `json:"title"`
	Reason     string `json:"reason"`
}

// Capsule is a shareable, time-limited artifact summarizing a completed
// session for external viewing.
type Capsule struct {
	SessionID              string              `json:"sessionId"`
	ShareURL               string              `json:"shareUrl"`
	NarrativeSummary       string              `json:"narrativeSummary"`
	SuggestedNextScenarios []SuggestedScenario `json:"suggestedNextScenarios,omitempty"`
	ExpiresAt              time.Time           `json:"expiresAt"`
	CreatedAt              time.Time           `json:"createdAt"`
}

// Snippet is an annotated turn excerpt extracted from a conversation.
type Snippet struct {
	TurnIndex    int    `json:"turnIndex"`
	Role         Role   `json:"role"`
	Content      string `json:"content"`
	Annotation   string `json:"annotation"`
	ImpactReason string `json:"impactReason"`
}

// Suggestions holds the advisor's two candidate learner follow-ups: a
// constructive option and a deliberately counterproductive one.
type Suggestions struct {
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

// Empty reports whether the advisor produced nothing usable.
func (s Suggestions) Empty() bool {
	return s.Positive == "" && s.Negative == ""
}
