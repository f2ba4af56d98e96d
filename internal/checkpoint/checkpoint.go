// Package checkpoint decides when a conversation is due for a summary or
// assessment, measured in player turns.
package checkpoint

// SummaryInterval is the cadence, in player turns, at which checkpoint
// summaries come due.
const SummaryInterval = 3

// Checkpoints is the result of scheduling a single point in the
// conversation.
type Checkpoints struct {
	TotalPlayerTurns int  `json:"totalPlayerTurns"`
	SummaryDue       bool `json:"summaryDue"`
	AssessmentDue    bool `json:"assessmentDue"`
}

// Schedule computes whether a summary and/or assessment is due after
// playerTurns player turns. Assessment is a superset of summary: whenever
// a summary is due, an assessment is too.
func Schedule(playerTurns int, forceSummary, forceAssessment bool) Checkpoints {
	summaryDue := forceSummary || (playerTurns > 0 && playerTurns%SummaryInterval == 0)
	return Checkpoints{
		TotalPlayerTurns: playerTurns,
		SummaryDue:       summaryDue,
		AssessmentDue:    forceAssessment || summaryDue,
	}
}
