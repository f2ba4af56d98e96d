package models

import "time"

// Risk levels reported by checkpoint summaries.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Summary is the periodic checkpoint summary of the conversation so far.
type Summary struct {
	Text      string `json:"text"`
	RiskLevel string `json:"riskLevel,omitempty"`
}

// FinalReport is the end-of-session assessment.
type FinalReport struct {
	OverallAssessment   string      `json:"overallAssessment"`
	Strengths           StringArray `json:"strengths,omitempty"`
	AreasForGrowth      StringArray `json:"areasForGrowth,omitempty"`
	RecommendedPractice StringArray `json:"recommendedPractice,omitempty"`
}

// StructuredPayload is the generation backend's typed response for one
// conversational exchange: the NPC reply plus optional checkpoint data.
type StructuredPayload struct {
	NPCReply                   string       `json:"npcReply"`
	ConversationComplete       bool         `json:"conversationComplete"`
	ConversationCompleteReason string       `json:"conversationCompleteReason,omitempty"`
	Summary                    *Summary     `json:"summary,omitempty"`
	Score                      *int         `json:"score,omitempty"`
	FinalReport                *FinalReport `json:"finalReport,omitempty"`
	SafetyAlerts               StringArray  `json:"safetyAlerts,omitempty"`
}

// AnalysisRecord is the stored assessment state keyed by
// (sessionId, playerTurnCount). A later write for the same key replaces
// the earlier one.
type AnalysisRecord struct {
	SessionID                  string       `json:"sessionId"`
	PlayerTurnCount            int          `json:"playerTurnCount"`
	SummaryDue                 bool         `json:"summaryDue"`
	AssessmentDue              bool         `json:"assessmentDue"`
	NPCReply                   string       `json:"npcReply,omitempty"`
	Summary                    *Summary     `json:"summary,omitempty"`
	Score                      *int         `json:"score,omitempty"`
	FinalReport                *FinalReport `json:"finalReport,omitempty"`
	// FinalReportRaw is the canonical JSON the report was parsed from.
	// It is what gets returned on cached reads so repeated finalize
	// calls are byte-identical.
	FinalReportRaw             string      `json:"-"`
	SafetyAlerts               StringArray `json:"safetyAlerts,omitempty"`
	ConversationComplete       bool        `json:"conversationComplete"`
	ConversationCompleteReason string      `json:"conversationCompleteReason,omitempty"`
	RawBackendResponse         string      `json:"-"`
	CreatedAt                  time.Time   `json:"createdAt"`
}
