// Package llm talks to the generation backend that produces NPC replies
// and structured assessments. The engine consumes the Generator
// interface; Backend implements it over a low-level completion Client.
package llm

import (
	"context"
	"errors"

	"github.com/parley-labs/parley/internal/checkpoint"
	"github.com/parley-labs/parley/pkg/models"
)

// ErrSchemaNotSupported reports that the backend rejected the strict
// structured-output request mode. Only this failure triggers the lenient
// degrade retry; any other failure is surfaced as-is.
var ErrSchemaNotSupported = errors.New("schema validation not supported")

// ErrUnparsable reports that the backend's reply could not be parsed
// even after the degrade retry.
var ErrUnparsable = errors.New("backend reply unparsable")

// Client is the low-level completion transport.
type Client interface {
	// Complete sends a prompt without output-format constraints.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithSchema requests strict structured output. Returns
	// ErrSchemaNotSupported when the backend rejects the request mode.
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt string, schema map[string]interface{}) (string, error)
	// CompleteStream sends a prompt and returns incremental text
	// fragments. The error channel yields at most one error; both
	// channels are closed when generation ends.
	CompleteStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error)
}

// TurnContext carries everything the backend needs for one exchange.
type TurnContext struct {
	Session       *models.Session
	Turns         []models.Turn
	PlayerMessage string
	Checkpoints   checkpoint.Checkpoints
	AllowAutoEnd  bool
	Locale        string
}

// TurnResult is the parsed structured payload plus the raw backend text
// it was parsed from.
type TurnResult struct {
	Payload models.StructuredPayload
	Raw     string
}

// ReportContext carries the inputs for final-report generation.
type ReportContext struct {
	Session          *models.Session
	Turns            []models.Turn
	LatestSummary    *models.Summary
	CompletionReason string
	Locale           string
}

// ReportResult is the parsed final report plus its canonical raw JSON,
// which is what gets cached for idempotent reads.
type ReportResult struct {
	Report models.FinalReport
	Raw    string
}

// CapsuleContext carries the inputs for capsule generation.
type CapsuleContext struct {
	Session     *models.Session
	Turns       []models.Turn
	FinalReport *models.FinalReport
	Locale      string
}

// CapsuleResult is the generated shareable-summary content.
type CapsuleResult struct {
	NarrativeSummary       string                     `json:"narrativeSummary"`
	SuggestedNextScenarios []models.SuggestedScenario `json:"suggestedNextScenarios"`
}

// Generator is the backend surface the engine depends on.
type Generator interface {
	// GenerateTurn runs one buffered exchange.
	GenerateTurn(ctx context.Context, tc TurnContext) (*TurnResult, error)
	// StreamTurn runs one exchange, invoking onToken for each NPC reply
	// fragment as it is generated, and returns the terminal payload. A
	// non-nil error from onToken aborts generation.
	StreamTurn(ctx context.Context, tc TurnContext, onToken func(string) error) (*TurnResult, error)
	// GenerateAnalysis requests a checkpoint assessment without
	// advancing the conversation.
	GenerateAnalysis(ctx context.Context, tc TurnContext) (*TurnResult, error)
	// GenerateReport requests the final report.
	GenerateReport(ctx context.Context, rc ReportContext) (*ReportResult, error)
	// GenerateCapsule requests the shareable summary content.
	GenerateCapsule(ctx context.Context, cc CapsuleContext) (*CapsuleResult, error)
	// SuggestQuestions requests two candidate learner follow-ups.
	SuggestQuestions(ctx context.Context, tc TurnContext) (*models.Suggestions, error)
	// GenerateSnippets requests annotated turn excerpts.
	GenerateSnippets(ctx context.Context, cc CapsuleContext) ([]models.Snippet, error)
}
