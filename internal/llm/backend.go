package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/parley-labs/parley/pkg/models"
)

// Backend implements Generator over a low-level completion Client.
type Backend struct {
	client Client
}

// NewBackend wraps a completion client.
func NewBackend(client Client) *Backend {
	return &Backend{client: client}
}

// GenerateTurn runs one buffered exchange. It first requests strict
// structured output; if the backend rejects that request mode it retries
// once without the constraint and parses the free-form reply leniently.
func (b *Backend) GenerateTurn(ctx context.Context, tc TurnContext) (*TurnResult, error) {
	raw, err := b.completeStructured(ctx, turnSystemPrompt, BuildTurnPrompt(tc), turnPayloadSchema())
	if err != nil {
		return nil, err
	}
	return parseTurnResult(raw, true)
}

// GenerateAnalysis requests a checkpoint assessment without a new NPC
// reply.
func (b *Backend) GenerateAnalysis(ctx context.Context, tc TurnContext) (*TurnResult, error) {
	raw, err := b.completeStructured(ctx, turnSystemPrompt, BuildAnalysisPrompt(tc), turnPayloadSchema())
	if err != nil {
		return nil, err
	}
	return parseTurnResult(raw, false)
}

// StreamTurn runs one exchange relaying NPC reply fragments through
// onToken as they are generated, then parses the accumulated text into
// the terminal payload.
func (b *Backend) StreamTurn(ctx context.Context, tc TurnContext, onToken func(string) error) (*TurnResult, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	contentChan, errorChan := b.client.CompleteStream(streamCtx, turnSystemPrompt, BuildTurnPrompt(tc))

	var full strings.Builder
	extractor := &replyExtractor{}

	for chunk := range contentChan {
		full.WriteString(chunk)
		if delta := extractor.feed(chunk); delta != "" {
			if err := onToken(delta); err != nil {
				cancel()
				// Drain so the producer goroutine can exit.
				for range contentChan {
				}
				<-errorChan
				return nil, fmt.Errorf("token sink: %w", err)
			}
		}
	}
	if err := <-errorChan; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}

	return parseTurnResult(full.String(), true)
}

// ErrUpstreamFailure reports a transport-level backend failure (as
// opposed to an unparsable reply).
var ErrUpstreamFailure = errors.New("generation backend failure")

// GenerateReport requests the final report. The returned Raw is the
// canonical JSON that callers cache for idempotent reads.
func (b *Backend) GenerateReport(ctx context.Context, rc ReportContext) (*ReportResult, error) {
	raw, err := b.completeStructured(ctx, reportSystemPrompt, BuildReportPrompt(rc), reportSchema())
	if err != nil {
		return nil, err
	}

	doc, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in report reply", ErrUnparsable)
	}
	var report models.FinalReport
	if err := json.Unmarshal([]byte(doc), &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if report.OverallAssessment == "" {
		return nil, fmt.Errorf("%w: report missing overallAssessment", ErrUnparsable)
	}
	return &ReportResult{Report: report, Raw: doc}, nil
}

// GenerateCapsule requests the shareable summary content.
func (b *Backend) GenerateCapsule(ctx context.Context, cc CapsuleContext) (*CapsuleResult, error) {
	raw, err := b.completeStructured(ctx, capsuleSystemPrompt, BuildCapsulePrompt(cc), capsuleSchema())
	if err != nil {
		return nil, err
	}

	doc, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in capsule reply", ErrUnparsable)
	}
	var result CapsuleResult
	if err := json.Unmarshal([]byte(doc), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if result.NarrativeSummary == "" {
		return nil, fmt.Errorf("%w: capsule missing narrativeSummary", ErrUnparsable)
	}
	return &result, nil
}

// SuggestQuestions requests two candidate learner follow-ups.
func (b *Backend) SuggestQuestions(ctx context.Context, tc TurnContext) (*models.Suggestions, error) {
	raw, err := b.completeStructured(ctx, capsuleSystemPrompt, BuildSuggestionsPrompt(tc), suggestionsSchema())
	if err != nil {
		return nil, err
	}

	doc, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in suggestions reply", ErrUnparsable)
	}
	var suggestions models.Suggestions
	if err := json.Unmarshal([]byte(doc), &suggestions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return &suggestions, nil
}

// GenerateSnippets requests annotated turn excerpts; content is filled
// in from the actual turn log afterwards by the caller.
func (b *Backend) GenerateSnippets(ctx context.Context, cc CapsuleContext) ([]models.Snippet, error) {
	raw, err := b.completeStructured(ctx, capsuleSystemPrompt, BuildSnippetsPrompt(cc), snippetsSchema())
	if err != nil {
		return nil, err
	}

	doc, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in snippets reply", ErrUnparsable)
	}
	var wrapper struct {
		Snippets []models.Snippet `json:"snippets"`
	}
	if err := json.Unmarshal([]byte(doc), &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return wrapper.Snippets, nil
}

// completeStructured is the capability-negotiation core: strict
// structured output first, one lenient retry only when the backend
// rejected the request mode itself.
func (b *Backend) completeStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]interface{}) (string, error) {
	raw, err := b.client.CompleteWithSchema(ctx, systemPrompt, userPrompt, schema)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, ErrSchemaNotSupported) {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}

	log.Debug().Msg("Backend rejected structured output, retrying without schema")
	raw, err = b.client.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	return raw, nil
}

// parseTurnResult parses a backend reply (strict or free-form) into the
// structured payload. requireReply enforces a non-empty npcReply.
func parseTurnResult(raw string, requireReply bool) (*TurnResult, error) {
	doc, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrUnparsable)
	}
	var payload models.StructuredPayload
	if err := json.Unmarshal([]byte(doc), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if requireReply && payload.NPCReply == "" {
		return nil, fmt.Errorf("%w: reply missing npcReply", ErrUnparsable)
	}
	return &TurnResult{Payload: payload, Raw: raw}, nil
}
