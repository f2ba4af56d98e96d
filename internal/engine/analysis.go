package engine

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/parley-labs/parley/internal/checkpoint"
	db "github.com/parley-labs/parley/internal/db/gorm"
	"github.com/parley-labs/parley/pkg/models"
)

// AnalyzeOptions are the caller-supplied modifiers for a standalone
// analysis pass.
type AnalyzeOptions struct {
	// Force requests the assessment even when no checkpoint is due.
	Force        bool
	AllowAutoEnd *bool
	Locale       string
}

// AnalyzeResult is either a committed assessment or a skip with its
// reason and the computed checkpoints.
type AnalyzeResult struct {
	SessionID   string                    `json:"sessionId"`
	Skipped     bool                      `json:"skipped,omitempty"`
	Reason      string                    `json:"reason,omitempty"`
	Checkpoints checkpoint.Checkpoints    `json:"checkpoints"`
	Response    *models.StructuredPayload `json:"response,omitempty"`
	Raw         string                    `json:"-"`
}

// Analyze recomputes the checkpoint flags from the turn log and, when a
// summary or assessment is due (or forced), asks the backend for one and
// commits the record without advancing the conversation.
func (e *Engine) Analyze(ctx context.Context, sessionID string, opts AnalyzeOptions) (*AnalyzeResult, error) {
	release, ok := e.locks.TryAcquire(sessionID)
	if !ok {
		return nil, conflictf("append already in flight for session %s", sessionID)
	}
	defer release()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turns, err := e.turns.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	playerCount := 0
	for _, t := range turns {
		if t.Role == models.RolePlayer {
			playerCount++
		}
	}

	cps := checkpoint.Schedule(playerCount, opts.Force, opts.Force)
	if !cps.SummaryDue && !cps.AssessmentDue {
		return &AnalyzeResult{
			SessionID:   sessionID,
			Skipped:     true,
			Reason:      "no checkpoint due",
			Checkpoints: cps,
		}, nil
	}

	tc := e.turnContext(sess, turns, "", cps, AppendFlags{
		AllowAutoEnd: opts.AllowAutoEnd,
		Locale:       opts.Locale,
	})
	result, err := e.backend.GenerateAnalysis(ctx, tc)
	if err != nil {
		return nil, upstreamErr(err)
	}
	payload := result.Payload

	err = e.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := e.analysis.UpsertTx(tx, analysisRecord(sessionID, cps, payload, result.Raw)); err != nil {
			return err
		}
		return e.sessions.UpdateTx(tx, sessionID, statusPatch(payload))
	})
	if err != nil {
		return nil, err
	}

	if payload.ConversationComplete {
		if _, err := e.analysis.LatestReport(ctx, sessionID); errors.Is(err, db.ErrNotFound) {
			e.cascadeFinalize(ctx, sessionID, payload.ConversationCompleteReason, tc.Locale)
		}
	}

	return &AnalyzeResult{
		SessionID:   sessionID,
		Checkpoints: cps,
		Response:    &payload,
		Raw:         result.Raw,
	}, nil
}
