package engine

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	db "github.com/parley-labs/parley/internal/db/gorm"
	"github.com/parley-labs/parley/internal/llm"
	"github.com/parley-labs/parley/pkg/models"
)

// FinalizeOptions are the caller-supplied modifiers for final-report
// generation.
type FinalizeOptions struct {
	// Force regenerates the report even when one is already cached.
	Force            bool
	CompletionReason string
	Locale           string
}

// FinalizeResult carries the final report. Raw is the canonical JSON
// document; repeated calls without Force return it byte-identically.
type FinalizeResult struct {
	SessionID string             `json:"sessionId"`
	Report    models.FinalReport `json:"report"`
	Raw       string             `json:"-"`
	Cached    bool               `json:"cached,omitempty"`
}

// Finalize produces the end-of-session report. A cached report is
// returned as-is unless Force; otherwise the backend generates one,
// which is written to the latest analysis record, and the session is
// marked complete.
func (e *Engine) Finalize(ctx context.Context, sessionID string, opts FinalizeOptions) (*FinalizeResult, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !opts.Force {
		rec, err := e.analysis.LatestReport(ctx, sessionID)
		if err == nil {
			return &FinalizeResult{
				SessionID: sessionID,
				Report:    *rec.FinalReport,
				Raw:       rec.FinalReportRaw,
				Cached:    true,
			}, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
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

	locale := sess.Locale
	if opts.Locale != "" {
		locale = opts.Locale
	}
	reason := opts.CompletionReason
	if reason == "" {
		reason = sess.CompletionReason
	}
	if reason == "" {
		reason = "finalized by caller"
	}

	// The latest checkpoint summary gives the report prompt its context.
	var latestSummary *models.Summary
	latestCount := playerCount
	if rec, err := e.analysis.Latest(ctx, sessionID); err == nil {
		latestSummary = rec.Summary
		latestCount = rec.PlayerTurnCount
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	result, err := e.backend.GenerateReport(ctx, llm.ReportContext{
		Session:          sess,
		Turns:            turns,
		LatestSummary:    latestSummary,
		CompletionReason: reason,
		Locale:           locale,
	})
	if err != nil {
		return nil, upstreamErr(err)
	}

	err = e.store.Transaction(ctx, func(tx *gorm.DB) error {
		rec := &models.AnalysisRecord{
			SessionID:       sessionID,
			PlayerTurnCount: latestCount,
			AssessmentDue:   true,
			Summary:         latestSummary,
			FinalReport:     &result.Report,
			FinalReportRaw:  result.Raw,
		}
		if prev, err := e.analysis.Latest(ctx, sessionID); err == nil && prev.PlayerTurnCount == latestCount {
			// Preserve the checkpoint's own fields when overwriting its row.
			rec.SummaryDue = prev.SummaryDue
			rec.NPCReply = prev.NPCReply
			rec.Score = prev.Score
			rec.SafetyAlerts = prev.SafetyAlerts
			rec.ConversationComplete = prev.ConversationComplete
			rec.ConversationCompleteReason = prev.ConversationCompleteReason
			rec.RawBackendResponse = prev.RawBackendResponse
		}
		if err := e.analysis.UpsertTx(tx, rec); err != nil {
			return err
		}

		patch := models.SessionPatch{CompletionReason: &reason}
		if !sess.Complete() {
			now := time.Now()
			patch.CompletedAt = &now
		}
		return e.sessions.UpdateTx(tx, sessionID, patch)
	})
	if err != nil {
		return nil, err
	}

	return &FinalizeResult{
		SessionID: sessionID,
		Report:    result.Report,
		Raw:       result.Raw,
	}, nil
}
