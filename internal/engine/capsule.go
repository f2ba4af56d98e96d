package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	db "github.com/parley-labs/parley/internal/db/gorm"
	"github.com/parley-labs/parley/internal/llm"
	"github.com/parley-labs/parley/pkg/models"
)

// CreateCapsule produces the shareable summary for a completed session.
// The session must be complete and carry a final report.
func (e *Engine) CreateCapsule(ctx context.Context, sessionID string, expiryDays int) (*models.Capsule, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Complete() {
		return nil, preconditionf("session %s is not complete", sessionID)
	}

	rec, err := e.analysis.LatestReport(ctx, sessionID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, preconditionf("session %s has no final report", sessionID)
	}
	if err != nil {
		return nil, err
	}

	turns, err := e.turns.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := e.backend.GenerateCapsule(ctx, llm.CapsuleContext{
		Session:     sess,
		Turns:       turns,
		FinalReport: rec.FinalReport,
		Locale:      sess.Locale,
	})
	if err != nil {
		return nil, upstreamErr(err)
	}

	if expiryDays <= 0 {
		expiryDays = defaultCapsuleExpiryDays
	}
	token := uuid.NewString()
	expiresAt := time.Now().Add(time.Duration(expiryDays) * 24 * time.Hour)

	row := &db.CapsuleRow{
		SessionID:          sessionID,
		ShareToken:         token,
		NarrativeSummary:   result.NarrativeSummary,
		SuggestedScenarios: result.SuggestedNextScenarios,
		ExpiresAtEpoch:     expiresAt.UnixMilli(),
	}
	if err := e.capsules.Create(ctx, row); err != nil {
		return nil, err
	}

	return row.Capsule(e.shareURL(token)), nil
}

// CapsuleByToken resolves a share link. Expired capsules are
// indistinguishable from missing ones.
func (e *Engine) CapsuleByToken(ctx context.Context, token string) (*models.Capsule, error) {
	row, err := e.capsules.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if time.Now().UnixMilli() >= row.ExpiresAtEpoch {
		return nil, db.ErrNotFound
	}
	return row.Capsule(e.shareURL(row.ShareToken)), nil
}

// LatestCapsule returns the newest capsule for a session. An expired
// capsule reads as missing.
func (e *Engine) LatestCapsule(ctx context.Context, sessionID string) (*models.Capsule, error) {
	row, err := e.capsules.Latest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if time.Now().UnixMilli() >= row.ExpiresAtEpoch {
		return nil, db.ErrNotFound
	}
	return row.Capsule(e.shareURL(row.ShareToken)), nil
}

// Snippets extracts annotated turn excerpts. It works on any session
// with turns; a final report is included in the context when one exists.
func (e *Engine) Snippets(ctx context.Context, sessionID string) ([]models.Snippet, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turns, err := e.turns.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return []models.Snippet{}, nil
	}

	var report *models.FinalReport
	if rec, err := e.analysis.LatestReport(ctx, sessionID); err == nil {
		report = rec.FinalReport
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	raw, err := e.backend.GenerateSnippets(ctx, llm.CapsuleContext{
		Session:     sess,
		Turns:       turns,
		FinalReport: report,
		Locale:      sess.Locale,
	})
	if err != nil {
		return nil, upstreamErr(err)
	}

	// The turn log, not the backend, is authoritative for content and
	// role; only annotations come from the generation.
	snippets := make([]models.Snippet, 0, len(raw))
	for _, s := range raw {
		if s.TurnIndex < 0 || s.TurnIndex >= len(turns) {
			continue
		}
		turn := turns[s.TurnIndex]
		snippets = append(snippets, models.Snippet{
			TurnIndex:    turn.TurnIndex,
			Role:         turn.Role,
			Content:      turn.Content,
			Annotation:   s.Annotation,
			ImpactReason: s.ImpactReason,
		})
	}
	return snippets, nil
}

func (e *Engine) shareURL(token string) string {
	base := strings.TrimRight(e.publicBaseURL, "/")
	if base == "" {
		base = "http://localhost"
	}
	return base + "/s/" + token
}
