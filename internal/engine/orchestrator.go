package engine

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/parley-labs/parley/internal/checkpoint"
	"github.com/parley-labs/parley/internal/llm"
	"github.com/parley-labs/parley/pkg/models"
)

// AppendFlags are the caller-supplied modifiers for one append.
type AppendFlags struct {
	ForceSummary    bool
	ForceAssessment bool
	// AllowAutoEnd overrides the session's flag for this turn when set.
	AllowAutoEnd *bool
	// Locale overrides the session's locale for this turn when set.
	Locale string
}

// AppendResult is the outcome of one committed exchange.
type AppendResult struct {
	SessionID       string                   `json:"sessionId"`
	PlayerTurnIndex int                      `json:"playerTurnIndex"`
	NPCTurnIndex    int                      `json:"npcTurnIndex"`
	Response        models.StructuredPayload `json:"response"`
	Checkpoints     checkpoint.Checkpoints   `json:"checkpoints"`
	Raw             string                   `json:"-"`
}

// AppendPlayerTurn runs one buffered exchange: generate the NPC reply,
// then commit the turn pair, analysis record, and session status in one
// transaction.
func (e *Engine) AppendPlayerTurn(ctx context.Context, sessionID, message string, flags AppendFlags) (*AppendResult, error) {
	return e.appendTurn(ctx, sessionID, message, flags, nil)
}

// AppendPlayerTurnStream is AppendPlayerTurn with incremental reply
// fragments delivered through onToken while the backend generates. If
// the caller disconnects mid-generation the context cancels, generation
// is abandoned, and nothing is committed.
func (e *Engine) AppendPlayerTurnStream(ctx context.Context, sessionID, message string, flags AppendFlags, onToken func(string) error) (*AppendResult, error) {
	if onToken == nil {
		onToken = func(string) error { return nil }
	}
	return e.appendTurn(ctx, sessionID, message, flags, onToken)
}

func (e *Engine) appendTurn(ctx context.Context, sessionID, message string, flags AppendFlags, onToken func(string) error) (*AppendResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, validationErr("playerMessage must not be empty")
	}

	release, ok := e.locks.TryAcquire(sessionID)
	if !ok {
		return nil, conflictf("append already in flight for session %s", sessionID)
	}
	defer release()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Complete() {
		return nil, conflictf("session %s is complete, no further turns accepted", sessionID)
	}

	turns, err := e.turns.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	playerCount := 0
	lastIndex := -1
	for _, t := range turns {
		if t.Role == models.RolePlayer {
			playerCount++
		}
		lastIndex = t.TurnIndex
	}

	cps := checkpoint.Schedule(playerCount+1, flags.ForceSummary, flags.ForceAssessment)
	tc := e.turnContext(sess, turns, message, cps, flags)

	var result *llm.TurnResult
	if onToken != nil {
		result, err = e.backend.StreamTurn(ctx, tc, onToken)
	} else {
		result, err = e.backend.GenerateTurn(ctx, tc)
	}
	if err != nil {
		return nil, upstreamErr(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	playerIdx := lastIndex + 1
	npcIdx := lastIndex + 2
	payload := result.Payload

	err = e.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := e.turns.AppendPairTx(tx,
			models.Turn{SessionID: sessionID, TurnIndex: playerIdx, Role: models.RolePlayer, Content: message},
			models.Turn{SessionID: sessionID, TurnIndex: npcIdx, Role: models.RoleNPC, Content: payload.NPCReply},
		); err != nil {
			return err
		}
		if err := e.analysis.UpsertTx(tx, analysisRecord(sessionID, cps, payload, result.Raw)); err != nil {
			return err
		}
		return e.sessions.UpdateTx(tx, sessionID, statusPatch(payload))
	})
	if err != nil {
		return nil, err
	}

	if payload.ConversationComplete && !cps.AssessmentDue {
		e.cascadeFinalize(ctx, sessionID, payload.ConversationCompleteReason, tc.Locale)
	}

	return &AppendResult{
		SessionID:       sessionID,
		PlayerTurnIndex: playerIdx,
		NPCTurnIndex:    npcIdx,
		Response:        payload,
		Checkpoints:     cps,
		Raw:             result.Raw,
	}, nil
}

func (e *Engine) turnContext(sess *models.Session, turns []models.Turn, message string, cps checkpoint.Checkpoints, flags AppendFlags) llm.TurnContext {
	allowAutoEnd := sess.AllowAutoEnd
	if flags.AllowAutoEnd != nil {
		allowAutoEnd = *flags.AllowAutoEnd
	}
	locale := sess.Locale
	if flags.Locale != "" {
		locale = flags.Locale
	}
	return llm.TurnContext{
		Session:       sess,
		Turns:         turns,
		PlayerMessage: message,
		Checkpoints:   cps,
		AllowAutoEnd:  allowAutoEnd,
		Locale:        locale,
	}
}

// analysisRecord maps one exchange's payload onto the checkpoint row
// keyed by (sessionID, playerTurnCount).
func analysisRecord(sessionID string, cps checkpoint.Checkpoints, payload models.StructuredPayload, raw string) *models.AnalysisRecord {
	rec := &models.AnalysisRecord{
		SessionID:                  sessionID,
		PlayerTurnCount:            cps.TotalPlayerTurns,
		SummaryDue:                 cps.SummaryDue,
		AssessmentDue:              cps.AssessmentDue,
		NPCReply:                   payload.NPCReply,
		Summary:                    payload.Summary,
		Score:                      payload.Score,
		FinalReport:                payload.FinalReport,
		SafetyAlerts:               payload.SafetyAlerts,
		ConversationComplete:       payload.ConversationComplete,
		ConversationCompleteReason: payload.ConversationCompleteReason,
		RawBackendResponse:         raw,
	}
	if payload.FinalReport != nil {
		if b, err := json.Marshal(payload.FinalReport); err == nil {
			rec.FinalReportRaw = string(b)
		}
	}
	return rec
}

// statusPatch carries the payload's denormalized fields onto the session.
func statusPatch(payload models.StructuredPayload) models.SessionPatch {
	patch := models.SessionPatch{}
	if payload.Summary != nil && payload.Summary.RiskLevel != "" {
		patch.LastRiskLevel = &payload.Summary.RiskLevel
	}
	if payload.Score != nil {
		patch.LastScore = payload.Score
	}
	if payload.ConversationComplete {
		now := time.Now()
		patch.CompletedAt = &now
		reason := payload.ConversationCompleteReason
		if reason == "" {
			reason = "conversation complete"
		}
		patch.CompletionReason = &reason
	}
	return patch
}

// cascadeFinalize requests the final report after a completing turn that
// carried no assessment. The turn pair is already committed, so a report
// failure is logged rather than failing the append.
func (e *Engine) cascadeFinalize(ctx context.Context, sessionID, reason, locale string) {
	_, err := e.Finalize(ctx, sessionID, FinalizeOptions{
		CompletionReason: reason,
		Locale:           locale,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("final report cascade failed")
	}
}
