package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/parley-labs/parley/internal/checkpoint"
	"github.com/parley-labs/parley/pkg/models"
)

// SuggestResult carries the advisor's follow-up candidates tagged with
// the NPC turn they respond to, so consumers can drop stale entries.
type SuggestResult struct {
	SessionID    string             `json:"sessionId"`
	NPCTurnIndex int                `json:"npcTurnIndex"`
	Suggestions  models.Suggestions `json:"suggestions"`
}

// Suggest produces two candidate learner follow-ups for the NPC turn at
// npcTurnIndex. Best-effort: backend failures come back as an empty
// result, never as an error. A request for an index that is no longer
// the latest NPC turn is rejected as stale, and a request while an
// append is in flight conflicts rather than racing the turn log.
func (e *Engine) Suggest(ctx context.Context, sessionID string, npcTurnIndex int) (*SuggestResult, error) {
	release, ok := e.locks.TryAcquireShared(sessionID)
	if !ok {
		return nil, conflictf("append already in flight for session %s", sessionID)
	}
	defer release()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	latest, err := e.turns.LatestNPCTurnIndex(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if latest < 0 {
		return nil, validationErr("session has no npc turns yet")
	}
	if npcTurnIndex != latest {
		return nil, conflictf("npcTurnIndex %d is stale, latest is %d", npcTurnIndex, latest)
	}

	key := fmt.Sprintf("%s/%d", sessionID, npcTurnIndex)
	v, err, _ := e.suggestGroup.Do(key, func() (interface{}, error) {
		turns, err := e.turns.List(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		suggestions, err := e.backend.SuggestQuestions(ctx, e.turnContext(sess, turns, "",
			checkpoint.Checkpoints{}, AppendFlags{}))
		if err != nil {
			log.Debug().Err(err).Str("session_id", sessionID).Int("npc_turn_index", npcTurnIndex).
				Msg("suggestion generation failed, returning empty")
			return models.Suggestions{}, nil
		}
		return *suggestions, nil
	})
	if err != nil {
		return nil, err
	}

	return &SuggestResult{
		SessionID:    sessionID,
		NPCTurnIndex: npcTurnIndex,
		Suggestions:  v.(models.Suggestions),
	}, nil
}
