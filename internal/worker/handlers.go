package worker

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parley-labs/parley/internal/engine"
	"github.com/parley-labs/parley/pkg/models"
)

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.store.Ping(); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"ready":   s.ready.Load(),
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

type createSessionRequest struct {
	Scenario     models.Scenario   `json:"scenario"`
	NPC          models.NPCProfile `json:"npc"`
	Locale       string            `json:"locale"`
	AllowAutoEnd bool              `json:"allowAutoEnd"`
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", engine.ErrValidation, err))
		return
	}
	if req.Scenario.Title == "" || req.NPC.Name == "" {
		writeError(w, fmt.Errorf("%w: scenario and npc are required", engine.ErrValidation))
		return
	}

	sess := &models.Session{
		Scenario:     req.Scenario,
		NPC:          req.NPC,
		Locale:       req.Locale,
		AllowAutoEnd: req.AllowAutoEnd,
	}
	if err := s.engine.Sessions().Create(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.engine.Sessions().Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	turns, err := s.engine.Turns().List(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	playerTurns, err := s.engine.Turns().PlayerTurnCount(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":         sess,
		"turns":           turns,
		"playerTurnCount": playerTurns,
	})
}

const defaultSessionListLimit = 50

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", engine.ErrValidation))
			return
		}
		limit = n
	}

	sessions, err := s.engine.Sessions().List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

type appendTurnRequest struct {
	PlayerMessage   string `json:"playerMessage"`
	ForceSummary    bool   `json:"forceSummary"`
	ForceAssessment bool   `json:"forceAssessment"`
	AllowAutoEnd    *bool  `json:"allowAutoEnd"`
	Locale          string `json:"locale"`
}

func (r appendTurnRequest) flags() engine.AppendFlags {
	return engine.AppendFlags{
		ForceSummary:    r.ForceSummary,
		ForceAssessment: r.ForceAssessment,
		AllowAutoEnd:    r.AllowAutoEnd,
		Locale:          r.Locale,
	}
}

func (s *Service) handleAppendTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req appendTurnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", engine.ErrValidation, err))
		return
	}

	ctx, cancel := s.generateContext(r)
	defer cancel()

	res, err := s.engine.AppendPlayerTurn(ctx, sessionID, req.PlayerMessage, req.flags())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type analyzeRequest struct {
	Force        bool   `json:"force"`
	AllowAutoEnd *bool  `json:"allowAutoEnd"`
	Locale       string `json:"locale"`
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req analyzeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", engine.ErrValidation, err))
		return
	}

	ctx, cancel := s.generateContext(r)
	defer cancel()

	res, err := s.engine.Analyze(ctx, sessionID, engine.AnalyzeOptions{
		Force:        req.Force,
		AllowAutoEnd: req.AllowAutoEnd,
		Locale:       req.Locale,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type finalizeRequest struct {
	Force            bool   `json:"force"`
	CompletionReason string `json:"completionReason"`
	Locale           string `json:"locale"`
}

func (s *Service) handleFinalize(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req finalizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", engine.ErrValidation, err))
		return
	}

	ctx, cancel := s.generateContext(r)
	defer cancel()

	res, err := s.engine.Finalize(ctx, sessionID, engine.FinalizeOptions{
		Force:            req.Force,
		CompletionReason: req.CompletionReason,
		Locale:           req.Locale,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	idxParam := r.URL.Query().Get("npcTurnIndex")
	if idxParam == "" {
		writeError(w, fmt.Errorf("%w: npcTurnIndex query parameter required", engine.ErrValidation))
		return
	}
	npcTurnIndex, err := strconv.Atoi(idxParam)
	if err != nil {
		writeError(w, fmt.Errorf("%w: npcTurnIndex must be an integer", engine.ErrValidation))
		return
	}

	ctx, cancel := s.generateContext(r)
	defer cancel()

	res, err := s.engine.Suggest(ctx, sessionID, npcTurnIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type capsuleRequest struct {
	ExpiryDays int `json:"expiryDays"`
}

func (s *Service) handleCreateCapsule(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req capsuleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", engine.ErrValidation, err))
		return
	}

	ctx, cancel := s.generateContext(r)
	defer cancel()

	capsule, err := s.engine.CreateCapsule(ctx, sessionID, req.ExpiryDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, capsule)
}

func (s *Service) handleGetCapsule(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	capsule, err := s.engine.LatestCapsule(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, capsule)
}

// handleSharedCapsule resolves a share link. Expired links 404.
func (s *Service) handleSharedCapsule(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "shareToken")

	capsule, err := s.engine.CapsuleByToken(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, capsule)
}

func (s *Service) handleSnippets(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	ctx, cancel := s.generateContext(r)
	defer cancel()

	snippets, err := s.engine.Snippets(ctx, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snippets": snippets})
}
