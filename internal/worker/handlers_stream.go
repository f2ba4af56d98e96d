package worker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/parley-labs/parley/internal/config"
	"github.com/parley-labs/parley/internal/engine"
	"github.com/parley-labs/parley/internal/stream"
)

// generateContext derives a request context bounded by the configured
// generation timeout. The request context carries client disconnects
// through to the backend call. The timeout goes through config.Get so a
// settings reload applies to the next request without a restart.
func (s *Service) generateContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), config.Get().GenerateTimeout())
}

// handleAppendTurnStream runs one exchange over the framed event stream:
// token frames while the backend generates, then exactly one terminal
// frame. Only a malformed request body gets a plain HTTP status; once
// the stream headers go out the response is committed as 200 and every
// failure is reported as an error frame.
func (s *Service) handleAppendTurnStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req appendTurnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", engine.ErrValidation, err))
		return
	}

	ctx, cancel := s.generateContext(r)
	defer cancel()

	stream.PrepareHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	sw := stream.NewWriter(w)

	res, err := s.engine.AppendPlayerTurnStream(ctx, sessionID, req.PlayerMessage, req.flags(), sw.Token)
	if err != nil {
		if ctx.Err() != nil {
			// Client went away; nothing was committed and nobody is
			// reading the error frame.
			log.Debug().Str("session_id", sessionID).Msg("Stream abandoned by client")
			return
		}
		if werr := sw.Error(err.Error()); werr != nil {
			log.Warn().Err(werr).Str("session_id", sessionID).Msg("Write error frame failed")
		}
		return
	}

	final := stream.FinalEvent{
		SessionID:       res.SessionID,
		PlayerTurnIndex: res.PlayerTurnIndex,
		NPCTurnIndex:    res.NPCTurnIndex,
		Response:        res.Response,
		RawBackendText:  res.Raw,
	}
	if res.Checkpoints.SummaryDue || res.Checkpoints.AssessmentDue {
		cps := res.Checkpoints
		final.AnalysisDue = &cps
	}
	if err := sw.Final(final); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Write final frame failed")
	}
}
