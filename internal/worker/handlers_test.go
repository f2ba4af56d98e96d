package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/parley-labs/parley/internal/config"
	db "github.com/parley-labs/parley/internal/db/gorm"
	"github.com/parley-labs/parley/internal/engine"
	"github.com/parley-labs/parley/internal/llm"
	"github.com/parley-labs/parley/internal/stream"
	"github.com/parley-labs/parley/pkg/models"
)

// scriptedBackend is a fixed-output Generator for handler tests.
type scriptedBackend struct {
	payload models.StructuredPayload
	chunks  []string
}

func (b *scriptedBackend) result() (*llm.TurnResult, error) {
	raw, _ := json.Marshal(b.payload)
	return &llm.TurnResult{Payload: b.payload, Raw: string(raw)}, nil
}

func (b *scriptedBackend) GenerateTurn(ctx context.Context, tc llm.TurnContext) (*llm.TurnResult, error) {
	return b.result()
}

func (b *scriptedBackend) StreamTurn(ctx context.Context, tc llm.TurnContext, onToken func(string) error) (*llm.TurnResult, error) {
	for _, chunk := range b.chunks {
		if err := onToken(chunk); err != nil {
			return nil, err
		}
	}
	return b.result()
}

func (b *scriptedBackend) GenerateAnalysis(ctx context.Context, tc llm.TurnContext) (*llm.TurnResult, error) {
	return b.result()
}

func (b *scriptedBackend) GenerateReport(ctx context.Context, rc llm.ReportContext) (*llm.ReportResult, error) {
	raw := `{"overallAssessment":"steady improvement","strengths":["stayed calm"]}`
	var report models.FinalReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, err
	}
	return &llm.ReportResult{Report: report, Raw: raw}, nil
}

func (b *scriptedBackend) GenerateCapsule(ctx context.Context, cc llm.CapsuleContext) (*llm.CapsuleResult, error) {
	return &llm.CapsuleResult{NarrativeSummary: "A difficult conversation, handled."}, nil
}

func (b *scriptedBackend) SuggestQuestions(ctx context.Context, tc llm.TurnContext) (*models.Suggestions, error) {
	return &models.Suggestions{Positive: "Ask what happened.", Negative: "Assign blame."}, nil
}

func (b *scriptedBackend) GenerateSnippets(ctx context.Context, cc llm.CapsuleContext) ([]models.Snippet, error) {
	return []models.Snippet{{TurnIndex: 1, Annotation: "deflection", ImpactReason: "avoided the question"}}, nil
}

// testService creates a Service over a temp database and scripted backend.
func testService(t *testing.T, backend llm.Generator) (*Service, *db.Store) {
	t.Helper()

	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	eng := engine.New(engine.Options{
		Store:         store,
		Backend:       backend,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	svc := New(cfg, store, eng, "test-version")
	svc.ready.Store(true)
	return svc, store
}

func doJSON(t *testing.T, svc *Service, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	return rec
}

func createTestSession(t *testing.T, svc *Service) string {
	t.Helper()

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions", createSessionRequest{
		Scenario: models.Scenario{ID: "scn-1", Title: "Hostile Handoff", Setting: "Shift change."},
		NPC:      models.NPCProfile{ID: "npc-1", Name: "Mara", Role: "charge nurse", Persona: "defensive"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sess models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.ID)
	return sess.ID
}

func TestHandleHealth(t *testing.T) {
	svc, _ := testService(t, &scriptedBackend{})

	rec := doJSON(t, svc, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "test-version", body["version"])
}

func TestHandleCreateAndGetSession(t *testing.T) {
	svc, _ := testService(t, &scriptedBackend{})
	id := createTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Session         models.Session `json:"session"`
		Turns           []models.Turn  `json:"turns"`
		PlayerTurnCount int            `json:"playerTurnCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id, body.Session.ID)
	assert.Equal(t, "Hostile Handoff", body.Session.Scenario.Title)
	assert.Empty(t, body.Turns)
	assert.Zero(t, body.PlayerTurnCount)

	rec = doJSON(t, svc, http.MethodGet, "/api/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCreateSessionValidation(t *testing.T) {
	svc, _ := testService(t, &scriptedBackend{})

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions", createSessionRequest{
		Scenario: models.Scenario{Title: "No NPC"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAppendTurn(t *testing.T) {
	backend := &scriptedBackend{payload: models.StructuredPayload{NPCReply: "What do you want?"}}
	svc, _ := testService(t, backend)
	id := createTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{
		PlayerMessage: "I need the handoff notes.",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res engine.AppendResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, id, res.SessionID)
	assert.Equal(t, 0, res.PlayerTurnIndex)
	assert.Equal(t, 1, res.NPCTurnIndex)
	assert.Equal(t, "What do you want?", res.Response.NPCReply)

	rec = doJSON(t, svc, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		PlayerTurnCount int `json:"playerTurnCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, 1, detail.PlayerTurnCount)

	// Empty message is rejected before any backend call.
	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/unknown/turns", appendTurnRequest{
		PlayerMessage: "Hello?",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAppendTurnCheckpointCadence(t *testing.T) {
	backend := &scriptedBackend{payload: models.StructuredPayload{NPCReply: "Hm."}}
	svc, store := testService(t, backend)
	id := createTestSession(t, svc)

	var last engine.AppendResult
	for i := 1; i <= 3; i++ {
		rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{
			PlayerMessage: fmt.Sprintf("message %d", i),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &last))

		if i < 3 {
			assert.False(t, last.Checkpoints.SummaryDue, "turn %d", i)
			assert.False(t, last.Checkpoints.AssessmentDue, "turn %d", i)
		}
	}

	assert.Equal(t, 3, last.Checkpoints.TotalPlayerTurns)
	assert.True(t, last.Checkpoints.SummaryDue)
	assert.True(t, last.Checkpoints.AssessmentDue)

	rec, err := db.NewAnalysisStore(store).Get(context.Background(), id, 3)
	require.NoError(t, err)
	assert.True(t, rec.SummaryDue)
	assert.Equal(t, 3, rec.PlayerTurnCount)
}

func TestHandleAppendTurnToCompletedSession(t *testing.T) {
	backend := &scriptedBackend{payload: models.StructuredPayload{
		NPCReply:             "Goodbye.",
		ConversationComplete: true,
	}}
	svc, _ := testService(t, backend)
	id := createTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{PlayerMessage: "Bye."})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{PlayerMessage: "Wait."})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleAppendTurnStream(t *testing.T) {
	backend := &scriptedBackend{
		payload: models.StructuredPayload{NPCReply: "They're in the chart."},
		chunks:  []string{"They're ", "in the ", "chart."},
	}
	svc, _ := testService(t, backend)
	id := createTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns/stream", appendTurnRequest{
		PlayerMessage: "Where are the notes?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, stream.ContentType, rec.Header().Get("Content-Type"))

	dec := stream.NewDecoder()
	events := dec.Feed(rec.Body.Bytes())
	require.NoError(t, dec.Close())

	var tokens []string
	var final *stream.FinalEvent
	for _, ev := range events {
		switch ev.Kind {
		case stream.EventToken:
			tokens = append(tokens, ev.Token.Content)
		case stream.EventFinal:
			final = ev.Final
		}
	}
	assert.Equal(t, []string{"They're ", "in the ", "chart."}, tokens)
	require.NotNil(t, final, "stream must end with a final frame")
	assert.Equal(t, id, final.SessionID)
	assert.Equal(t, 0, final.PlayerTurnIndex)
	assert.Equal(t, 1, final.NPCTurnIndex)
	assert.Equal(t, "They're in the chart.", final.Response.NPCReply)
}

func TestHandleAppendTurnStreamError(t *testing.T) {
	svc, _ := testService(t, &scriptedBackend{})
	id := createTestSession(t, svc)

	// Empty message fails before any token, as an error frame.
	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns/stream", appendTurnRequest{})
	require.Equal(t, http.StatusOK, rec.Code)

	dec := stream.NewDecoder()
	events := dec.Feed(rec.Body.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventError, events[0].Kind)
	assert.Contains(t, events[0].Error.Message, "playerMessage")
}

func TestGenerateTimeoutFollowsReload(t *testing.T) {
	svc, _ := testService(t, &scriptedBackend{})

	// Restore the cached settings for later tests once HOME is back.
	t.Cleanup(func() { _, _ = config.Reload() })
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, config.EnsureDataDir())

	writeTimeout := func(secs int) {
		data := []byte(fmt.Sprintf("generateTimeoutSecs: %d\n", secs))
		require.NoError(t, os.WriteFile(config.ConfigPath(), data, 0o644))
		_, err := config.Reload()
		require.NoError(t, err)
	}

	remaining := func() float64 {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
		ctx, cancel := svc.generateContext(req)
		defer cancel()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		return time.Until(deadline).Seconds()
	}

	writeTimeout(7)
	assert.InDelta(t, 7, remaining(), 1.0)

	writeTimeout(42)
	assert.InDelta(t, 42, remaining(), 1.0)
}

func TestHandleAnalyzeSkip(t *testing.T) {
	backend := &scriptedBackend{payload: models.StructuredPayload{NPCReply: "Hm."}}
	svc, _ := testService(t, backend)
	id := createTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{PlayerMessage: "First."})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/analyze", analyzeRequest{})
	require.Equal(t, http.StatusOK, rec.Code)

	var res engine.AnalyzeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Skipped)
	assert.Equal(t, 1, res.Checkpoints.TotalPlayerTurns)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/analyze", analyzeRequest{Force: true})
	require.Equal(t, http.StatusOK, rec.Code)
	res = engine.AnalyzeResult{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Skipped)
	require.NotNil(t, res.Response)
}

func TestHandleFinalizeAndCapsule(t *testing.T) {
	backend := &scriptedBackend{payload: models.StructuredPayload{NPCReply: "Hm."}}
	svc, _ := testService(t, backend)
	id := createTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{PlayerMessage: "First."})
	require.Equal(t, http.StatusOK, rec.Code)

	// Capsule before finalize fails the precondition.
	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/capsule", capsuleRequest{ExpiryDays: 7})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/finalize", finalizeRequest{CompletionReason: "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fin engine.FinalizeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fin))
	assert.Equal(t, "steady improvement", fin.Report.OverallAssessment)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/capsule", capsuleRequest{ExpiryDays: 7})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var capsule models.Capsule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &capsule))
	assert.True(t, strings.HasPrefix(capsule.ShareURL, svc.config.PublicBaseURL+"/s/"), capsule.ShareURL)
	assert.NotEmpty(t, capsule.NarrativeSummary)
}

func TestHandleCapsuleShareLink(t *testing.T) {
	backend := &scriptedBackend{payload: models.StructuredPayload{NPCReply: "Hm."}}
	svc, store := testService(t, backend)
	id := createTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodGet, "/api/sessions/"+id+"/capsule", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no capsule yet")

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{PlayerMessage: "First."})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/finalize", finalizeRequest{CompletionReason: "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/capsule", capsuleRequest{ExpiryDays: 7})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Capsule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, svc, http.MethodGet, "/api/sessions/"+id+"/capsule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var latest models.Capsule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, created.ShareURL, latest.ShareURL)

	token := created.ShareURL[strings.LastIndex(created.ShareURL, "/")+1:]
	require.NotEmpty(t, token)

	rec = doJSON(t, svc, http.MethodGet, "/s/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var shared models.Capsule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shared))
	assert.Equal(t, id, shared.SessionID)
	assert.NotEmpty(t, shared.NarrativeSummary)

	rec = doJSON(t, svc, http.MethodGet, "/s/tok-unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// An expired capsule reads as missing.
	expired := &db.CapsuleRow{
		SessionID:        id,
		ShareToken:       "tok-expired",
		NarrativeSummary: "stale",
		ExpiresAtEpoch:   time.Now().Add(-time.Hour).UnixMilli(),
	}
	require.NoError(t, db.NewCapsuleStore(store).Create(context.Background(), expired))
	rec = doJSON(t, svc, http.MethodGet, "/s/tok-expired", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListSessions(t *testing.T) {
	svc, _ := testService(t, &scriptedBackend{})

	rec := doJSON(t, svc, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []models.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Sessions)

	createTestSession(t, svc)
	createTestSession(t, svc)

	rec = doJSON(t, svc, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Sessions, 2)

	rec = doJSON(t, svc, http.MethodGet, "/api/sessions?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Sessions, 1)

	rec = doJSON(t, svc, http.MethodGet, "/api/sessions?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSuggestions(t *testing.T) {
	backend := &scriptedBackend{payload: models.StructuredPayload{NPCReply: "Hm."}}
	svc, _ := testService(t, backend)
	id := createTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodGet, "/api/sessions/"+id+"/suggestions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing npcTurnIndex")

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{PlayerMessage: "First."})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, svc, http.MethodGet, "/api/sessions/"+id+"/suggestions?npcTurnIndex=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res engine.SuggestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.NPCTurnIndex)
	assert.Equal(t, "Ask what happened.", res.Suggestions.Positive)

	rec = doJSON(t, svc, http.MethodGet, "/api/sessions/"+id+"/suggestions?npcTurnIndex=5", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "stale index")
}

func TestHandleSnippets(t *testing.T) {
	backend := &scriptedBackend{payload: models.StructuredPayload{NPCReply: "They're in the chart."}}
	svc, _ := testService(t, backend)
	id := createTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/turns", appendTurnRequest{PlayerMessage: "Where?"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, svc, http.MethodGet, "/api/sessions/"+id+"/snippets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Snippets []models.Snippet `json:"snippets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Snippets, 1)
	assert.Equal(t, "They're in the chart.", body.Snippets[0].Content)
	assert.Equal(t, models.RoleNPC, body.Snippets[0].Role)
}
