package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiTextResponse(text string) string {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewGeminiClient(GeminiConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
	require.NoError(t, err)
	return client, srv
}

// The request path is <base>/models/<model>:generateContent; the base
// must already carry the API version, matching the client's own default.
func TestGeminiRequestPathComposition(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, geminiTextResponse("ok"))
	}))
	t.Cleanup(srv.Close)

	client, err := NewGeminiClient(GeminiConfig{
		BaseURL: srv.URL + "/v1beta",
		APIKey:  "test-key",
		Model:   "gemini-2.0-flash",
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", gotPath)
}

func TestGeminiComplete(t *testing.T) {
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "test-model:generateContent")

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Empty(t, req.GenerationConfig.ResponseMimeType)

		fmt.Fprint(w, geminiTextResponse("plain reply"))
	})

	got, err := client.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "plain reply", got)
}

func TestGeminiCompleteWithSchema(t *testing.T) {
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		assert.NotNil(t, req.GenerationConfig.ResponseSchema)

		fmt.Fprint(w, geminiTextResponse(`{"npcReply":"hi"}`))
	})

	got, err := client.CompleteWithSchema(context.Background(), "system", "user", turnPayloadSchema())
	require.NoError(t, err)
	assert.Equal(t, `{"npcReply":"hi"}`, got)
}

// A 400 naming the schema fields is the capability signal, not a generic
// failure.
func TestGeminiSchemaRejection(t *testing.T) {
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Unknown field responseSchema for GenerationConfig"}}`)
	})

	_, err := client.CompleteWithSchema(context.Background(), "system", "user", turnPayloadSchema())
	require.ErrorIs(t, err, ErrSchemaNotSupported)
}

func TestGeminiBadRequestWithoutSchemaMarker(t *testing.T) {
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid argument"}}`)
	})

	_, err := client.CompleteWithSchema(context.Background(), "system", "user", turnPayloadSchema())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchemaNotSupported)
}

func TestGeminiRetryOnRateLimit(t *testing.T) {
	calls := 0
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, geminiTextResponse("after retry"))
	})

	got, err := client.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "after retry", got)
	assert.Equal(t, 2, calls)
}

func TestGeminiCompleteStream(t *testing.T) {
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "alt=sse")
		w.Header().Set("Content-Type", "text/event-stream")

		flusher := w.(http.Flusher)
		for _, text := range []string{"Hel", "lo ", "world"} {
			fmt.Fprintf(w, "data: %s\n\n", geminiTextResponse(text))
			flusher.Flush()
		}
	})

	contentChan, errorChan := client.CompleteStream(context.Background(), "system", "user")

	var parts []string
	for chunk := range contentChan {
		parts = append(parts, chunk)
	}
	require.NoError(t, <-errorChan)
	assert.Equal(t, "Hello world", strings.Join(parts, ""))
}

func TestGeminiStreamAPIError(t *testing.T) {
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"quota exhausted\"}}\n\n")
	})

	contentChan, errorChan := client.CompleteStream(context.Background(), "system", "user")
	for range contentChan {
	}
	err := <-errorChan
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(GeminiConfig{})
	require.Error(t, err)
}
