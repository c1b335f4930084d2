package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newMockUpstream(t *testing.T, historyReply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Path {
		case "/hooks/agent":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"runId": "run-1"})
		case "/tools/invoke":
			tool, _ := body["tool"].(string)
			w.Header().Set("Content-Type", "application/json")
			switch tool {
			case "sessions_history":
				json.NewEncoder(w).Encode(map[string]any{
					"result": map[string]any{
						"details": map[string]any{
							"messages": []map[string]any{
								{"role": "user", "content": "hi"},
								{"role": "assistant", "content": historyReply},
							},
						},
					},
				})
			case "sessions_send":
				json.NewEncoder(w).Encode(map[string]any{
					"result": map[string]any{
						"details": map[string]any{"reply": historyReply},
					},
				})
			default:
				w.WriteHeader(http.StatusBadRequest)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func askRequestBody(t *testing.T, body map[string]any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleAsk_NewThreadPolls(t *testing.T) {
	upstream := newMockUpstream(t, "the answer")
	defer upstream.Close()

	gw := newTestGateway(t, upstream.URL)
	req := askRequestBody(t, map[string]any{"message": "what is the status"})
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "the answer")
}

func TestHandleAsk_Continuation(t *testing.T) {
	upstream := newMockUpstream(t, "continued answer")
	defer upstream.Close()

	gw := newTestGateway(t, upstream.URL)
	req := askRequestBody(t, map[string]any{"message": "and then?", "threadId": "existing-thread"})
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "continued answer")
}

func TestHandleAsk_RejectsMissingMessage(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := askRequestBody(t, map[string]any{})
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAsk_InvalidThreadID(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := askRequestBody(t, map[string]any{"message": "hi", "threadId": ".."})
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
