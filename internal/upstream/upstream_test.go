package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualifySessionKey(t *testing.T) {
	assert.Equal(t, "agent:main:thread-1", QualifySessionKey("thread-1"))
	assert.Equal(t, "agent:other:thread-1", QualifySessionKey("agent:other:thread-1"))
	assert.Equal(t, "", QualifySessionKey(""))
}

func TestTriggerAgentHook_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/hooks/agent", r.URL.Path)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "hello", body["message"])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"runId": "abc123"})
	}))
	defer srv.Close()

	c := New(srv.URL, "hooks-token", "gateway-token", 0)
	result := c.TriggerAgentHook(context.Background(), "github:repo:abc1234", "hello", 120)

	require.True(t, result.Ok)
	assert.Equal(t, "Bearer hooks-token", gotAuth)
	assert.Equal(t, "abc123", result.Payload["runId"])
}

func TestTriggerAgentHook_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, "h", "g", 0)
	result := c.TriggerAgentHook(context.Background(), "key", "msg", 10)

	assert.False(t, result.Ok)
	assert.Contains(t, result.Error, "500")
}

func TestTriggerAgentHook_TransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", "h", "g", 0)
	result := c.TriggerAgentHook(context.Background(), "key", "msg", 10)
	assert.False(t, result.Ok)
	assert.NotEmpty(t, result.Error)
}

func TestExtractReply(t *testing.T) {
	result := Result{Ok: true, Payload: map[string]any{
		"result": map[string]any{
			"details": map[string]any{"reply": "the answer"},
		},
	}}
	reply, ok := ExtractReply(result)
	assert.True(t, ok)
	assert.Equal(t, "the answer", reply)

	_, ok = ExtractReply(Result{Ok: false})
	assert.False(t, ok)
}

func TestExtractLastAssistantReply_StringContent(t *testing.T) {
	result := Result{Ok: true, Payload: map[string]any{
		"result": map[string]any{
			"details": map[string]any{
				"messages": []any{
					map[string]any{"role": "user", "content": "hi"},
					map[string]any{"role": "assistant", "content": "first reply"},
					map[string]any{"role": "assistant", "content": "latest reply"},
				},
			},
		},
	}}

	reply, ok := ExtractLastAssistantReply(result)
	require.True(t, ok)
	assert.Equal(t, "latest reply", reply)
}

func TestExtractLastAssistantReply_BlockContent(t *testing.T) {
	result := Result{Ok: true, Payload: map[string]any{
		"result": map[string]any{
			"details": map[string]any{
				"messages": []any{
					map[string]any{
						"role": "assistant",
						"content": []any{
							map[string]any{"type": "text", "text": "block reply"},
						},
					},
				},
			},
		},
	}}

	reply, ok := ExtractLastAssistantReply(result)
	require.True(t, ok)
	assert.Equal(t, "block reply", reply)
}

func TestExtractLastAssistantReply_NoAssistantMessage(t *testing.T) {
	result := Result{Ok: true, Payload: map[string]any{
		"result": map[string]any{
			"details": map[string]any{
				"messages": []any{
					map[string]any{"role": "user", "content": "hi"},
				},
			},
		},
	}}

	_, ok := ExtractLastAssistantReply(result)
	assert.False(t, ok)
}
