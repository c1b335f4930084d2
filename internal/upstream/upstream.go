// Package upstream implements the gateway's outbound client to the agent
// hooks/tools gateway it dispatches into: a small bearer-token JSON POST
// client with a fixed response envelope and error normalization, mirroring
// the teacher's createHTTPClient-with-timeout pattern used for its own
// inter-service calls.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SessionNamespace is the constant prefix applied to client-supplied session
// keys before they are sent upstream.
const SessionNamespace = "agent:main:"

// DefaultCallTimeout bounds every outbound call made through Client.
const DefaultCallTimeout = 15 * time.Second

// Client talks to the upstream agent gateway's hooks and tool-invocation
// endpoints using two independent bearer tokens.
type Client struct {
	baseURL      string
	hooksToken   string
	gatewayToken string
	http         *http.Client
}

// New builds a Client against baseURL using the given tokens. A zero timeout
// falls back to DefaultCallTimeout.
func New(baseURL, hooksToken, gatewayToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{
		baseURL:      baseURL,
		hooksToken:   hooksToken,
		gatewayToken: gatewayToken,
		http:         &http.Client{Timeout: timeout},
	}
}

// Result is the normalized {ok, ...} shape every upstream call reduces to.
// Transport errors and non-2xx responses are folded into Ok=false with an
// Error message, so callers only ever need to branch on Ok.
type Result struct {
	Ok      bool
	Error   string
	Payload map[string]any
}

func (c *Client) post(ctx context.Context, path, token string, body map[string]any) Result {
	data, err := json.Marshal(body)
	if err != nil {
		return Result{Error: fmt.Sprintf("encoding request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return Result{Error: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Error: fmt.Sprintf("contacting upstream: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Error: fmt.Sprintf("upstream returned status %d: %s", resp.StatusCode, string(respBody))}
	}

	var payload map[string]any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return Result{Error: fmt.Sprintf("parsing upstream response: %v", err)}
		}
	}
	return Result{Ok: true, Payload: payload}
}

// QualifySessionKey prefixes a client-supplied session key with the
// namespace upstream expects, unless it is already namespaced.
func QualifySessionKey(sessionKey string) string {
	if sessionKey == "" {
		return sessionKey
	}
	const genericPrefix = "agent:"
	if len(sessionKey) >= len(genericPrefix) && sessionKey[:len(genericPrefix)] == genericPrefix {
		return sessionKey
	}
	return SessionNamespace + sessionKey
}

// TriggerAgentHook creates a new upstream session for sessionKey, delivering
// message as the initial wake-up prompt.
func (c *Client) TriggerAgentHook(ctx context.Context, sessionKey, message string, timeoutSeconds int) Result {
	return c.post(ctx, "/hooks/agent", c.hooksToken, map[string]any{
		"message":        message,
		"sessionKey":     sessionKey,
		"name":           "EDI-CLI",
		"wakeMode":       "now",
		"deliver":        false,
		"timeoutSeconds": timeoutSeconds,
	})
}

// SessionHistory fetches the recent turns of an existing upstream session.
func (c *Client) SessionHistory(ctx context.Context, sessionKey string, limit int) Result {
	return c.post(ctx, "/tools/invoke", c.gatewayToken, map[string]any{
		"tool": "sessions_history",
		"args": map[string]any{
			"sessionKey":  QualifySessionKey(sessionKey),
			"limit":       limit,
			"includeTools": false,
		},
	})
}

// ContinueSession posts a synchronous message into an existing upstream
// session and waits for the tool-invocation response (which carries the
// reply inline, unlike the fire-and-forget callback path).
func (c *Client) ContinueSession(ctx context.Context, sessionKey, message string, timeoutSeconds int) Result {
	return c.post(ctx, "/tools/invoke", c.gatewayToken, map[string]any{
		"tool": "sessions_send",
		"args": map[string]any{
			"sessionKey":     QualifySessionKey(sessionKey),
			"message":        message,
			"timeoutSeconds": timeoutSeconds,
		},
	})
}

// SendCallback posts a result notification into an existing upstream
// session. The dispatch supervisor waits for the response but only logs a
// failure; it never changes the task's status.
func (c *Client) SendCallback(ctx context.Context, sessionKey, message string, timeoutSeconds int) Result {
	return c.post(ctx, "/tools/invoke", c.gatewayToken, map[string]any{
		"tool": "sessions_send",
		"args": map[string]any{
			"sessionKey":     QualifySessionKey(sessionKey),
			"message":        message,
			"timeoutSeconds": timeoutSeconds,
		},
	})
}

// ExtractReply pulls the assistant reply out of a sessions_send result
// envelope (details.reply).
func ExtractReply(result Result) (string, bool) {
	if !result.Ok {
		return "", false
	}
	details, ok := digField(result.Payload, "result", "details")
	if !ok {
		return "", false
	}
	reply, ok := details["reply"].(string)
	return reply, ok
}

// ExtractLastAssistantReply scans a sessions_history result envelope in
// reverse for the most recent assistant message and returns its text.
func ExtractLastAssistantReply(result Result) (string, bool) {
	if !result.Ok {
		return "", false
	}
	details, ok := digField(result.Payload, "result", "details")
	if !ok {
		return "", false
	}
	messages, ok := details["messages"].([]any)
	if !ok {
		return "", false
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok || msg["role"] != "assistant" {
			continue
		}
		if text, ok := extractContentText(msg["content"]); ok {
			return text, true
		}
	}
	return "", false
}

func extractContentText(content any) (string, bool) {
	switch c := content.(type) {
	case string:
		return c, true
	case []any:
		var parts []string
		for _, block := range c {
			m, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if m["type"] == "text" {
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		joined := ""
		for i, p := range parts {
			if i > 0 {
				joined += "\n"
			}
			joined += p
		}
		return joined, true
	default:
		return "", false
	}
}

func digField(payload map[string]any, keys ...string) (map[string]any, bool) {
	cur := payload
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
