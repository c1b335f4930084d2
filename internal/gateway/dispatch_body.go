package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// dispatchPayload is the resolved set of /dispatch parameters, regardless of
// whether the request arrived as JSON or as a raw text/markdown body with
// parameters supplied via query string and X-EDI-* headers.
type dispatchPayload struct {
	Agent              string `json:"agent"`
	Message            string `json:"message"`
	ThreadID           string `json:"threadId"`
	Timeout            int    `json:"timeout"`
	TimeoutSeconds     int    `json:"timeoutSeconds"`
	Workdir            string `json:"workdir"`
	CallbackSessionKey string `json:"callbackSessionKey"`
}

// resolvedTimeout returns timeoutSeconds when given, else timeout; both
// spellings are accepted from JSON bodies, query string, and headers alike.
func (p dispatchPayload) resolvedTimeout() int {
	if p.TimeoutSeconds > 0 {
		return p.TimeoutSeconds
	}
	return p.Timeout
}

// isRawBodyContentType reports whether contentType names a plain-text or
// markdown body, in which case the whole body is the dispatch message and
// every other parameter must come from the query string or headers.
func isRawBodyContentType(contentType string) bool {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "text/plain", "text/markdown", "text/x-markdown":
		return true
	default:
		return false
	}
}

// resolveDispatchPayload parses the request body into a dispatchPayload,
// merging in query string and header overrides for raw-body requests. Query
// string parameters take precedence over the matching X-EDI-* header, since
// they are the more specific, per-request override.
func resolveDispatchPayload(r *http.Request, body []byte) (dispatchPayload, error) {
	var payload dispatchPayload

	if isRawBodyContentType(r.Header.Get("Content-Type")) {
		payload.Message = string(body)
	} else if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return dispatchPayload{}, err
		}
	}

	q := r.URL.Query()

	payload.Agent = firstNonEmpty(q.Get("agent"), r.Header.Get("X-EDI-Agent"), payload.Agent)
	payload.ThreadID = firstNonEmpty(q.Get("threadId"), q.Get("thread"), r.Header.Get("X-EDI-Thread"), payload.ThreadID)
	payload.Workdir = firstNonEmpty(q.Get("workdir"), r.Header.Get("X-EDI-Workdir"), payload.Workdir)
	payload.CallbackSessionKey = firstNonEmpty(q.Get("callbackSessionKey"), r.Header.Get("X-EDI-Callback-Session"), payload.CallbackSessionKey)

	if payload.resolvedTimeout() == 0 {
		if v := firstNonEmpty(q.Get("timeoutSeconds"), q.Get("timeout"), r.Header.Get("X-EDI-Timeout")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				payload.Timeout = n
			}
		}
	}

	return payload, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
