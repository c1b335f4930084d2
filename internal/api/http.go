package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Envelope is the common {ok, ...} response shape used by every handler.
type Envelope map[string]any

// Ok builds a success envelope, merging extra fields in.
func Ok(fields map[string]any) Envelope {
	e := Envelope{"ok": true}
	for k, v := range fields {
		e[k] = v
	}
	return e
}

// WriteError writes a JSON {ok:false, error} response with the given status
// and message, optionally merging extra context fields (threadId, taskId).
func WriteError(w http.ResponseWriter, status int, message string, extra map[string]any) {
	e := Envelope{"ok": false, "error": message}
	for k, v := range extra {
		e[k] = v
	}
	WriteJSON(w, status, e)
}

// DecodeJSON decodes JSON from the request body into v.
// Returns true on success, false on error (and writes a 400 error response).
func DecodeJSON(w http.ResponseWriter, v any, body []byte) bool {
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON", nil)
		return false
	}
	return true
}
