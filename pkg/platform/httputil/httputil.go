// Package httputil centralizes JSON encoding, request decoding, and domain
// error translation for the HTTP layer so handlers stay thin.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	derrors "civreg/pkg/domain-errors"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope. Internal
// and storage failures omit the description so internals never leak to
// clients; everything else carries the message for actionable feedback.
func WriteError(w http.ResponseWriter, err error) {
	code := derrors.CodeOf(err)
	body := map[string]string{"error": string(code)}

	var coded *derrors.Error
	if errors.As(err, &coded) && code != derrors.CodeInternal && code != derrors.CodeStorage {
		body["error_description"] = coded.Message
	}
	WriteJSON(w, derrors.ToHTTPStatus(code), body)
}

// Decode parses the JSON request body into T, writing a validation error on
// malformed input. The boolean reports whether the handler should proceed.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "malformed request body", "error", err.Error())
		WriteError(w, derrors.New(derrors.CodeValidation, "malformed JSON request body"))
		return req, false
	}
	return req, true
}
