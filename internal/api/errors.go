package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized matches any 401 answer from the server.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx answer carrying the server's detail message.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

// Is reports 401 answers as ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// NetworkErrorKind classifies transport-level failures.
type NetworkErrorKind string

const (
	Timeout     NetworkErrorKind = "timeout"
	Unreachable NetworkErrorKind = "unreachable"
	ServerError NetworkErrorKind = "server_error"
)

// NetworkError is a transport failure or a 5xx answer. Polls treat it as
// transient and keep their previous snapshot.
type NetworkError struct {
	Kind NetworkErrorKind
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Detail extracts the server detail text from err, if any.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

const maxDetailBytes = 512

// parseDetail reads the FastAPI-style {"detail": ...} body. Non-string
// details (validation errors) are surfaced as their raw JSON.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil {
			return text
		}
		return string(payload.Detail)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxDetailBytes {
		text = text[:maxDetailBytes]
	}
	return text
}
