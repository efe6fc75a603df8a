package playstore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// APIError is a non-2xx response from the publishing API. Body keeps the
// raw payload so diagnostics can be surfaced verbatim.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("playstore: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("playstore: HTTP %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Body: string(body)}
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
		return apiErr
	}
	apiErr.Message = string(body)
	if apiErr.Message == "" {
		apiErr.Message = "(empty response body)"
	}
	return apiErr
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool {
	return statusOf(err) == 404
}

// IsRejected reports that the platform understood the request and
// refused its content (400, 409, 413, 422).
func IsRejected(err error) bool {
	switch statusOf(err) {
	case 400, 409, 413, 422:
		return true
	}
	return false
}

// IsAuth reports an authentication or permission failure.
func IsAuth(err error) bool {
	switch statusOf(err) {
	case 401, 403:
		return true
	}
	return false
}

// Diagnostic returns the raw error payload when err is an *APIError.
func Diagnostic(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Body
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
