package openaiadapter

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// OpenAI error types.
const (
	TypeInvalidRequest    = "invalid_request_error"
	TypeAuthentication    = "authentication_error"
	TypePermissionDenied  = "permission_denied"
	TypeNotFound          = "not_found_error"
	TypeRateLimit         = "rate_limit_error"
	TypeInsufficientQuota = "insufficient_quota"
	TypeServer            = "server_error"
	TypeAPI               = "api_error"
)

// ChatCompletionError represents an OpenAI-formatted error for chat completion endpoints.
type ChatCompletionError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Error implements the error interface, returning the error message.
func (e *ChatCompletionError) Error() string {
	return e.Message
}

// ChatCompletionErrorResponse wraps ChatCompletionError as {"error": {...}}, the
// shape OpenAI clients recognise in both JSON bodies and SSE error events.
type ChatCompletionErrorResponse struct {
	Err *ChatCompletionError `json:"error"`
}

// NewErrorResponse creates an error envelope.
func NewErrorResponse(typ, message string) *ChatCompletionErrorResponse {
	return &ChatCompletionErrorResponse{Err: &ChatCompletionError{Type: typ, Message: message}}
}

// Error implements the error interface, returning the underlying error message.
func (e *ChatCompletionErrorResponse) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Message
}

// HTTPStatus maps the error type to the status code OpenAI uses for it.
func (e *ChatCompletionErrorResponse) HTTPStatus() int {
	if e.Err == nil {
		return http.StatusInternalServerError
	}
	switch e.Err.Type {
	case TypeInvalidRequest:
		return http.StatusBadRequest
	case TypeAuthentication:
		return http.StatusUnauthorized
	case TypePermissionDenied:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimit, TypeInsufficientQuota:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// TypeForStatus picks an error type for an upstream status code.
func TypeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return TypeAuthentication
	case status == http.StatusForbidden:
		return TypePermissionDenied
	case status == http.StatusNotFound:
		return TypeNotFound
	case status == http.StatusTooManyRequests:
		return TypeRateLimit
	case status >= 400 && status < 500:
		return TypeInvalidRequest
	default:
		return TypeServer
	}
}

// ParseError converts an OpenAI-style error body. Bodies that are not in that
// shape are carried as the message, typed by status.
func ParseError(status int, body []byte) *ChatCompletionErrorResponse {
	errField := gjson.GetBytes(body, "error")

	switch {
	case errField.IsObject():
		resp := NewErrorResponse(errField.Get("type").String(), errField.Get("message").String())
		resp.Err.Code = errField.Get("code").String()
		resp.Err.Param = errField.Get("param").String()
		if resp.Err.Type == "" {
			resp.Err.Type = TypeForStatus(status)
		}
		if resp.Err.Message == "" {
			resp.Err.Message = http.StatusText(status)
		}
		return resp

	case errField.Type == gjson.String:
		return NewErrorResponse(TypeForStatus(status), errField.String())
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return NewErrorResponse(TypeForStatus(status), msg)
}
