package anthropicclaude

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/droid2api/droidproxy/internal/openaiadapter"
)

// ToError converts an Anthropic error body. Bodies that are not an
// anthropic.ErrorResponse fall back to openaiadapter.ParseError.
func (Adapter) ToError(status int, body []byte) *openaiadapter.ChatCompletionErrorResponse {
	var errResp anthropic.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Type == "" {
		return openaiadapter.ParseError(status, body)
	}

	// Anthropic errors carry no code or param.
	return openaiadapter.NewErrorResponse(MapErrorType(errResp.Error.Type), errResp.Error.Message)
}

// MapErrorType translates Anthropic error taxonomy to OpenAI-compatible error types.
func MapErrorType(anthropicType string) string {
	switch anthropicType {
	case "overloaded_error", "timeout_error":
		return openaiadapter.TypeServer
	case "rate_limit_error":
		return openaiadapter.TypeRateLimit
	case "invalid_request_error", "not_found_error":
		return openaiadapter.TypeInvalidRequest
	case "authentication_error":
		return openaiadapter.TypeAuthentication
	case "permission_error":
		return openaiadapter.TypePermissionDenied
	case "billing_error":
		return openaiadapter.TypeInsufficientQuota
	default:
		return openaiadapter.TypeAPI
	}
}
