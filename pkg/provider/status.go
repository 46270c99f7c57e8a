package provider

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
)

const maxErrorMessageLen = 300

// MapStatus is the default status classification shared by adapters:
// 429 is rate limited, 401/403 are auth failures, 408 is a timeout, 5xx is
// a server error and every other non-2xx status is a bad response.
func MapStatus(providerName, model string, statusCode int, body []byte) *llmerrors.ProviderError {
	msg := ErrorMessage(statusCode, body)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return llmerrors.NewRateLimitError(providerName, model, msg)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return llmerrors.NewAuthError(providerName, model, statusCode, msg)
	case statusCode == http.StatusRequestTimeout:
		return llmerrors.NewTimeoutError(providerName, model, msg)
	case statusCode >= 500:
		return llmerrors.NewServerError(providerName, model, statusCode, msg)
	default:
		return llmerrors.NewBadResponseError(providerName, model, msg)
	}
}

// ErrorMessage pulls a human readable message out of an error body, trying
// the common envelope shapes before falling back to the status text.
func ErrorMessage(statusCode int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			if res := gjson.GetBytes(body, path); res.Type == gjson.String && strings.TrimSpace(res.Str) != "" {
				return truncate(res.Str)
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !gjson.ValidBytes(body) {
		return truncate(text)
	}
	return fmt.Sprintf("upstream returned %d %s", statusCode, http.StatusText(statusCode))
}

func truncate(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	cut := maxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
