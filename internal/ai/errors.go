package ai

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// IsRetryable reports whether a provider failure is worth another attempt:
// timeouts, throttling, server errors and network failures are; bad
// requests, auth failures and missing configuration are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) {
		return false
	}
	if code, ok := statusCode(err); ok {
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func statusCode(err error) (int, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode, true
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code, true
	}
	var geminiErrPtr *genai.APIError
	if errors.As(err, &geminiErrPtr) {
		return geminiErrPtr.Code, true
	}
	return 0, false
}
