package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Normalized finish reasons. Providers map their own vocabulary onto these.
const (
	FinishStop       = "STOP"
	FinishMaxTokens  = "MAX_TOKENS"
	FinishSafety     = "SAFETY"
	FinishRecitation = "RECITATION"
	FinishOther      = "OTHER"
)

// Invoker calls a text-generation endpoint once. Implementations do not
// retry; retry and pacing belong to the caller.
type Invoker interface {
	Invoke(ctx context.Context, model, prompt string, cfg GenerationConfig) (*Response, error)
}

// GenerationConfig holds sampling options for one call.
type GenerationConfig struct {
	// Temperature is omitted from the request when nil.
	Temperature     *float64
	MaxOutputTokens int
	TopK            int
	TopP            float64
	// JSONResponse asks the endpoint for a strict JSON body instead of
	// free text.
	JSONResponse bool
}

// Temperature returns a pointer to t, for GenerationConfig literals.
func Temperature(t float64) *float64 {
	return &t
}

// Response is the first candidate of a generation call.
type Response struct {
	Text         string
	FinishReason string
	// BlockReason is set when the prompt itself was rejected and no
	// candidate was produced.
	BlockReason string
	Raw         []byte
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is the server-requested delay, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("inference request: http %d: %s", e.StatusCode, body)
}

// ParseRetryAfter reads a Retry-After header value given in seconds or as
// an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, true
		}
		return delay, true
	}
	return 0, false
}
