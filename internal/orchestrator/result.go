package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianshen/repolens/internal/arch"
	"github.com/julianshen/repolens/internal/provider"
	"github.com/julianshen/repolens/internal/queue"
	"github.com/julianshen/repolens/internal/response"
	"github.com/julianshen/repolens/internal/retry"
)

// Status tags how a result was produced.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
	StatusFallback Status = "fallback"
)

// Reason names the failure behind a degraded or fallback result.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonInvalidInput     Reason = "invalid_input"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonServiceDown      Reason = "service_unavailable"
	ReasonModelUnavailable Reason = "model_unavailable"
	ReasonRejected         Reason = "request_rejected"
	ReasonSafety           Reason = "safety_blocked"
	ReasonTruncated        Reason = "truncated"
	ReasonMalformed        Reason = "malformed_response"
	ReasonEmpty            Reason = "empty_response"
	ReasonCanceled         Reason = "canceled"
)

// Result is the outcome of a free-text request. It is never an error:
// failures come back as StatusDegraded with Text describing the problem.
type Result struct {
	Status    Status             `json:"status" yaml:"status"`
	Reason    Reason             `json:"reason,omitempty" yaml:"reason,omitempty"`
	Text      string             `json:"text" yaml:"text"`
	Snippets  []response.Snippet `json:"snippets,omitempty" yaml:"snippets,omitempty"`
	Model     string             `json:"model,omitempty" yaml:"model,omitempty"`
	Attempts  int                `json:"attempts" yaml:"attempts"`
	Cached    bool               `json:"cached" yaml:"cached"`
	RequestID string             `json:"request_id" yaml:"request_id"`
}

// DiagramResult is the outcome of an architecture diagram request.
// Markup is always a renderable diagram; StatusFallback marks one built
// from the directory tree alone.
type DiagramResult struct {
	Status    Status     `json:"status" yaml:"status"`
	Reason    Reason     `json:"reason,omitempty" yaml:"reason,omitempty"`
	Markup    string     `json:"markup" yaml:"markup"`
	Data      *arch.Data `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	Model     string     `json:"model,omitempty" yaml:"model,omitempty"`
	Attempts  int        `json:"attempts" yaml:"attempts"`
	Cached    bool       `json:"cached" yaml:"cached"`
	RequestID string     `json:"request_id" yaml:"request_id"`
}

// Classify maps an inference failure onto a retry class.
func Classify(err error) retry.Verdict {
	var statusErr *provider.StatusError
	switch {
	case errors.As(err, &statusErr):
		switch code := statusErr.StatusCode; {
		case code == 429:
			return retry.Verdict{Class: retry.RateLimited, RetryAfter: statusErr.RetryAfter}
		case code == 404:
			return retry.Verdict{Class: retry.Unavailable}
		case code == 408 || code >= 500:
			return retry.Verdict{Class: retry.Transient}
		default:
			return retry.Verdict{Class: retry.Fatal}
		}
	case errors.Is(err, queue.ErrClosed):
		return retry.Verdict{Class: retry.Fatal}
	}
	if _, ok := response.KindOf(err); ok {
		return retry.Verdict{Class: retry.Content}
	}
	return retry.Verdict{Class: retry.Transient}
}

// ReasonFor derives the Reason of a failed request.
func ReasonFor(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonCanceled
	}
	if kind, ok := response.KindOf(err); ok {
		switch kind {
		case response.KindSafety:
			return ReasonSafety
		case response.KindTruncated:
			return ReasonTruncated
		case response.KindEmpty:
			return ReasonEmpty
		default:
			return ReasonMalformed
		}
	}
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		switch code := statusErr.StatusCode; {
		case code == 429:
			return ReasonRateLimited
		case code == 404:
			return ReasonModelUnavailable
		case code == 408 || code >= 500:
			return ReasonServiceDown
		default:
			return ReasonRejected
		}
	}
	return ReasonServiceDown
}

var remediation = map[Reason]string{
	ReasonInvalidInput:     "The request is missing required input.",
	ReasonRateLimited:      "The inference service is rate limiting requests. Wait a minute and try again, or raise [queue] min_interval.",
	ReasonServiceDown:      "The inference service could not be reached or kept failing. Check the network connection and try again later.",
	ReasonModelUnavailable: "None of the configured models is available. Check [provider] models in the configuration.",
	ReasonRejected:         "The inference service rejected the request. Check that the API key is valid and allowed to use the configured models.",
	ReasonSafety:           "The answer was blocked by the content safety filter. Try a narrower path or rephrase the question.",
	ReasonTruncated:        "The answer was cut off by the output length limit. Try a smaller file or directory.",
	ReasonMalformed:        "The service returned an answer that could not be parsed. Try again.",
	ReasonEmpty:            "The service returned an empty answer. Try again.",
	ReasonCanceled:         "The request was canceled.",
}

// degradedText is the user-facing body of a degraded result.
func degradedText(what string, reason Reason) string {
	msg, ok := remediation[reason]
	if !ok {
		msg = remediation[ReasonServiceDown]
	}
	return fmt.Sprintf("> **%s unavailable** (%s)\n>\n> %s\n", what, reason, msg)
}
