// Package retry runs a call against an ordered list of candidates (model
// identifiers) with per-candidate bounded retries and exponential backoff.
//
// The policy is declarative: a Policy names the candidates and the limits,
// a Classifier maps each failure to a Class, and Run is the only loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 2 * time.Second
	defaultMaxDelay  = 30 * time.Second
)

// Class tells Run what to do after a failed call.
type Class int

const (
	// Transient failures (5xx, network) are retried on the same candidate.
	Transient Class = iota
	// RateLimited failures are retried on the same candidate, honoring
	// Verdict.RetryAfter when the server provided one.
	RateLimited
	// Content failures (blocked, truncated, unparseable output) are retried
	// at most Policy.ContentAttempts times on the same candidate.
	Content
	// Unavailable failures skip straight to the next candidate.
	Unavailable
	// Fatal failures stop Run immediately.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate_limited"
	case Content:
		return "content"
	case Unavailable:
		return "unavailable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Verdict is the classification of one failure.
type Verdict struct {
	Class      Class
	RetryAfter time.Duration
}

// Classifier maps a call error to a Verdict.
type Classifier func(err error) Verdict

// Policy declares candidates and limits.
type Policy struct {
	// Candidates are tried in order.
	Candidates []string
	// Attempts bounds the calls made per candidate.
	Attempts int
	// ContentAttempts bounds calls per candidate while failures are
	// content failures. Zero means 1.
	ContentAttempts int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
}

// MaxCalls is the most calls Run can make under p.
func (p Policy) MaxCalls() int {
	return len(p.Candidates) * p.attempts()
}

func (p Policy) attempts() int {
	if p.Attempts <= 0 {
		return defaultAttempts
	}
	return p.Attempts
}

func (p Policy) contentAttempts() int {
	n := p.ContentAttempts
	if n <= 0 {
		n = 1
	}
	if n > p.attempts() {
		n = p.attempts()
	}
	return n
}

// Backoff returns the delay before retry number attempt (1-based):
// base, base*2, base*4, ... capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base < 0 {
		return 0
	}
	if base == 0 {
		base = defaultBaseDelay
	}
	maxDelay := p.maxDelay()
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	return p.capDelay(delay)
}

func (p Policy) maxDelay() time.Duration {
	if p.MaxDelay <= 0 {
		return defaultMaxDelay
	}
	return p.MaxDelay
}

func (p Policy) capDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if m := p.maxDelay(); d > m {
		return m
	}
	return d
}

// ErrExhausted is matched by the error Run returns when every candidate
// failed.
var ErrExhausted = errors.New("all candidates exhausted")

// ErrNoCandidates is returned when the policy lists no candidate.
var ErrNoCandidates = errors.New("retry policy has no candidates")

// Failure records one failed call.
type Failure struct {
	Candidate string
	Attempt   int
	Class     Class
	Err       error
}

// Report describes what Run did.
type Report struct {
	// Candidate is the candidate that succeeded, or the last one tried.
	Candidate string
	// Calls is the number of calls made.
	Calls    int
	Failures []Failure
}

// Last returns the most recent failure, if any.
func (r Report) Last() (Failure, bool) {
	if len(r.Failures) == 0 {
		return Failure{}, false
	}
	return r.Failures[len(r.Failures)-1], true
}

// ExhaustedError wraps the last failure after every candidate failed.
type ExhaustedError struct {
	Calls int
	Last  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d calls: %v", ErrExhausted, e.Calls, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrExhausted, e.Last} }

// Executor binds a Policy to a Classifier and a sleeper.
type Executor struct {
	Policy   Policy
	Classify Classifier
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Run calls fn for each candidate in order until one succeeds, a Fatal
// failure occurs, or the context ends.
func Run[T any](ctx context.Context, e *Executor, fn func(ctx context.Context, candidate string) (T, error)) (T, Report, error) {
	var zero T
	var report Report
	p := e.Policy
	if len(p.Candidates) == 0 {
		return zero, report, ErrNoCandidates
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	classify := e.Classify
	if classify == nil {
		classify = func(error) Verdict { return Verdict{Class: Transient} }
	}

	var lastErr error
candidates:
	for _, candidate := range p.Candidates {
		report.Candidate = candidate
		contentFailures := 0
		for attempt := 1; attempt <= p.attempts(); attempt++ {
			report.Calls++
			v, err := fn(ctx, candidate)
			if err == nil {
				return v, report, nil
			}
			lastErr = err
			verdict := classify(err)
			report.Failures = append(report.Failures, Failure{
				Candidate: candidate, Attempt: attempt, Class: verdict.Class, Err: err,
			})
			logger.Warn("inference attempt failed",
				"model", candidate, "attempt", attempt, "class", verdict.Class.String(), "error", err)

			if ctx.Err() != nil {
				return zero, report, ctx.Err()
			}

			var delay time.Duration
			switch verdict.Class {
			case Fatal:
				return zero, report, err
			case Unavailable:
				continue candidates
			case Content:
				contentFailures++
				if contentFailures >= p.contentAttempts() {
					continue candidates
				}
				delay = p.Backoff(attempt)
			case RateLimited:
				delay = p.Backoff(attempt)
				if verdict.RetryAfter > 0 {
					delay = p.capDelay(verdict.RetryAfter)
				}
			default:
				delay = p.Backoff(attempt)
			}

			if attempt == p.attempts() {
				break
			}
			if err := e.sleep(ctx, delay); err != nil {
				return zero, report, err
			}
		}
	}
	return zero, report, &ExhaustedError{Calls: report.Calls, Last: lastErr}
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
