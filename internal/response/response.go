// Package response turns raw inference responses into text or validated
// architecture data.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/julianshen/repolens/internal/arch"
	"github.com/julianshen/repolens/internal/provider"
)

// Kind classifies why a response carried no usable payload.
type Kind string

const (
	KindEmpty     Kind = "empty"
	KindSafety    Kind = "safety"
	KindTruncated Kind = "truncated"
	KindMalformed Kind = "malformed"
)

// Error is a content failure.
type Error struct {
	Kind         Kind
	FinishReason string
	// Snippet is a shortened copy of the offending payload.
	Snippet string
	Err     error
}

func (e *Error) Error() string {
	msg := "response " + string(e.Kind)
	if e.FinishReason != "" {
		msg += fmt.Sprintf(" (finish_reason=%s)", e.FinishReason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (payload snippet: %s)", e.Snippet)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of a content failure anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var respErr *Error
	if errors.As(err, &respErr) {
		return respErr.Kind, true
	}
	return "", false
}

// payload returns the candidate text or the content failure that explains
// its absence. Truncated-but-present text is returned with truncated=true.
func payload(resp *provider.Response) (text string, truncated bool, err error) {
	if resp == nil {
		return "", false, &Error{Kind: KindEmpty, Err: errors.New("no response")}
	}
	if resp.BlockReason != "" {
		return "", false, &Error{Kind: KindSafety, FinishReason: resp.FinishReason, Err: fmt.Errorf("prompt blocked: %s", resp.BlockReason)}
	}
	switch resp.FinishReason {
	case provider.FinishSafety, provider.FinishRecitation:
		return "", false, &Error{Kind: KindSafety, FinishReason: resp.FinishReason}
	}
	text = strings.TrimSpace(resp.Text)
	truncated = resp.FinishReason == provider.FinishMaxTokens
	if text == "" {
		if truncated {
			return "", true, &Error{Kind: KindTruncated, FinishReason: resp.FinishReason}
		}
		return "", false, &Error{Kind: KindEmpty, FinishReason: resp.FinishReason}
	}
	return text, truncated, nil
}

// ExtractText returns the free-text answer. A response cut off by the
// length limit still yields its partial text. An answer wrapped whole in
// a markdown or bare fence is unwrapped.
func ExtractText(resp *provider.Response) (string, error) {
	text, _, err := payload(resp)
	if err != nil {
		return "", err
	}
	if m := wholeFenceRe.FindStringSubmatch(text); m != nil {
		switch strings.ToLower(m[1]) {
		case "", "markdown", "md", "text":
			if inner := strings.TrimSpace(m[2]); inner != "" {
				return inner, nil
			}
		}
	}
	return text, nil
}

// ExtractArchitecture decodes and normalizes architecture data. Dangling
// relationships are dropped; a result without components is KindEmpty.
func ExtractArchitecture(resp *provider.Response) (*arch.Data, error) {
	text, truncated, err := payload(resp)
	if err != nil {
		return nil, err
	}
	data, _, err := DecodeJSON[arch.Data](text)
	if err != nil {
		kind := KindMalformed
		if truncated {
			kind = KindTruncated
		}
		return nil, &Error{Kind: kind, FinishReason: resp.FinishReason, Snippet: snippet(text), Err: err}
	}
	data.Normalize()
	if len(data.Components) == 0 {
		return nil, &Error{Kind: KindEmpty, FinishReason: resp.FinishReason, Err: errors.New("no components")}
	}
	return &data, nil
}

var (
	fenceRe      = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9_+.#-]*)[^\\n]*\\n(.*?)```")
	wholeFenceRe = regexp.MustCompile("(?s)\\A```[ \\t]*([A-Za-z0-9_+.#-]*)[ \\t]*\\n(.*?)\\n?```\\z")
)

// Strategy pulls a JSON candidate out of free text.
type Strategy struct {
	Name    string
	Extract func(text string) (string, bool)
}

// Strategies are tried in order by DecodeJSON; the first candidate that
// parses wins.
var Strategies = []Strategy{
	{Name: "fenced-tagged", Extract: fencedTagged},
	{Name: "fenced-bare", Extract: fencedBare},
	{Name: "raw", Extract: raw},
	{Name: "prose-stripped", Extract: proseStripped},
}

// ErrNoJSON is returned when no strategy yields parseable JSON.
var ErrNoJSON = errors.New("no parseable JSON in response")

// DecodeJSON returns the first candidate that unmarshals into a T and
// names the strategy that produced it. Each candidate is decoded into a
// fresh value, so a rejected candidate leaves nothing behind.
func DecodeJSON[T any](text string) (T, string, error) {
	var zero T
	if strings.TrimSpace(text) == "" {
		return zero, "", errors.New("empty payload")
	}
	var lastErr error
	for _, s := range Strategies {
		candidate, ok := s.Extract(text)
		if !ok {
			continue
		}
		if !json.Valid([]byte(candidate)) {
			lastErr = fmt.Errorf("%s: invalid JSON", s.Name)
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(candidate), &v); err != nil {
			lastErr = fmt.Errorf("%s: %w", s.Name, err)
			continue
		}
		return v, s.Name, nil
	}
	if lastErr != nil {
		return zero, "", fmt.Errorf("%w: %v", ErrNoJSON, lastErr)
	}
	return zero, "", ErrNoJSON
}

func fencedTagged(text string) (string, bool) {
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		if strings.EqualFold(m[1], "json") {
			return strings.TrimSpace(m[2]), true
		}
	}
	return "", false
}

func fencedBare(text string) (string, bool) {
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		if m[1] == "" {
			return strings.TrimSpace(m[2]), true
		}
	}
	return "", false
}

func raw(text string) (string, bool) {
	return strings.TrimSpace(text), true
}

// proseStripped drops anything before the first opening brace or bracket
// and after the matching last closing one.
func proseStripped(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return trimmed[start : end+1], true
		}
	}
	if start := strings.Index(trimmed, "["); start >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > start {
			return trimmed[start : end+1], true
		}
	}
	return "", false
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const limit = 160
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
