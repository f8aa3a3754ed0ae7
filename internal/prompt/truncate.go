package prompt

import (
	"fmt"
	"unicode/utf8"
)

// Truncate keeps content within budget characters. Oversized content
// keeps its first and last halves around a single omission marker, so
// both the declarations at the top and the exports at the bottom of a
// file survive. Budgets of zero or less disable truncation.
func Truncate(content string, budget int) (string, bool) {
	n := utf8.RuneCountInString(content)
	if budget <= 0 || n <= budget {
		return content, false
	}
	runes := []rune(content)
	head := budget / 2
	tail := budget - head
	return string(runes[:head]) +
		"\n\n" + fmt.Sprintf(markerFormat, n-budget) + "\n\n" +
		string(runes[n-tail:]), true
}

const markerFormat = "[... %d characters omitted ...]"

// remaining is what is left of budget once used has been spent, counted
// in characters. A spent budget yields -1 so callers can drop the section;
// a disabled budget (zero or less) stays disabled.
func remaining(budget int, used string) int {
	if budget <= 0 {
		return 0
	}
	left := budget - utf8.RuneCountInString(used)
	if left <= 0 {
		return -1
	}
	return left
}

// fit truncates content to budget as returned by remaining: -1 drops the
// content entirely.
func fit(content string, budget int) string {
	if budget < 0 {
		return ""
	}
	out, _ := Truncate(content, budget)
	return out
}
