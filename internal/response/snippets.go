package response

import "strings"

// Snippet is a fenced code block found in a free-text answer.
type Snippet struct {
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Code     string `json:"code" yaml:"code"`
}

// ExtractSnippets returns every non-empty fenced block in text, in order.
func ExtractSnippets(text string) []Snippet {
	var out []Snippet
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		code := strings.Trim(m[2], "\r\n")
		if strings.TrimSpace(code) == "" {
			continue
		}
		out = append(out, Snippet{Language: strings.ToLower(m[1]), Code: code})
	}
	return out
}
