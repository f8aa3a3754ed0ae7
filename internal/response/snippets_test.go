package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSnippets(t *testing.T) {
	text := "Start the server:\n\n```go\nsrv := NewServer()\nsrv.Run()\n```\n\nThen call it:\n\n```\ncurl localhost:8080\n```\n\n```bash\n\n```\n"

	got := ExtractSnippets(text)
	assert.Equal(t, []Snippet{
		{Language: "go", Code: "srv := NewServer()\nsrv.Run()"},
		{Language: "", Code: "curl localhost:8080"},
	}, got)
}

func TestExtractSnippetsNone(t *testing.T) {
	assert.Empty(t, ExtractSnippets("no code here"))
}
