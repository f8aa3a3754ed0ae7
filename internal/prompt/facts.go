package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/julianshen/repolens/internal/analysis"
)

// summarizeFacts serializes one JSON object per file with something to
// report, until budget characters or maxFiles files are used. The rest
// is counted in a trailing note. A budget of zero means no limit and a
// negative budget omits every file.
func summarizeFacts(facts analysis.CodebaseFacts, budget, maxFiles int) string {
	var b strings.Builder
	written, omitted, used := 0, 0, 0
	for _, f := range facts.Files {
		if f.Empty() {
			continue
		}
		line, err := json.Marshal(f)
		if err != nil {
			omitted++
			continue
		}
		size := utf8.RuneCount(line) + 1
		if (maxFiles > 0 && written >= maxFiles) || budget < 0 || (budget > 0 && used+size > budget) {
			omitted++
			continue
		}
		b.Write(line)
		b.WriteByte('\n')
		used += size
		written++
	}
	if written == 0 && omitted == 0 {
		return "(no imports, exports or network calls detected)\n"
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "(%d more files omitted)\n", omitted)
	}
	return b.String()
}
