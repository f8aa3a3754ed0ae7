package repo

import (
	"context"
	"log/slog"
	"strings"

	"github.com/julianshen/repolens/internal/analysis"
	"github.com/sourcegraph/conc/pool"
)

// LoadOptions bounds LoadSources.
type LoadOptions struct {
	// MaxFiles caps the number of files downloaded. Zero means 60.
	MaxFiles int
	// MaxFileSize skips files whose listed size exceeds it. Zero means
	// 256 KiB.
	MaxFileSize int64
	// Concurrency bounds parallel downloads. Zero means 4.
	Concurrency int
	Logger      *slog.Logger
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.MaxFiles <= 0 {
		o.MaxFiles = 60
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = 256 << 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// SourceFiles returns the analyzable files of tree in depth-first order,
// outside ignored directories, at most limit of them.
func SourceFiles(tree *Node, limit int, maxSize int64) []*Node {
	var out []*Node
	tree.Walk(func(n *Node, depth int) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		if n.IsDir() {
			return depth == 0 || !IsIgnoredDir(n.Name)
		}
		if n.URL != "" && analysis.IsSource(n.Name) && (maxSize <= 0 || n.Size <= maxSize) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// LoadSources downloads the analyzable files of tree in parallel and
// returns them in tree order. Files that fail to download are logged and
// left out; only context cancellation is returned as an error.
func LoadSources(ctx context.Context, src Source, tree *Node, opts LoadOptions) ([]analysis.SourceFile, error) {
	opts = opts.withDefaults()
	nodes := SourceFiles(tree, opts.MaxFiles, opts.MaxFileSize)
	contents := make([]string, len(nodes))
	ok := make([]bool, len(nodes))

	p := pool.New().WithMaxGoroutines(opts.Concurrency)
	for i, n := range nodes {
		i, n := i, n
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			body, err := src.FetchFileContent(ctx, n.URL)
			if err != nil {
				opts.Logger.Warn("skipping source file", "path", n.Path, "kind", FetchKind(err), "error", err)
				return
			}
			contents[i], ok[i] = body, true
		})
	}
	p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := make([]analysis.SourceFile, 0, len(nodes))
	for i, n := range nodes {
		if ok[i] {
			files = append(files, analysis.SourceFile{Path: n.Path, Content: contents[i]})
		}
	}
	return files, nil
}

// FindReadme returns the first README-like file directly under tree.
func FindReadme(tree *Node) *Node {
	if tree == nil {
		return nil
	}
	for _, c := range tree.Children {
		if c.Kind != KindFile {
			continue
		}
		lower := strings.ToLower(c.Name)
		if lower == "readme" || strings.HasPrefix(lower, "readme.") {
			return c
		}
	}
	return nil
}
