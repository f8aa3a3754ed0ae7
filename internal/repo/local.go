package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/julianshen/repolens/internal/integrations"
)

// LocalSource serves a checkout on disk. Owner and name passed to
// FetchTree only label the root node.
type LocalSource struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewLocalSource creates a Source rooted at dir.
func NewLocalSource(dir string, logger *slog.Logger) (*LocalSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &FetchError{Kind: NotFound, Op: "open " + dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &FetchError{Kind: Other, Op: "open " + dir, Err: errors.New("not a directory")}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalSource{dir: abs, maxBytes: integrations.DefaultMaxBytes, logger: logger}, nil
}

// Dir returns the absolute root directory.
func (l *LocalSource) Dir() string { return l.dir }

// FetchTree reads directories down to maxDepth. Entries are in
// lexical order.
func (l *LocalSource) FetchTree(ctx context.Context, owner, name, root string, maxDepth int) (*Node, error) {
	root = strings.Trim(filepath.ToSlash(root), "/")
	label := name
	if label == "" {
		label = filepath.Base(l.dir)
	}
	if root != "" {
		label = path.Base(root)
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	rootNode := &Node{Name: label, Path: root, Kind: KindDirectory}
	if err := l.readDir(ctx, rootNode, 1, maxDepth); err != nil {
		return nil, err
	}
	return rootNode, nil
}

func (l *LocalSource) readDir(ctx context.Context, dir *Node, depth, maxDepth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(filepath.Join(l.dir, filepath.FromSlash(dir.Path)))
	if err != nil {
		kind := Other
		if errors.Is(err, fs.ErrNotExist) {
			kind = NotFound
		}
		if depth == 1 {
			return &FetchError{Kind: kind, Op: "list " + dir.Path, Err: err}
		}
		l.logger.Warn("listing directory failed", "path", dir.Path, "error", err)
		return nil
	}
	for _, e := range entries {
		rel := path.Join(dir.Path, e.Name())
		n := &Node{Name: e.Name(), Path: rel}
		switch {
		case e.IsDir():
			n.Kind = KindDirectory
			if depth < maxDepth && !IsIgnoredDir(e.Name()) {
				if err := l.readDir(ctx, n, depth+1, maxDepth); err != nil {
					return err
				}
			}
		case e.Type().IsRegular():
			n.Kind = KindFile
			if info, err := e.Info(); err == nil {
				n.Size = info.Size()
			}
			n.URL = (&url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(l.dir, filepath.FromSlash(rel)))}).String()
		default:
			continue
		}
		dir.Children = append(dir.Children, n)
	}
	return nil
}

// FetchFileContent reads a file:// URL inside the root directory.
func (l *LocalSource) FetchFileContent(ctx context.Context, rawURL string) (string, error) {
	op := "read " + rawURL
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return "", &FetchError{Kind: Other, Op: op, Err: errors.New("not a file URL")}
	}
	p := filepath.Clean(filepath.FromSlash(u.Path))
	if rel, err := filepath.Rel(l.dir, p); err != nil || strings.HasPrefix(rel, "..") {
		return "", &FetchError{Kind: Other, Op: op, Err: errors.New("path escapes source directory")}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		kind := Other
		if errors.Is(err, fs.ErrNotExist) {
			kind = NotFound
		}
		return "", &FetchError{Kind: kind, Op: op, Err: err}
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, l.maxBytes))
	if err != nil {
		return "", &FetchError{Kind: Other, Op: op, Err: err}
	}
	return string(data), nil
}
