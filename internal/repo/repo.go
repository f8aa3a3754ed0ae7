// Package repo lists and downloads repository contents from GitHub,
// GitLab or a local checkout.
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Node kinds.
const (
	KindFile      = "file"
	KindDirectory = "directory"
)

// Node is one entry of a directory tree.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Kind     string  `json:"kind"`
	Children []*Node `json:"children,omitempty"`
	Size     int64   `json:"size,omitempty"`
	// URL downloads a file's raw content through Source.FetchFileContent.
	URL string `json:"url,omitempty"`
}

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool { return n != nil && n.Kind == KindDirectory }

// Walk visits n and its descendants depth-first in child order. fn
// returning false skips the node's children.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	var visit func(*Node, int)
	visit = func(node *Node, depth int) {
		if node == nil || !fn(node, depth) {
			return
		}
		for _, c := range node.Children {
			visit(c, depth+1)
		}
	}
	if n != nil {
		visit(n, 0)
	}
}

// Find returns the node at the slash-separated path, relative to n's
// own path. An empty path returns n.
func (n *Node) Find(path string) *Node {
	path = strings.Trim(path, "/")
	if path == "" || n == nil {
		return n
	}
	cur := n
	for _, part := range strings.Split(path, "/") {
		var next *Node
		for _, c := range cur.Children {
			if c != nil && c.Name == part {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// ignoredDirs are build outputs, dependency stores and VCS metadata.
var ignoredDirs = map[string]bool{
	"node_modules":     true,
	"vendor":           true,
	".git":             true,
	".svn":             true,
	".hg":              true,
	"dist":             true,
	"build":            true,
	"out":              true,
	"target":           true,
	"coverage":         true,
	"__pycache__":      true,
	".next":            true,
	".nuxt":            true,
	".venv":            true,
	"venv":             true,
	".tox":             true,
	".cache":           true,
	".gradle":          true,
	"bower_components": true,
}

// IsIgnoredDir reports whether a directory name is excluded from
// outlines, fallback diagrams and source loading.
func IsIgnoredDir(name string) bool {
	return ignoredDirs[strings.ToLower(name)]
}

// Source is a content-hosting client.
type Source interface {
	// FetchTree lists root (empty for the repository root) down to
	// maxDepth levels.
	FetchTree(ctx context.Context, owner, name, root string, maxDepth int) (*Node, error)
	// FetchFileContent downloads a file by its Node.URL.
	FetchFileContent(ctx context.Context, url string) (string, error)
}

// FetchErrorKind classifies content-host failures.
type FetchErrorKind string

const (
	NotFound    FetchErrorKind = "not_found"
	RateLimited FetchErrorKind = "rate_limited"
	Network     FetchErrorKind = "network"
	Other       FetchErrorKind = "other"
)

// FetchError is returned by every Source operation.
type FetchError struct {
	Kind FetchErrorKind
	Op   string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchKind returns the kind of a FetchError in err's chain, or Other.
func FetchKind(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Other
}

// ErrInvalidReference is returned for malformed repository references.
var ErrInvalidReference = errors.New("invalid repository reference")

// Reference names a hosted repository.
type Reference struct {
	// Owner may contain slashes for nested GitLab groups.
	Owner string
	Name  string
}

func (r Reference) String() string { return r.Owner + "/" + r.Name }

var segmentRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ParseReference accepts "owner/name" or a web URL such as
// https://github.com/owner/name(.git). Extra URL path segments after
// "/-/" or "/tree/" are ignored.
func ParseReference(s string) (Reference, error) {
	in := strings.TrimSpace(s)
	path := in
	if strings.Contains(in, "://") {
		u, err := url.Parse(in)
		if err != nil || u.Host == "" {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
		}
		path = u.Path
	} else if host, rest, ok := strings.Cut(in, "/"); ok && strings.Contains(host, ".") {
		path = rest
	}
	for _, marker := range []string{"/-/", "/tree/", "/blob/"} {
		if i := strings.Index(path, marker); i >= 0 {
			path = path[:i]
		}
	}
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	for _, p := range parts {
		if !segmentRe.MatchString(p) || p == "." || p == ".." {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
		}
	}
	return Reference{
		Owner: strings.Join(parts[:len(parts)-1], "/"),
		Name:  parts[len(parts)-1],
	}, nil
}
