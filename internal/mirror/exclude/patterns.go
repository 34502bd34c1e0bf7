// Package exclude filters remote paths out of a mirror plan.
package exclude

import (
	"fmt"
	"path"
	"strings"
)

// Matcher decides whether a share-relative path is left out of a mirror.
// Paths use forward slashes. A nil Matcher excludes nothing.
type Matcher struct {
	patterns []string
}

// New compiles patterns. Blank entries are ignored; malformed globs are an error.
//
//	"Archive/"  a directory and everything below it; without an inner slash
//	            the name matches at any depth
//	"*.tmp"     a glob against the full path or the base name
//	"notes.txt" an exact path, or a file with that base name
func New(patterns []string) (*Matcher, error) {
	var compiled []string
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.TrimSpace(p), "./")
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			if _, err := path.Match(p, ""); err != nil {
				return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
			}
		}
		compiled = append(compiled, p)
	}
	if len(compiled) == 0 {
		return nil, nil
	}
	return &Matcher{patterns: compiled}, nil
}

// Patterns returns the compiled patterns
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// IsExcluded reports whether relPath matches any pattern
func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	for _, p := range m.patterns {
		if strings.HasSuffix(p, "/") {
			if matchDir(strings.TrimSuffix(p, "/"), relPath, isDir) {
				return true
			}
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			if ok, _ := path.Match(p, relPath); ok {
				return true
			}
			if ok, _ := path.Match(p, path.Base(relPath)); ok {
				return true
			}
			continue
		}
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
		if !isDir && path.Base(relPath) == p {
			return true
		}
	}
	return false
}

func matchDir(dirPattern, relPath string, isDir bool) bool {
	if (isDir && relPath == dirPattern) || strings.HasPrefix(relPath, dirPattern+"/") {
		return true
	}
	if strings.Contains(dirPattern, "/") {
		return false
	}
	segments := strings.Split(relPath, "/")
	if !isDir {
		segments = segments[:len(segments)-1]
	}
	for _, seg := range segments {
		if seg == dirPattern {
			return true
		}
	}
	return false
}
