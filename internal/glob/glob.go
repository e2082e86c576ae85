// Package glob matches working-copy paths against ignore-style patterns.
//
// Patterns follow .gitignore rules: a pattern without a slash matches a
// name at any depth, "**" spans directories, a leading "!" re-includes, and
// the last matching pattern decides. A pattern that matches a directory
// also matches everything below it.
package glob

import (
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher is a compiled pattern list. The zero value matches nothing.
type Matcher struct {
	m     gitignore.Matcher
	count int
}

// Compile parses patterns. Blank entries and "#" comments are skipped.
func Compile(patterns []string) *Matcher {
	var parsed []gitignore.Pattern
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		parsed = append(parsed, gitignore.ParsePattern(p, nil))
	}
	if len(parsed) == 0 {
		return &Matcher{}
	}
	return &Matcher{m: gitignore.NewMatcher(parsed), count: len(parsed)}
}

// Match reports whether path is matched. path is relative to the
// working-copy root and may use either separator; a leading separator is
// ignored.
func (m *Matcher) Match(path string) bool {
	return m.MatchDir(path, false)
}

// MatchDir is Match for a path known to be a directory, which lets
// dir-only patterns ("build/") match the path itself.
func (m *Matcher) MatchDir(path string, isDir bool) bool {
	if m == nil || m.m == nil {
		return false
	}
	parts := split(path)
	if len(parts) == 0 {
		return false
	}
	return m.m.Match(parts, isDir)
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return m.count
}

// MatchAny compiles patterns and matches path once.
func MatchAny(path string, patterns []string) bool {
	return Compile(patterns).Match(path)
}

func split(path string) []string {
	path = filepath.ToSlash(path)
	path = strings.ReplaceAll(path, "\\", "/")
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" || p == "." {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}
