// Package loader reads svnsync configuration files into nested maps.
//
// TOML and YAML are supported and selected by file extension. Environment
// overrides are layered on top by EnvLoader. Callers flatten the result with
// Flatten to get dotted keys such as "remoteChanges.checkFrequency".
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions with no parser.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// FileSystem is the subset of file system access the loaders need.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

// OSFS reads from the real file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Parser decodes one document format.
type Parser func(source string, data []byte) (map[string]any, error)

var parsers = map[string]Parser{
	".toml": parseTOML,
	".yaml": parseYAML,
	".yml":  parseYAML,
}

// Load reads path from fsys with the parser matching its extension.
// A missing file yields nil, nil.
func Load(fsys FileSystem, path string) (map[string]any, error) {
	parse, ok := parsers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	return parse(path, data)
}

// ParseError is a syntax error in a config document.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Flatten turns nested tables into dotted keys. Only maps are descended
// into; lists and scalars are leaves.
//
//	{"remoteChanges": {"checkFrequency": 60}} -> {"remoteChanges.checkFrequency": 60}
//
// A leading "svn" table is accepted and stripped so settings copied from
// an editor configuration work unchanged.
func Flatten(src map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", src)

	for k, v := range out {
		if rest, ok := strings.CutPrefix(k, "svn."); ok {
			delete(out, k)
			if _, exists := out[rest]; !exists {
				out[rest] = v
			}
		}
	}
	return out
}

func flattenInto(dst map[string]any, prefix string, src map[string]any) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok && !isLeafTable(key) {
			flattenInto(dst, key, m)
			continue
		}
		dst[key] = v
	}
}

// leafTables are keys whose value is itself a map setting.
var leafTables = []string{"files.exclude", "svn.files.exclude"}

func isLeafTable(key string) bool {
	for _, t := range leafTables {
		if key == t {
			return true
		}
	}
	return false
}

// Merge overlays src onto dst key by key. Both must be flat.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Keys returns the sorted keys of a flat map.
func Keys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
