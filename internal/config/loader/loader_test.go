package loader

import (
	"errors"
	"io/fs"
	"reflect"
	"testing"
	"time"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (m *MemFS) Stat(path string) (fs.FileInfo, error) {
	if _, ok := m.files[path]; ok {
		return &memFileInfo{name: path}, nil
	}
	return nil, fs.ErrNotExist
}

type memFileInfo struct {
	name string
}

func (f *memFileInfo) Name() string       { return f.name }
func (f *memFileInfo) Size() int64        { return 0 }
func (f *memFileInfo) Mode() fs.FileMode  { return 0644 }
func (f *memFileInfo) ModTime() time.Time { return time.Now() }
func (f *memFileInfo) IsDir() bool        { return false }
func (f *memFileInfo) Sys() any           { return nil }

func TestLoad_TOML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/svnsync.toml", `
autorefresh = false

[remoteChanges]
checkFrequency = 60

[sourceControl]
ignore = ["*.log", "build/**"]
hideUnversioned = true

[files.exclude]
"**/.DS_Store" = true
`)

	doc, err := Load(memfs, "/svnsync.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	flat := Flatten(doc)
	if flat["autorefresh"] != false {
		t.Errorf("autorefresh = %v, want false", flat["autorefresh"])
	}
	if flat["remoteChanges.checkFrequency"] != int64(60) {
		t.Errorf("checkFrequency = %#v, want int64(60)", flat["remoteChanges.checkFrequency"])
	}
	if flat["sourceControl.hideUnversioned"] != true {
		t.Errorf("hideUnversioned = %v", flat["sourceControl.hideUnversioned"])
	}
	ignore, ok := flat["sourceControl.ignore"].([]any)
	if !ok || len(ignore) != 2 {
		t.Errorf("ignore = %#v", flat["sourceControl.ignore"])
	}
	exclude, ok := flat["files.exclude"].(map[string]any)
	if !ok || exclude["**/.DS_Store"] != true {
		t.Errorf("files.exclude should stay a map, got %#v", flat["files.exclude"])
	}
}

func TestLoad_YAML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/svnsync.yaml", `
svn:
  delete:
    actionForDeletedFiles: remove
    ignoredRulesForDeletedFiles:
      - "*.tmp"
  sourceControl:
    countUnversioned: true
`)

	doc, err := Load(memfs, "/svnsync.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	flat := Flatten(doc)
	if flat["delete.actionForDeletedFiles"] != "remove" {
		t.Errorf("actionForDeletedFiles = %v", flat["delete.actionForDeletedFiles"])
	}
	if flat["sourceControl.countUnversioned"] != true {
		t.Errorf("countUnversioned = %v", flat["sourceControl.countUnversioned"])
	}
	if _, ok := flat["svn.delete.actionForDeletedFiles"]; ok {
		t.Error("svn prefix should be stripped")
	}
}

func TestLoad_Missing(t *testing.T) {
	doc, err := Load(NewMemFS(), "/nope.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil for missing file, got %v", doc)
	}
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := Load(NewMemFS(), "/config.ini")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.toml", "autorefresh = \n[[[")

	_, err := Load(memfs, "/bad.toml")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Path != "/bad.toml" {
		t.Errorf("unexpected path %q", pe.Path)
	}
	if pe.Line == 0 {
		t.Error("expected a line number from the TOML decoder")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.yml", "a: [1, 2\nb: c")

	_, err := Load(memfs, "/bad.yml")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestLoad_EmptyYAML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/empty.yaml", "")

	doc, err := Load(memfs, "/empty.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("expected empty map, got %v", doc)
	}
}

func TestMerge(t *testing.T) {
	dst := map[string]any{"a": 1, "b": 2}
	got := Merge(dst, map[string]any{"b": 3, "c": 4})

	want := map[string]any{"a": 1, "b": 3, "c": 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %v, want %v", got, want)
	}

	if got := Merge(nil, map[string]any{"x": true}); got["x"] != true {
		t.Errorf("Merge into nil = %v", got)
	}
}

func TestKeys(t *testing.T) {
	got := Keys(map[string]any{"b": 1, "a": 2, "c": 3})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keys = %v, want %v", got, want)
	}
}

func TestEnvLoader_VarName(t *testing.T) {
	l := NewEnvLoader("SVNSYNC_", nil)

	tests := []struct {
		key  string
		want string
	}{
		{"autorefresh", "SVNSYNC_AUTOREFRESH"},
		{"remoteChanges.checkFrequency", "SVNSYNC_REMOTE_CHANGES_CHECK_FREQUENCY"},
		{"sourceControl.hideUnversioned", "SVNSYNC_SOURCE_CONTROL_HIDE_UNVERSIONED"},
		{"update.ignoreExternals", "SVNSYNC_UPDATE_IGNORE_EXTERNALS"},
	}

	for _, tt := range tests {
		if got := l.VarName(tt.key); got != tt.want {
			t.Errorf("VarName(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestEnvLoader_Load(t *testing.T) {
	env := map[string]string{
		"SVNSYNC_AUTOREFRESH":                    "off",
		"SVNSYNC_REMOTE_CHANGES_CHECK_FREQUENCY": "0",
		"SVNSYNC_SOURCE_CONTROL_IGNORE":          "*.log, *.tmp",
	}
	l := NewEnvLoader("SVNSYNC_", []string{
		"autorefresh",
		"remoteChanges.checkFrequency",
		"sourceControl.ignore",
		"sourceControl.hideUnversioned",
	})
	l.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	got := l.Load()

	if got["autorefresh"] != false {
		t.Errorf("autorefresh = %#v", got["autorefresh"])
	}
	if got["remoteChanges.checkFrequency"] != int64(0) {
		t.Errorf("checkFrequency = %#v, want int64(0)", got["remoteChanges.checkFrequency"])
	}
	if !reflect.DeepEqual(got["sourceControl.ignore"], []any{"*.log", "*.tmp"}) {
		t.Errorf("ignore = %#v", got["sourceControl.ignore"])
	}
	if _, ok := got["sourceControl.hideUnversioned"]; ok {
		t.Error("unset variable should not appear")
	}
}

func TestParseEnvValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", ""},
		{"42", int64(42)},
		{"1", int64(1)},
		{"true", true},
		{"No", false},
		{`["a","b"]`, []any{"a", "b"}},
		{"prompt", "prompt"},
	}

	for _, tt := range tests {
		if got := parseEnvValue(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseEnvValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
