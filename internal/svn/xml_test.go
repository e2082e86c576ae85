package svn

import (
	"errors"
	"testing"
)

const statusFixture = `<?xml version="1.0" encoding="UTF-8"?>
<status>
<target path=".">
<entry path=".">
<wc-status item="normal" props="none" revision="12" wc-locked="true">
</wc-status>
</entry>
<entry path="a.txt">
<wc-status item="modified" props="none" revision="12">
<commit revision="10"><author>ann</author><date>2024-01-01T00:00:00.000000Z</date></commit>
</wc-status>
<repos-status item="modified" props="none"/>
</entry>
<entry path="libs">
<wc-status item="external" props="none">
</wc-status>
</entry>
<entry path="new.txt">
<wc-status item="added" props="none" revision="-1" moved-from="old.txt">
</wc-status>
</entry>
<entry path="sub\dir\x.c">
<wc-status item="normal" props="modified" revision="12" switched="true">
</wc-status>
<repos-status item="none" props="none"/>
</entry>
<changelist name="review">
<entry path="b.txt">
<wc-status item="modified" props="none" revision="12">
</wc-status>
<repos-status item="none" props="none">
<lock><token>opaquelocktoken:1</token><owner>bob</owner><comment>mine</comment><created>2024-01-02</created></lock>
</repos-status>
</entry>
</changelist>
</target>
</status>
`

func TestParseStatusXML(t *testing.T) {
	entries, err := parseStatusXML([]byte(statusFixture))
	if err != nil {
		t.Fatalf("parseStatusXML: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(entries))
	}

	byPath := make(map[string]StatusEntry)
	for _, e := range entries {
		byPath[e.Path] = e
	}

	root := byPath["."]
	if !root.WcStatus.Locked {
		t.Error("expected root to be wc-locked")
	}

	a := byPath["a.txt"]
	if a.Status != StatusModified {
		t.Errorf("expected a.txt modified, got %s", a.Status)
	}
	if a.ReposStatus == nil || a.ReposStatus.Item != StatusModified {
		t.Errorf("expected a.txt remote modified, got %+v", a.ReposStatus)
	}

	if byPath["libs"].Status != StatusExternal {
		t.Errorf("expected libs external, got %s", byPath["libs"].Status)
	}

	if got := byPath["new.txt"].Rename; got != "old.txt" {
		t.Errorf("expected rename from old.txt, got %q", got)
	}

	x, ok := byPath["sub/dir/x.c"]
	if !ok {
		t.Fatalf("expected backslash path to be normalized, have %v", keys(byPath))
	}
	if !x.WcStatus.Switched {
		t.Error("expected sub/dir/x.c switched")
	}
	if x.Props != StatusModified {
		t.Errorf("expected props modified, got %s", x.Props)
	}
	if x.ReposStatus != nil {
		t.Error("unchanged repos-status should be dropped")
	}

	b := byPath["b.txt"]
	if b.Changelist != "review" {
		t.Errorf("expected changelist review, got %q", b.Changelist)
	}
	if b.ReposStatus == nil || b.ReposStatus.Lock == nil || b.ReposStatus.Lock.Owner != "bob" {
		t.Errorf("expected remote lock owned by bob, got %+v", b.ReposStatus)
	}
}

func TestParseStatusXML_Invalid(t *testing.T) {
	_, err := parseStatusXML([]byte("<status><target"))
	if !errors.Is(err, ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}

func TestParseStatusXML_Empty(t *testing.T) {
	entries, err := parseStatusXML([]byte(`<status><target path="."></target></status>`))
	if err != nil {
		t.Fatalf("parseStatusXML: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestParseInfoXML(t *testing.T) {
	const fixture = `<?xml version="1.0" encoding="UTF-8"?>
<info>
<entry kind="dir" path="." revision="12">
<url>https://svn.example.com/repo/branches/feature-x</url>
<relative-url>^/branches/feature-x</relative-url>
<repository>
<root>https://svn.example.com/repo</root>
<uuid>13f79535-47bb-0310-9956-ffa450edef68</uuid>
</repository>
<wc-info>
<wcroot-abspath>/home/ann/wc</wcroot-abspath>
</wc-info>
<commit revision="11"><author>ann</author><date>2024-01-01</date></commit>
</entry>
</info>`

	info, err := parseInfoXML([]byte(fixture))
	if err != nil {
		t.Fatalf("parseInfoXML: %v", err)
	}
	if info.RootURL != "https://svn.example.com/repo" {
		t.Errorf("unexpected root url %q", info.RootURL)
	}
	if info.UUID != "13f79535-47bb-0310-9956-ffa450edef68" {
		t.Errorf("unexpected uuid %q", info.UUID)
	}
	if info.WcRoot != "/home/ann/wc" {
		t.Errorf("unexpected wc root %q", info.WcRoot)
	}
	if info.Revision != "12" || info.Author != "ann" {
		t.Errorf("unexpected revision/author %q/%q", info.Revision, info.Author)
	}
}

func TestParseInfoXML_NoEntry(t *testing.T) {
	_, err := parseInfoXML([]byte(`<info></info>`))
	if !errors.Is(err, ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}

func TestBranchFromRelativeURL(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"^/trunk", "trunk"},
		{"^/trunk/src/main", "trunk"},
		{"^/branches/feature-x", "branches/feature-x"},
		{"^/branches/feature-x/docs", "branches/feature-x"},
		{"^/tags/v1.0", "tags/v1.0"},
		{"^/project/trunk/src", "project/trunk"},
		{"^/custom/layout", "custom/layout"},
		{"^/", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := branchFromRelativeURL(tt.rel); got != tt.want {
				t.Errorf("branchFromRelativeURL(%q) = %q, want %q", tt.rel, got, tt.want)
			}
		})
	}
}

func keys(m map[string]StatusEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
