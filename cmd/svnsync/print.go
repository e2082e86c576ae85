package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/dshills/svnsync/internal/scm"
	"github.com/dshills/svnsync/internal/svn"
)

type groupView struct {
	label     string
	resources []scm.Resource
}

// statusView is a point-in-time copy of what status prints.
type statusView struct {
	root        string
	branch      string
	count       int
	remote      int
	incomplete  bool
	needCleanUp bool
	groups      []groupView
}

func snapshot(repo *scm.Repository) statusView {
	v := statusView{
		root:        repo.Root(),
		branch:      repo.CurrentBranch(),
		count:       repo.Count(),
		remote:      repo.RemoteChangedFiles(),
		incomplete:  repo.IsIncomplete(),
		needCleanUp: repo.NeedCleanUp(),
	}
	for _, g := range repo.Groups().Groups() {
		if g.Hidden() {
			continue
		}
		v.groups = append(v.groups, groupView{label: g.Label, resources: g.Resources()})
	}
	return v
}

var itemCodes = map[svn.Status]byte{
	svn.StatusModified:    'M',
	svn.StatusAdded:       'A',
	svn.StatusDeleted:     'D',
	svn.StatusReplaced:    'R',
	svn.StatusMerged:      'G',
	svn.StatusConflicted:  'C',
	svn.StatusUnversioned: '?',
	svn.StatusIgnored:     'I',
	svn.StatusExternal:    'X',
	svn.StatusMissing:     '!',
	svn.StatusIncomplete:  '!',
	svn.StatusObstructed:  '~',
}

// statusCode renders the two leading columns of svn status.
func statusCode(r scm.Resource) string {
	code := []byte{' ', ' '}
	if c, ok := itemCodes[r.Status]; ok {
		code[0] = c
	}
	switch r.Props {
	case svn.StatusModified:
		code[1] = 'M'
	case svn.StatusConflicted:
		code[1] = 'C'
	}
	return string(code)
}

func displayPath(root string, r scm.Resource) string {
	path := r.Path
	if rel, err := filepath.Rel(root, r.Path); err == nil {
		path = rel
	}
	if r.RenamedFrom != "" {
		from := r.RenamedFrom
		if rel, err := filepath.Rel(root, from); err == nil {
			from = rel
		}
		path += " (from " + from + ")"
	}
	return path
}

func writeStatus(w io.Writer, v statusView) {
	header := v.root
	if v.branch != "" {
		header += " [" + v.branch + "]"
	}
	fmt.Fprintf(w, "%s: %d pending", header, v.count)
	if v.remote > 0 {
		fmt.Fprintf(w, ", %d remote", v.remote)
	}
	fmt.Fprintln(w)
	if v.needCleanUp {
		fmt.Fprintln(w, "working copy is locked; run `svnsync run cleanup`")
	}
	if v.incomplete {
		fmt.Fprintln(w, "working copy is incomplete; run `svnsync run update`")
	}

	for _, g := range v.groups {
		fmt.Fprintf(w, "\n%s (%d)\n", g.label, len(g.resources))
		for _, r := range g.resources {
			fmt.Fprintf(w, "  %s %s\n", statusCode(r), displayPath(v.root, r))
		}
	}
}
