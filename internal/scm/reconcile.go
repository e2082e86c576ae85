package scm

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dshills/svnsync/internal/glob"
	"github.com/dshills/svnsync/internal/svn"
)

// Resource is one path shown in a group. Resources are values built fresh
// by every reconciliation pass.
type Resource struct {
	// Path is absolute, using the OS separator.
	Path string

	Status svn.Status
	Props  svn.Status

	// RenamedFrom is the absolute path the item was moved from, if any.
	RenamedFrom string

	// Remote marks a resource built from the repository side of a status
	// query rather than the working copy.
	Remote bool
}

// Input is the configuration a reconciliation pass depends on.
type Input struct {
	// Root is the directory status paths are relative to.
	Root string

	// CombineExternal drops externals hosted in the same repository, so
	// their contents are reported like any other path.
	CombineExternal bool
	RepositoryUUID  string

	ExcludeGlobs    []string
	IgnoreGlobs     []string
	HideUnversioned bool
}

// Result is the categorized output of Reconcile.
type Result struct {
	Changes     []Resource
	Conflicts   []Resource
	Unversioned []Resource

	// Changelists maps a changelist name to its resources. ChangelistOrder
	// lists the names in the order they first appeared in the snapshot.
	Changelists     map[string][]Resource
	ChangelistOrder []string

	RemoteChanges []Resource

	StatusIgnored  []svn.StatusEntry
	StatusExternal []svn.StatusEntry

	IsIncomplete bool
	NeedCleanUp  bool
}

// tempFile matches the files svn leaves beside a conflicted base file.
var tempFile = regexp.MustCompile(`(.+?)\.(mine|working|merge-\w+\.r\d+|r\d+)$`)

// HasExternals reports whether entries contain an external definition.
func HasExternals(entries []svn.StatusEntry) bool {
	for _, e := range entries {
		if e.Status == svn.StatusExternal {
			return true
		}
	}
	return false
}

// Reconcile sorts a status snapshot into categories. It does not modify
// entries and keeps no state between calls.
//
// The rules apply in order and the first that matches wins:
//
//  1. externals, and everything below them, are set aside
//  2. the root entry sets IsIncomplete and NeedCleanUp
//  3. locked, switched and incomplete entries are skipped
//  4. entries matching an exclude glob are skipped
//  5. a remote sub-record yields a Remote resource
//  6. the entry is dropped if unchanged, otherwise filed as ignored,
//     conflicted, changelist member, unversioned, or a plain change
func Reconcile(entries []svn.StatusEntry, in Input) Result {
	res := Result{Changelists: make(map[string][]Resource)}

	for _, e := range entries {
		if e.Status != svn.StatusExternal {
			continue
		}
		if in.CombineExternal && in.RepositoryUUID != "" && e.RepositoryUUID == in.RepositoryUUID {
			continue
		}
		res.StatusExternal = append(res.StatusExternal, e)
	}

	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.Path] = true
	}

	exclude := glob.Compile(in.ExcludeGlobs)
	ignore := glob.Compile(in.IgnoreGlobs)

	for _, e := range entries {
		if e.Status == svn.StatusExternal || underExternal(res.StatusExternal, e.Path) {
			continue
		}

		if e.Path == "." {
			res.IsIncomplete = res.IsIncomplete || e.Status == svn.StatusIncomplete
			res.NeedCleanUp = e.WcStatus.Locked
		}
		if e.WcStatus.Switched {
			res.IsIncomplete = true
		}

		// svn reports every locked item as normal right after a commit.
		if e.WcStatus.Locked || e.WcStatus.Switched || e.Status == svn.StatusIncomplete {
			continue
		}

		if exclude.Match(e.Path) {
			continue
		}

		abs := filepath.Join(in.Root, filepath.FromSlash(e.Path))

		if e.ReposStatus != nil {
			res.RemoteChanges = append(res.RemoteChanges, Resource{
				Path:   abs,
				Status: e.ReposStatus.Item,
				Props:  e.ReposStatus.Props,
				Remote: true,
			})
		}

		r := Resource{Path: abs, Status: e.Status, Props: e.Props}
		if e.Rename != "" {
			r.RenamedFrom = filepath.Join(in.Root, filepath.FromSlash(e.Rename))
		}

		switch {
		case e.Status.Unchanged() && e.Props.Unchanged() && e.Changelist == "":
		case e.Status == svn.StatusIgnored:
			res.StatusIgnored = append(res.StatusIgnored, e)
		case e.Status == svn.StatusConflicted:
			res.Conflicts = append(res.Conflicts, r)
		case e.Changelist != "":
			// Changelist membership wins over the unversioned category.
			if _, ok := res.Changelists[e.Changelist]; !ok {
				res.ChangelistOrder = append(res.ChangelistOrder, e.Changelist)
			}
			res.Changelists[e.Changelist] = append(res.Changelists[e.Changelist], r)
		case e.Status == svn.StatusUnversioned:
			if in.HideUnversioned {
				continue
			}
			if m := tempFile.FindStringSubmatch(e.Path); m != nil && known[m[1]] {
				continue
			}
			if ignore.Match("/" + e.Path) {
				continue
			}
			res.Unversioned = append(res.Unversioned, r)
		default:
			res.Changes = append(res.Changes, r)
		}
	}

	return res
}

// underExternal reports whether p is an external path or below one.
func underExternal(externals []svn.StatusEntry, p string) bool {
	for _, ext := range externals {
		if isDescendant(ext.Path, p) {
			return true
		}
	}
	return false
}

// isDescendant reports whether descendant equals parent or lies below it.
// Both are slash-separated relative paths.
func isDescendant(parent, descendant string) bool {
	if parent == descendant {
		return true
	}
	if !strings.HasSuffix(parent, "/") {
		parent += "/"
	}
	return strings.HasPrefix(descendant, parent)
}
