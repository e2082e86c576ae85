package scm

import (
	"slices"
	"sort"
	"sync"
)

// Group ids.
const (
	GroupChanges       = "changes"
	GroupConflicts     = "conflicts"
	GroupUnversioned   = "unversioned"
	GroupRemoteChanges = "remotechanges"

	changelistPrefix = "changelist-"
)

// ResourceGroup is an ordered bucket of resources. Display order across
// groups is creation order; a group that must move later is disposed and
// recreated under the same id.
type ResourceGroup struct {
	ID            string
	Label         string
	HideWhenEmpty bool

	// Changelist is the changelist name for changelist groups.
	Changelist string

	seq uint64

	mu        sync.RWMutex
	resources []Resource
	disposed  bool
}

// Seq is the group's creation sequence number.
func (g *ResourceGroup) Seq() uint64 {
	return g.seq
}

// Resources returns a copy of the group's contents.
func (g *ResourceGroup) Resources() []Resource {
	if g == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.resources)
}

// Len returns the number of resources.
func (g *ResourceGroup) Len() int {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.resources)
}

// Hidden reports whether the group should not be displayed.
func (g *ResourceGroup) Hidden() bool {
	return g.HideWhenEmpty && g.Len() == 0
}

// Disposed reports whether the group was removed.
func (g *ResourceGroup) Disposed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.disposed
}

func (g *ResourceGroup) set(resources []Resource) {
	g.mu.Lock()
	g.resources = resources
	g.mu.Unlock()
}

func (g *ResourceGroup) dispose() {
	g.mu.Lock()
	g.disposed = true
	g.mu.Unlock()
}

// GroupManager owns the resource groups of one repository and keeps them
// in display order: changes, conflicts, changelists in creation order,
// unversioned, remote changes.
type GroupManager struct {
	mu  sync.RWMutex
	seq uint64

	changes       *ResourceGroup
	conflicts     *ResourceGroup
	unversioned   *ResourceGroup
	remoteChanges *ResourceGroup
	changelists   map[string]*ResourceGroup
}

// NewGroupManager creates the static groups. The remote changes group is
// created by the first Apply.
func NewGroupManager() *GroupManager {
	m := &GroupManager{changelists: make(map[string]*ResourceGroup)}
	m.changes = m.create(GroupChanges, "Changes")
	m.conflicts = m.create(GroupConflicts, "Conflicts")
	m.unversioned = m.create(GroupUnversioned, "Unversioned")
	return m
}

func (m *GroupManager) create(id, label string) *ResourceGroup {
	m.seq++
	return &ResourceGroup{ID: id, Label: label, HideWhenEmpty: true, seq: m.seq}
}

// recreate disposes g and returns a new group with the same id, label and
// contents at the end of the display order.
func (m *GroupManager) recreate(g *ResourceGroup, id, label string) *ResourceGroup {
	var carried []Resource
	if g != nil {
		g.mu.RLock()
		carried = g.resources
		g.mu.RUnlock()
		g.dispose()
	}
	ng := m.create(id, label)
	ng.resources = carried
	return ng
}

// Apply replaces group contents with res and returns the badge count:
// changes, conflicts and changelists not named in ignoreOnCount, plus
// unversioned when countUnversioned is set.
//
// Changelist groups left empty by res are disposed. When the set of
// changelist groups changes, the unversioned and remote changes groups are
// recreated so they stay after the changelists. Remote changes keep their
// contents here; see SetRemoteChanges.
func (m *GroupManager) Apply(res Result, ignoreOnCount []string, countUnversioned bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changes.set(res.Changes)
	m.conflicts.set(res.Conflicts)
	count := len(res.Changes) + len(res.Conflicts)

	membership := false
	for name, g := range m.changelists {
		if len(res.Changelists[name]) == 0 {
			g.set(nil)
			g.dispose()
			delete(m.changelists, name)
			membership = true
		}
	}

	for _, name := range res.ChangelistOrder {
		resources := res.Changelists[name]
		if len(resources) == 0 {
			continue
		}
		g, ok := m.changelists[name]
		if !ok {
			g = m.create(changelistPrefix+name, `Changelist "`+name+`"`)
			g.Changelist = name
			m.changelists[name] = g
			membership = true
		}
		g.set(resources)
		if !slices.Contains(ignoreOnCount, name) {
			count += len(resources)
		}
	}

	if membership {
		m.unversioned = m.recreate(m.unversioned, GroupUnversioned, "Unversioned")
	}
	m.unversioned.set(res.Unversioned)
	if countUnversioned {
		count += len(res.Unversioned)
	}

	if m.remoteChanges == nil || membership {
		m.remoteChanges = m.recreate(m.remoteChanges, GroupRemoteChanges, "Remote Changes")
	}

	return count
}

// SetRemoteChanges replaces the remote changes group contents and returns
// the new size.
func (m *GroupManager) SetRemoteChanges(resources []Resource) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.remoteChanges == nil {
		m.remoteChanges = m.create(GroupRemoteChanges, "Remote Changes")
	}
	m.remoteChanges.set(resources)
	return len(resources)
}

// DisposeRemoteChanges removes the remote changes group. The next Apply
// recreates it empty.
func (m *GroupManager) DisposeRemoteChanges() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.remoteChanges != nil {
		m.remoteChanges.dispose()
		m.remoteChanges = nil
	}
}

// ClearAll empties every working-copy group. Remote changes are kept.
func (m *GroupManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changes.set(nil)
	m.conflicts.set(nil)
	m.unversioned.set(nil)
	for _, g := range m.changelists {
		g.set(nil)
	}
}

// Changes returns the changes group.
func (m *GroupManager) Changes() *ResourceGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changes
}

// Conflicts returns the conflicts group.
func (m *GroupManager) Conflicts() *ResourceGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conflicts
}

// Unversioned returns the current unversioned group.
func (m *GroupManager) Unversioned() *ResourceGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unversioned
}

// RemoteChanges returns the remote changes group, or nil when disposed.
func (m *GroupManager) RemoteChanges() *ResourceGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.remoteChanges
}

// Changelist returns the group for name.
func (m *GroupManager) Changelist(name string) (*ResourceGroup, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.changelists[name]
	return g, ok
}

// Changelists returns the changelist groups in display order.
func (m *GroupManager) Changelists() []*ResourceGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups := make([]*ResourceGroup, 0, len(m.changelists))
	for _, g := range m.changelists {
		groups = append(groups, g)
	}
	sortBySeq(groups)
	return groups
}

// Groups returns every live group in display order.
func (m *GroupManager) Groups() []*ResourceGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := []*ResourceGroup{m.changes, m.conflicts, m.unversioned}
	for _, g := range m.changelists {
		groups = append(groups, g)
	}
	if m.remoteChanges != nil {
		groups = append(groups, m.remoteChanges)
	}
	sortBySeq(groups)
	return groups
}

// Find returns the working-copy resource for path, searching changes,
// conflicts, unversioned and the changelists.
func (m *GroupManager) Find(path string) (Resource, bool) {
	for _, g := range m.Groups() {
		if g.ID == GroupRemoteChanges {
			continue
		}
		for _, r := range g.Resources() {
			if r.Path == path {
				return r, true
			}
		}
	}
	return Resource{}, false
}

func sortBySeq(groups []*ResourceGroup) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].seq < groups[j].seq })
}
