package svn

// Status is the state of an item or of its properties as reported by
// svn status.
type Status string

const (
	StatusNormal      Status = "normal"
	StatusNone        Status = "none"
	StatusModified    Status = "modified"
	StatusAdded       Status = "added"
	StatusDeleted     Status = "deleted"
	StatusReplaced    Status = "replaced"
	StatusMerged      Status = "merged"
	StatusConflicted  Status = "conflicted"
	StatusUnversioned Status = "unversioned"
	StatusIgnored     Status = "ignored"
	StatusIncomplete  Status = "incomplete"
	StatusExternal    Status = "external"
	StatusMissing     Status = "missing"
	StatusObstructed  Status = "obstructed"
)

// Unchanged reports whether s carries no local modification.
func (s Status) Unchanged() bool {
	return s == StatusNormal || s == StatusNone || s == ""
}

// WcStatus holds working-copy sub-state flags of an entry.
type WcStatus struct {
	// Locked means the working copy directory is locked by an
	// unfinished operation (svn cleanup clears it).
	Locked bool

	// Switched means the item is switched relative to its parent.
	Switched bool
}

// LockInfo describes a repository lock on an item.
type LockInfo struct {
	Token   string
	Owner   string
	Comment string
	Created string
}

// ReposStatus is the remote sub-record of an entry, present only when the
// status query checked the repository for updates.
type ReposStatus struct {
	Item  Status
	Props Status
	Lock  *LockInfo
}

// StatusEntry is one raw status record for a path.
type StatusEntry struct {
	// Path is relative to the working-copy root, using forward slashes.
	// The root itself is ".".
	Path string

	Status Status
	Props  Status

	WcStatus WcStatus

	// Rename is the path this item was moved from, if any.
	Rename string

	// ReposStatus is nil unless remote changes were requested.
	ReposStatus *ReposStatus

	// Changelist is empty when the item belongs to none.
	Changelist string

	// RepositoryUUID is set for external definitions when known.
	RepositoryUUID string
}

// StatusOptions selects what a status query reports.
type StatusOptions struct {
	IncludeIgnored     bool
	IncludeExternals   bool
	CheckRemoteChanges bool
}

// Credential is an account/secret pair for a repository.
type Credential struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// IsZero reports whether no account is set.
func (c Credential) IsZero() bool {
	return c.Account == ""
}

// Info is the subset of svn info the engine consumes.
type Info struct {
	Path        string
	Kind        string
	Revision    string
	URL         string
	RelativeURL string
	RootURL     string
	UUID        string
	WcRoot      string
	Author      string
	Date        string
}

// ResolveAction is the --accept argument of svn resolve.
type ResolveAction string

const (
	ResolveWorking        ResolveAction = "working"
	ResolveBase           ResolveAction = "base"
	ResolveMineFull       ResolveAction = "mine-full"
	ResolveTheirsFull     ResolveAction = "theirs-full"
	ResolveMineConflict   ResolveAction = "mine-conflict"
	ResolveTheirsConflict ResolveAction = "theirs-conflict"
)
