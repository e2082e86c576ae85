// Package scm keeps a Subversion working copy's source-control state in
// sync with the svn client.
//
// A Repository serializes operations against the client, retries lock and
// authorization failures, and after every mutating operation reconciles a
// fresh status snapshot into ordered resource groups:
//
//	changes, conflicts, unversioned, <changelists...>, remoteChanges
//
// Triggers come from three places: explicit calls (Status, Commit, ...),
// the RemotePoller timer, and file system events passed to HandleFileEvent
// (usually from internal/watcher). Observers subscribe to Events.
//
// Status reconciliation itself is the pure function Reconcile; the
// GroupManager owns group lifecycle and display order.
package scm
