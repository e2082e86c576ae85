// Package svn is the Subversion side of svnsync: the raw status data model,
// the structured error taxonomy, and a Client that drives the svn command
// line tool.
//
// # Data Model
//
// A status query yields a flat, unordered list of StatusEntry values, one
// per path. Entries are immutable once returned; callers categorize them
// without modifying them.
//
//	c := svn.NewClient(svn.ClientConfig{Root: "/path/to/wc"})
//	entries, err := c.GetStatus(ctx, svn.StatusOptions{IncludeIgnored: true})
//
// # Errors
//
// Failed invocations return *Error, which carries the stable svn error code
// (for example E155004). Use CodeOf, IsLocked, IsAuthFailed and
// IsNotRepository rather than matching message text:
//
//	if svn.IsLocked(err) {
//	    // the working copy is locked by another process
//	}
//
// Errors are never rewritten on their way up; the code survives wrapping
// with fmt.Errorf("%w").
package svn
