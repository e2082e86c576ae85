// Package config holds svnsync settings.
//
// Settings come from three sources, later ones overriding earlier ones:
//
//  1. Built-in defaults (Defaults)
//  2. A TOML or YAML file
//  3. SVNSYNC_* environment variables
//
// Keys use the editor's dotted names, so a file may be written either way:
//
//	# svnsync.toml
//	autorefresh = true
//
//	[remoteChanges]
//	checkFrequency = 300
//
//	[sourceControl]
//	ignore = ["*.log"]
//	countUnversioned = false
//
// A Store holds the current Settings and implements Reader. Reload re-reads
// the sources and notifies subscribers with the keys that changed:
//
//	store.OnChange(func(c config.Change) {
//	    if c.Affects(config.KeyRemoteCheckFrequency) {
//	        // reschedule
//	    }
//	})
//
// # Sub-packages
//
//   - loader: file and environment loading
//   - notify: change notification
package config
