package svn

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"
)

type xmlStatus struct {
	Targets []xmlTarget `xml:"target"`
}

type xmlTarget struct {
	Path        string          `xml:"path,attr"`
	Entries     []xmlEntry      `xml:"entry"`
	Changelists []xmlChangelist `xml:"changelist"`
}

type xmlChangelist struct {
	Name    string     `xml:"name,attr"`
	Entries []xmlEntry `xml:"entry"`
}

type xmlEntry struct {
	Path  string          `xml:"path,attr"`
	Wc    xmlWcStatus     `xml:"wc-status"`
	Repos *xmlReposStatus `xml:"repos-status"`
}

type xmlWcStatus struct {
	Item      string `xml:"item,attr"`
	Props     string `xml:"props,attr"`
	WcLocked  bool   `xml:"wc-locked,attr"`
	Switched  bool   `xml:"switched,attr"`
	MovedFrom string `xml:"moved-from,attr"`
}

type xmlReposStatus struct {
	Item  string   `xml:"item,attr"`
	Props string   `xml:"props,attr"`
	Lock  *xmlLock `xml:"lock"`
}

type xmlLock struct {
	Token   string `xml:"token"`
	Owner   string `xml:"owner"`
	Comment string `xml:"comment"`
	Created string `xml:"created"`
}

// parseStatusXML decodes the output of svn status --xml. Changelist
// membership is carried onto each entry; entry order follows the document.
func parseStatusXML(data []byte) ([]StatusEntry, error) {
	var doc xmlStatus
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: status: %v", ErrParse, err)
	}

	var entries []StatusEntry
	for _, target := range doc.Targets {
		for _, e := range target.Entries {
			entries = append(entries, e.toEntry(""))
		}
		for _, cl := range target.Changelists {
			for _, e := range cl.Entries {
				entries = append(entries, e.toEntry(cl.Name))
			}
		}
	}
	return entries, nil
}

func (e xmlEntry) toEntry(changelist string) StatusEntry {
	entry := StatusEntry{
		Path:       normalizePath(e.Path),
		Status:     Status(e.Wc.Item),
		Props:      Status(e.Wc.Props),
		Changelist: changelist,
		WcStatus: WcStatus{
			Locked:   e.Wc.WcLocked,
			Switched: e.Wc.Switched,
		},
	}
	if e.Wc.MovedFrom != "" {
		entry.Rename = normalizePath(e.Wc.MovedFrom)
	}
	if e.Repos != nil {
		rs := &ReposStatus{
			Item:  Status(e.Repos.Item),
			Props: Status(e.Repos.Props),
		}
		if e.Repos.Lock != nil {
			rs.Lock = &LockInfo{
				Token:   e.Repos.Lock.Token,
				Owner:   e.Repos.Lock.Owner,
				Comment: e.Repos.Lock.Comment,
				Created: e.Repos.Lock.Created,
			}
		}
		// svn reports repos-status for every entry with -u; only keep it
		// when the repository actually has something newer.
		if !rs.Item.Unchanged() || !rs.Props.Unchanged() || rs.Lock != nil {
			entry.ReposStatus = rs
		}
	}
	return entry
}

type xmlInfo struct {
	Entries []xmlInfoEntry `xml:"entry"`
}

type xmlInfoEntry struct {
	Path        string `xml:"path,attr"`
	Kind        string `xml:"kind,attr"`
	Revision    string `xml:"revision,attr"`
	URL         string `xml:"url"`
	RelativeURL string `xml:"relative-url"`
	Repository  struct {
		Root string `xml:"root"`
		UUID string `xml:"uuid"`
	} `xml:"repository"`
	WcInfo struct {
		WcRoot string `xml:"wcroot-abspath"`
	} `xml:"wc-info"`
	Commit struct {
		Author string `xml:"author"`
		Date   string `xml:"date"`
	} `xml:"commit"`
}

// parseInfoXML decodes the first entry of svn info --xml.
func parseInfoXML(data []byte) (*Info, error) {
	var doc xmlInfo
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: info: %v", ErrParse, err)
	}
	if len(doc.Entries) == 0 {
		return nil, fmt.Errorf("%w: info: no entry", ErrParse)
	}
	e := doc.Entries[0]
	return &Info{
		Path:        e.Path,
		Kind:        e.Kind,
		Revision:    e.Revision,
		URL:         e.URL,
		RelativeURL: e.RelativeURL,
		RootURL:     e.Repository.Root,
		UUID:        e.Repository.UUID,
		WcRoot:      e.WcInfo.WcRoot,
		Author:      e.Commit.Author,
		Date:        e.Commit.Date,
	}, nil
}

// branchFromRelativeURL derives a branch name from a repository-relative
// URL such as ^/branches/feature/src: trunk, branches/<name> and
// tags/<name> are recognised; anything else is returned as is.
func branchFromRelativeURL(rel string) string {
	rel = strings.TrimPrefix(rel, "^")
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return ""
	}

	parts := strings.Split(rel, "/")
	for i, p := range parts {
		switch p {
		case "trunk":
			return strings.Join(parts[:i+1], "/")
		case "branches", "tags":
			if i+1 < len(parts) {
				return strings.Join(parts[:i+2], "/")
			}
		}
	}
	return rel
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}
