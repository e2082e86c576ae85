package config

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// Setting keys.
const (
	KeyAutoRefresh                 = "autorefresh"
	KeyUpdateIgnoreExternals       = "update.ignoreExternals"
	KeyDeleteAction                = "delete.actionForDeletedFiles"
	KeyDeleteIgnoredRules          = "delete.ignoredRulesForDeletedFiles"
	KeyRemoteCheckFrequency        = "remoteChanges.checkFrequency"
	KeyCombineExternalIfSameServer = "sourceControl.combineExternalIfSameServer"
	KeyHideUnversioned             = "sourceControl.hideUnversioned"
	KeyIgnore                      = "sourceControl.ignore"
	KeyIgnoreOnStatusCount         = "sourceControl.ignoreOnStatusCount"
	KeyCountUnversioned            = "sourceControl.countUnversioned"
	KeyFilesExclude                = "files.exclude"
	KeyLogLevel                    = "log.level"
	KeyLogFormat                   = "log.format"
)

// DeleteAction is what happens to files deleted outside svn.
type DeleteAction string

const (
	DeleteActionNone   DeleteAction = "none"
	DeleteActionRemove DeleteAction = "remove"
	DeleteActionPrompt DeleteAction = "prompt"
)

// Settings is one immutable snapshot of every recognised key.
type Settings struct {
	AutoRefresh           bool
	UpdateIgnoreExternals bool

	DeleteAction       DeleteAction
	DeleteIgnoredRules []string

	// RemoteCheckFrequency is in seconds; 0 disables remote polling.
	RemoteCheckFrequency int

	CombineExternalIfSameServer bool
	HideUnversioned             bool
	Ignore                      []string
	IgnoreOnStatusCount         []string
	CountUnversioned            bool

	// FilesExclude maps a glob to whether it is active, like the editor's
	// files.exclude. Inactive globs become negations.
	FilesExclude map[string]bool

	LogLevel  string
	LogFormat string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		AutoRefresh:           true,
		UpdateIgnoreExternals: true,
		DeleteAction:          DeleteActionPrompt,
		DeleteIgnoredRules:    []string{},
		RemoteCheckFrequency:  300,
		Ignore:                []string{},
		IgnoreOnStatusCount:   []string{"ignore-on-commit"},
		FilesExclude: map[string]bool{
			"**/.svn": true,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Keys returns every recognised key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExcludeGlobs returns FilesExclude as a glob list. Inactive entries come
// last, prefixed with "!", so they override the active ones.
func (s Settings) ExcludeGlobs() []string {
	var on, off []string
	for g, active := range s.FilesExclude {
		if active {
			on = append(on, g)
		} else {
			off = append(off, "!"+g)
		}
	}
	sort.Strings(on)
	sort.Strings(off)
	return append(on, off...)
}

// Value returns the setting for key in its loaded form.
func (s Settings) Value(key string) (any, bool) {
	get, ok := getters[key]
	if !ok {
		return nil, false
	}
	return get(&s), true
}

// Set assigns raw to key, converting from the loosely typed values decoders
// produce (int64, []any, map[string]any, ...).
func (s *Settings) Set(key string, raw any) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return set(s, key, raw)
}

// Diff returns the keys whose values differ between s and other, sorted.
func (s Settings) Diff(other Settings) []string {
	var changed []string
	for _, key := range Keys() {
		a, _ := s.Value(key)
		b, _ := other.Value(key)
		if !equalValue(a, b) {
			changed = append(changed, key)
		}
	}
	return changed
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.DeleteIgnoredRules = slices.Clone(s.DeleteIgnoredRules)
	c.Ignore = slices.Clone(s.Ignore)
	c.IgnoreOnStatusCount = slices.Clone(s.IgnoreOnStatusCount)
	if s.FilesExclude != nil {
		c.FilesExclude = make(map[string]bool, len(s.FilesExclude))
		for k, v := range s.FilesExclude {
			c.FilesExclude[k] = v
		}
	}
	return c
}

type setter func(s *Settings, key string, raw any) error

var setters = map[string]setter{
	KeyAutoRefresh:                 boolSetter(func(s *Settings) *bool { return &s.AutoRefresh }),
	KeyUpdateIgnoreExternals:       boolSetter(func(s *Settings) *bool { return &s.UpdateIgnoreExternals }),
	KeyCombineExternalIfSameServer: boolSetter(func(s *Settings) *bool { return &s.CombineExternalIfSameServer }),
	KeyHideUnversioned:             boolSetter(func(s *Settings) *bool { return &s.HideUnversioned }),
	KeyCountUnversioned:            boolSetter(func(s *Settings) *bool { return &s.CountUnversioned }),
	KeyDeleteIgnoredRules:          listSetter(func(s *Settings) *[]string { return &s.DeleteIgnoredRules }),
	KeyIgnore:                      listSetter(func(s *Settings) *[]string { return &s.Ignore }),
	KeyIgnoreOnStatusCount:         listSetter(func(s *Settings) *[]string { return &s.IgnoreOnStatusCount }),
	KeyLogLevel: enumSetter(func(s *Settings) *string { return &s.LogLevel },
		"debug", "info", "warn", "error"),
	KeyLogFormat: enumSetter(func(s *Settings) *string { return &s.LogFormat },
		"text", "json"),

	KeyDeleteAction: func(s *Settings, key string, raw any) error {
		str, ok := raw.(string)
		if !ok {
			return &ValidationError{Key: key, Value: raw, Err: ErrTypeMismatch}
		}
		switch a := DeleteAction(strings.ToLower(str)); a {
		case DeleteActionNone, DeleteActionRemove, DeleteActionPrompt:
			s.DeleteAction = a
			return nil
		}
		return &ValidationError{Key: key, Value: raw, Err: ErrValidationFailed}
	},

	KeyRemoteCheckFrequency: func(s *Settings, key string, raw any) error {
		n, ok := toInt(raw)
		if !ok {
			return &ValidationError{Key: key, Value: raw, Err: ErrTypeMismatch}
		}
		if n < 0 {
			return &ValidationError{Key: key, Value: raw, Err: ErrValidationFailed}
		}
		s.RemoteCheckFrequency = n
		return nil
	},

	KeyFilesExclude: func(s *Settings, key string, raw any) error {
		m, ok := raw.(map[string]any)
		if !ok {
			return &ValidationError{Key: key, Value: raw, Err: ErrTypeMismatch}
		}
		out := make(map[string]bool, len(m))
		for g, v := range m {
			b, ok := v.(bool)
			if !ok {
				return &ValidationError{Key: key + "." + g, Value: v, Err: ErrTypeMismatch}
			}
			out[g] = b
		}
		s.FilesExclude = out
		return nil
	},
}

var getters = map[string]func(s *Settings) any{
	KeyAutoRefresh:                 func(s *Settings) any { return s.AutoRefresh },
	KeyUpdateIgnoreExternals:       func(s *Settings) any { return s.UpdateIgnoreExternals },
	KeyDeleteAction:                func(s *Settings) any { return s.DeleteAction },
	KeyDeleteIgnoredRules:          func(s *Settings) any { return s.DeleteIgnoredRules },
	KeyRemoteCheckFrequency:        func(s *Settings) any { return s.RemoteCheckFrequency },
	KeyCombineExternalIfSameServer: func(s *Settings) any { return s.CombineExternalIfSameServer },
	KeyHideUnversioned:             func(s *Settings) any { return s.HideUnversioned },
	KeyIgnore:                      func(s *Settings) any { return s.Ignore },
	KeyIgnoreOnStatusCount:         func(s *Settings) any { return s.IgnoreOnStatusCount },
	KeyCountUnversioned:            func(s *Settings) any { return s.CountUnversioned },
	KeyFilesExclude:                func(s *Settings) any { return s.FilesExclude },
	KeyLogLevel:                    func(s *Settings) any { return s.LogLevel },
	KeyLogFormat:                   func(s *Settings) any { return s.LogFormat },
}

func boolSetter(field func(*Settings) *bool) setter {
	return func(s *Settings, key string, raw any) error {
		switch v := raw.(type) {
		case bool:
			*field(s) = v
		case int64:
			// SVNSYNC_AUTOREFRESH=0 arrives as a number.
			if v != 0 && v != 1 {
				return &ValidationError{Key: key, Value: raw, Err: ErrValidationFailed}
			}
			*field(s) = v == 1
		default:
			return &ValidationError{Key: key, Value: raw, Err: ErrTypeMismatch}
		}
		return nil
	}
}

func listSetter(field func(*Settings) *[]string) setter {
	return func(s *Settings, key string, raw any) error {
		var out []string
		switch v := raw.(type) {
		case []string:
			out = slices.Clone(v)
		case []any:
			out = make([]string, 0, len(v))
			for _, item := range v {
				str, ok := item.(string)
				if !ok {
					return &ValidationError{Key: key, Value: raw, Err: ErrTypeMismatch}
				}
				out = append(out, str)
			}
		case string:
			out = []string{v}
		default:
			return &ValidationError{Key: key, Value: raw, Err: ErrTypeMismatch}
		}
		*field(s) = out
		return nil
	}
}

func enumSetter(field func(*Settings) *string, allowed ...string) setter {
	return func(s *Settings, key string, raw any) error {
		str, ok := raw.(string)
		if !ok {
			return &ValidationError{Key: key, Value: raw, Err: ErrTypeMismatch}
		}
		str = strings.ToLower(str)
		if !slices.Contains(allowed, str) {
			return &ValidationError{Key: key, Value: raw, Err: ErrValidationFailed}
		}
		*field(s) = str
		return nil
	}
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, false
		}
		return int(v), true
	case uint64:
		if v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

func equalValue(a, b any) bool {
	switch av := a.(type) {
	case []string:
		bv, _ := b.([]string)
		return slices.Equal(av, bv)
	case map[string]bool:
		bv, _ := b.(map[string]bool)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if w, ok := bv[k]; !ok || w != v {
				return false
			}
		}
		return true
	}
	return a == b
}
