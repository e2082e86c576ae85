package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// EnvLoader reads overrides from environment variables.
//
// Each known key has a variable named after it: the prefix followed by the
// key upper-cased with dots and camel-case boundaries turned into
// underscores. With prefix "SVNSYNC_", "remoteChanges.checkFrequency" is
// read from SVNSYNC_REMOTE_CHANGES_CHECK_FREQUENCY.
type EnvLoader struct {
	prefix string
	keys   []string
	lookup func(string) (string, bool)
}

// NewEnvLoader creates a loader for keys under prefix.
func NewEnvLoader(prefix string, keys []string) *EnvLoader {
	return &EnvLoader{prefix: prefix, keys: keys, lookup: os.LookupEnv}
}

// Load returns a flat map holding only the keys whose variable is set.
func (l *EnvLoader) Load() map[string]any {
	out := make(map[string]any)
	for _, key := range l.keys {
		if val, ok := l.lookup(l.VarName(key)); ok {
			out[key] = parseEnvValue(val)
		}
	}
	return out
}

// VarName returns the environment variable consulted for key.
func (l *EnvLoader) VarName(key string) string {
	var b strings.Builder
	b.WriteString(l.prefix)
	for i, r := range key {
		switch {
		case r == '.':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 && key[i-1] != '.' {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteString(strings.ToUpper(string(r)))
		}
	}
	return b.String()
}

// parseEnvValue guesses the type of an environment value. Integers are
// tried before booleans so "0" stays a number.
func parseEnvValue(s string) any {
	if s == "" {
		return s
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}

	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}

	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		list := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		return list
	}

	return s
}
