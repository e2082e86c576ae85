package logging

import "regexp"

type redaction struct {
	re   *regexp.Regexp
	repl string
}

const secretKeys = `password|passwd|pwd|token|secret|api[_-]?key|auth|credential`

// Order matters: URLs and credentials go before paths so that a URL is not
// half-consumed as a path first.
var redactions = []redaction{
	{regexp.MustCompile(`(?i)\b(?:https?|svn(?:\+ssh)?|file)://[^\s"'<>]+`), "[DOMAIN]"},
	{regexp.MustCompile(`(?i)([?&](?:` + secretKeys + `)\s*=)[^\s&;]+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)\b((?:` + secretKeys + `)\s*[=:]\s*)[^\s,;&]+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)(--password\s+)\S+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9._\-~+/=]+`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`Basic\s+[A-Za-z0-9+/=]+`), "Basic [REDACTED]"},
	{regexp.MustCompile(`"[A-Za-z0-9+/=_\-]{32,}"`), `"[REDACTED]"`},
	{regexp.MustCompile(`'[A-Za-z0-9+/=_\-]{32,}'`), `'[REDACTED]'`},
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), "[UUID]"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[AWS_KEY]"},
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`(?i)\b(?:[0-9a-f]{1,4}:){2,7}[0-9a-f]{0,4}\b`), "[IP]"},
	{regexp.MustCompile(`(?i)\b[a-z]:\\(?:[^\\/:*?"<>|\r\n\s]+\\)*[^\\/:*?"<>|\r\n\s]*`), "[PATH]"},
}

// unixPath captures an absolute path preceded by a delimiter so the
// delimiter survives the replacement.
var unixPath = regexp.MustCompile(`(?:^|[\s'"(=])(/(?:[A-Za-z0-9._\-~]+/)*[A-Za-z0-9._\-~]+)`)

// Sanitize redacts paths, URLs, IP addresses, credentials, tokens, UUIDs,
// access keys and email addresses from s.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	for _, r := range redactions {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return replaceGroup(unixPath, s, "[PATH]")
}

// replaceGroup replaces only the first capture group of every match,
// keeping the leading delimiter.
func replaceGroup(re *regexp.Regexp, s, repl string) string {
	idx := re.FindAllStringSubmatchIndex(s, -1)
	if idx == nil {
		return s
	}
	out := make([]byte, 0, len(s))
	last := 0
	for _, m := range idx {
		out = append(out, s[last:m[2]]...)
		out = append(out, repl...)
		last = m[3]
	}
	out = append(out, s[last:]...)
	return string(out)
}
