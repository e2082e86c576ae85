package svn

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Stable svn error codes the engine reacts to.
const (
	CodeRepositoryIsLocked     = "E155004"
	CodeNotASvnRepository      = "E155007"
	CodeAuthorizationFailed    = "E170001"
	CodeNoMoreCredentials      = "E215004"
	CodeNotShareCommonAncestry = "E195012"
	CodeWorkingCopyIsTooOld    = "E155036"
	CodeUnableToConnect        = "E170013"
	CodeNetworkTimeout         = "E175012"
)

var (
	// ErrNotWorkingCopy indicates the root does not contain a working copy.
	ErrNotWorkingCopy = errors.New("not a working copy")

	// ErrSvnNotFound indicates the svn executable could not be located.
	ErrSvnNotFound = errors.New("svn executable not found")

	// ErrParse indicates svn produced output that could not be decoded.
	ErrParse = errors.New("parse svn output")
)

// Error is a failed svn invocation.
type Error struct {
	// Code is the svn error code (E######), empty when none was found.
	Code string

	ExitCode int
	Command  string
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("svn %s: %s: %s", e.Command, e.Code, firstLine(msg))
	}
	return fmt.Sprintf("svn %s: %s", e.Command, firstLine(msg))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns Code.
func (e *Error) ErrorCode() string { return e.Code }

// ExitStatus returns ExitCode.
func (e *Error) ExitStatus() int { return e.ExitCode }

// CommandName returns Command.
func (e *Error) CommandName() string { return e.Command }

// CodeOf returns the svn error code carried by err, or "".
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsLocked reports a working-copy lock held by another operation.
func IsLocked(err error) bool {
	return CodeOf(err) == CodeRepositoryIsLocked
}

// IsAuthFailed reports a rejected or missing credential.
func IsAuthFailed(err error) bool {
	switch CodeOf(err) {
	case CodeAuthorizationFailed, CodeNoMoreCredentials:
		return true
	}
	return false
}

// IsNotRepository reports that the path is no longer a working copy.
func IsNotRepository(err error) bool {
	return CodeOf(err) == CodeNotASvnRepository
}

var codePattern = regexp.MustCompile(`E\d{6}`)

// detectCode extracts the most relevant error code from stderr. Auth codes
// win over anything else on the same output because svn often reports a
// connection error after the credential failure that caused it.
func detectCode(stderr string) string {
	codes := codePattern.FindAllString(stderr, -1)
	for _, c := range codes {
		if c == CodeAuthorizationFailed || c == CodeNoMoreCredentials {
			return c
		}
	}
	if strings.Contains(stderr, "No more credentials or we tried too many times") {
		return CodeNoMoreCredentials
	}
	if len(codes) > 0 {
		return codes[0]
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
