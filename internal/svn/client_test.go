package svn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeSvn writes a shell script standing in for the svn binary. It records
// its arguments to args.log and answers a few subcommands.
func fakeSvn(t *testing.T) (binary, dir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake svn script requires a POSIX shell")
	}

	dir = t.TempDir()
	script := `#!/bin/sh
echo "$@" >> "` + dir + `/args.log"
for a in "$@"; do
  case "$a" in
    stat)
      cat <<'EOF'
<status><target path="."><entry path="a.txt"><wc-status item="modified" props="none"/></entry><entry path="libs"><wc-status item="external" props="none"/></entry></target></status>
EOF
      exit 0 ;;
    info)
      cat <<'EOF'
<info><entry kind="dir" path="." revision="3"><url>file:///r/trunk</url><relative-url>^/trunk</relative-url><repository><root>file:///r</root><uuid>uuid-1</uuid></repository><wc-info><wcroot-abspath>` + dir + `</wcroot-abspath></wc-info></entry></info>
EOF
      exit 0 ;;
    commit)
      echo "Committed revision 4."
      exit 0 ;;
    update)
      printf "Updating '.':\nAt revision 3.\n"
      exit 0 ;;
    cleanup)
      echo "svn: E155004: Working copy '/wc' locked." >&2
      exit 1 ;;
  esac
done
exit 0
`
	binary = filepath.Join(dir, "svn")
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake svn: %v", err)
	}
	return binary, dir
}

func readArgs(t *testing.T, dir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "args.log"))
	if err != nil {
		t.Fatalf("read args log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestClientOpen(t *testing.T) {
	bin, dir := fakeSvn(t)

	c, err := Open(context.Background(), ClientConfig{Root: dir, Binary: bin})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Root() != dir {
		t.Errorf("expected root %s, got %s", dir, c.Root())
	}
	if c.RepositoryRootURL() != "file:///r" {
		t.Errorf("unexpected root url %q", c.RepositoryRootURL())
	}

	uuid, err := c.GetRepositoryUUID(context.Background())
	if err != nil || uuid != "uuid-1" {
		t.Errorf("GetRepositoryUUID = %q, %v", uuid, err)
	}

	branch, err := c.GetCurrentBranch(context.Background())
	if err != nil || branch != "trunk" {
		t.Errorf("GetCurrentBranch = %q, %v", branch, err)
	}
}

func TestClientGetStatusArgs(t *testing.T) {
	bin, dir := fakeSvn(t)
	c := NewClient(ClientConfig{Root: dir, Binary: bin})

	entries, err := c.GetStatus(context.Background(), StatusOptions{
		IncludeIgnored:     true,
		CheckRemoteChanges: true,
	})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	args := readArgs(t, dir)
	got := args[0]
	for _, want := range []string{"--non-interactive", "stat", "--xml", "--no-ignore", "--ignore-externals", "--show-updates"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

func TestClientGetStatusExternalsUUID(t *testing.T) {
	bin, dir := fakeSvn(t)
	c := NewClient(ClientConfig{Root: dir, Binary: bin})

	entries, err := c.GetStatus(context.Background(), StatusOptions{IncludeExternals: true})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}

	for _, e := range entries {
		if e.Status == StatusExternal && e.RepositoryUUID != "uuid-1" {
			t.Errorf("expected external uuid filled, got %q", e.RepositoryUUID)
		}
	}
	if strings.Contains(readArgs(t, dir)[0], "--ignore-externals") {
		t.Error("did not expect --ignore-externals when externals are included")
	}
}

func TestClientCredentials(t *testing.T) {
	bin, dir := fakeSvn(t)
	c := NewClient(ClientConfig{Root: dir, Binary: bin})
	c.SetCredentials(Credential{Account: "ann", Password: "s3cret"})

	if err := c.Add(context.Background(), filepath.Join(dir, "a.txt")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	line := readArgs(t, dir)[0]
	if !strings.Contains(line, "--username ann --password s3cret") {
		t.Errorf("expected credentials in %q", line)
	}
	if !strings.HasSuffix(line, "-- a.txt") {
		t.Errorf("expected path relative to root after separator, got %q", line)
	}
}

func TestClientCommitAndUpdate(t *testing.T) {
	bin, dir := fakeSvn(t)
	c := NewClient(ClientConfig{Root: dir, Binary: bin})

	rev, err := c.Commit(context.Background(), "msg", "a.txt")
	if err != nil || rev != "4" {
		t.Errorf("Commit = %q, %v", rev, err)
	}

	msg, err := c.Update(context.Background(), true)
	if err != nil || msg != "At revision 3." {
		t.Errorf("Update = %q, %v", msg, err)
	}
	if !strings.Contains(readArgs(t, dir)[1], "--ignore-externals") {
		t.Error("expected --ignore-externals on update")
	}
}

func TestClientErrorCode(t *testing.T) {
	bin, dir := fakeSvn(t)
	c := NewClient(ClientConfig{Root: dir, Binary: bin})

	err := c.Cleanup(context.Background())
	if !IsLocked(err) {
		t.Fatalf("expected locked error, got %v", err)
	}

	var se *Error
	if !errors.As(err, &se) {
		t.Fatal("expected *Error")
	}
	if se.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", se.ExitCode)
	}
	if se.Command != "cleanup" {
		t.Errorf("expected command cleanup, got %q", se.Command)
	}
}

func TestClientNoFiles(t *testing.T) {
	c := NewClient(ClientConfig{Root: t.TempDir()})
	if err := c.Revert(context.Background()); err == nil {
		t.Error("expected error when no files are given")
	}
}

func TestClientMissingBinary(t *testing.T) {
	c := NewClient(ClientConfig{Root: t.TempDir(), Binary: "svn-does-not-exist-anywhere"})
	_, err := c.GetStatus(context.Background(), StatusOptions{})
	if !errors.Is(err, ErrSvnNotFound) {
		t.Errorf("expected ErrSvnNotFound, got %v", err)
	}
}
