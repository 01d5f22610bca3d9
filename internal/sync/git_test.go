package sync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newClone sets up a bare origin and a clone of it on branch main with one
// commit, and returns the clone's path.
func newClone(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	origin := t.TempDir()
	gitRun(t, origin, "init", "--bare")

	work := t.TempDir()
	gitRun(t, work, "clone", origin, "repo")
	repo := filepath.Join(work, "repo")
	gitRun(t, repo, "config", "user.email", "ops@example.com")
	gitRun(t, repo, "config", "user.name", "Ops")
	gitRun(t, repo, "checkout", "-b", "main")

	if err := os.WriteFile(filepath.Join(repo, "README"), []byte("gate register backups\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	gitRun(t, repo, "add", ".")
	gitRun(t, repo, "commit", "-m", "init")
	gitRun(t, repo, "push", "origin", "main")
	return repo
}

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func snapshot(data string, entries int) Snapshot {
	return Snapshot{
		Data:    []byte(data),
		Entries: entries,
		TakenAt: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
	}
}

func TestGitDestination_CommitsChangedSnapshots(t *testing.T) {
	repo := newClone(t)
	dest := NewGitDestination(repo, "register.jsonl", "main")
	ctx := context.Background()

	first := snapshot(`{"version":"1","type":"header"}`+"\n", 0)
	if err := dest.Write(ctx, first); err != nil {
		t.Fatalf("first write: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(repo, "register.jsonl"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(got) != string(first.Data) {
		t.Fatalf("export = %q", got)
	}

	// Same content: no new commit.
	if err := dest.Write(ctx, first); err != nil {
		t.Fatalf("repeat write: %v", err)
	}
	if n := gitRun(t, repo, "rev-list", "--count", "HEAD"); n != "2" {
		t.Fatalf("commits = %s, want 2", n)
	}

	second := snapshot(`{"version":"1","type":"header","entry_count":1}`+"\n", 1)
	if err := dest.Write(ctx, second); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if n := gitRun(t, repo, "rev-list", "--count", "HEAD"); n != "3" {
		t.Fatalf("commits = %s, want 3", n)
	}

	subject := gitRun(t, repo, "log", "-1", "--format=%s")
	if subject != "backup: 1 entries, 0 events at 2026-03-02T18:00:00Z" {
		t.Errorf("commit subject = %q", subject)
	}
	if author := gitRun(t, repo, "log", "-1", "--format=%an <%ae>"); author != "gatepass <gatepass@localhost>" {
		t.Errorf("author = %q", author)
	}
	if remote := gitRun(t, repo, "rev-parse", "origin/main"); remote != gitRun(t, repo, "rev-parse", "HEAD") {
		t.Error("origin/main was not pushed")
	}
}

func TestGitDestination_NestedFile(t *testing.T) {
	repo := newClone(t)
	dest := NewGitDestination(repo, "plants/1000/register.jsonl", "main")

	snap := snapshot(`{"type":"header"}`+"\n", 0)
	if err := dest.Write(context.Background(), snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(repo, "plants", "1000", "register.jsonl"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(got) != string(snap.Data) {
		t.Fatalf("export = %q", got)
	}
}

func TestGitDestination_ErrorCarriesGitOutput(t *testing.T) {
	repo := newClone(t)
	dest := NewGitDestination(repo, "register.jsonl", "no-such-branch")

	err := dest.Write(context.Background(), snapshot("{}\n", 0))
	if err == nil {
		t.Fatal("expected checkout of a missing branch to fail")
	}
	if !strings.HasPrefix(err.Error(), "git checkout:") || !strings.Contains(err.Error(), "no-such-branch") {
		t.Errorf("error = %q, want git's message included", err)
	}
}
