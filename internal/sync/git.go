package sync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// GitDestination keeps the register export as a tracked file in a local
// clone and pushes one commit per changed snapshot.
type GitDestination struct {
	repo   string
	file   string
	branch string

	// Author is recorded on backup commits.
	AuthorName  string
	AuthorEmail string
}

// NewGitDestination returns a destination writing file inside the clone
// at repo and pushing branch to origin.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{
		repo:        repo,
		file:        file,
		branch:      branch,
		AuthorName:  "gatepass",
		AuthorEmail: "gatepass@localhost",
	}
}

func (d *GitDestination) Name() string {
	return "git:" + filepath.Join(d.repo, d.file)
}

func (d *GitDestination) Write(ctx context.Context, snap Snapshot) error {
	if err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The branch may not exist on origin yet.
	_ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, snap.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := d.git(ctx, "add", "--", d.file); err != nil {
		return err
	}

	if err := d.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return nil
	}
	if err := d.git(ctx, "commit", "-m", commitMessage(snap)); err != nil {
		return err
	}
	if err := d.git(ctx, "push", "origin", d.branch); err != nil {
		return err
	}
	return nil
}

func commitMessage(snap Snapshot) string {
	return fmt.Sprintf("backup: %d entries, %d events at %s",
		snap.Entries, snap.Events, snap.TakenAt.UTC().Format(time.RFC3339))
}

// git runs a git subcommand in the clone. Failures carry git's own output.
func (d *GitDestination) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+d.AuthorName,
		"GIT_AUTHOR_EMAIL="+d.AuthorEmail,
		"GIT_COMMITTER_NAME="+d.AuthorName,
		"GIT_COMMITTER_EMAIL="+d.AuthorEmail,
		"GIT_TERMINAL_PROMPT=0",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(out.String()); msg != "" {
			return fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("git %s: %w", args[0], err)
	}
	return nil
}
