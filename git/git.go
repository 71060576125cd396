// Package git shells out to the git binary for lightweight repository stats.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const commandTimeout = 5 * time.Second

// Summary holds the per-repository statistics shown in project listings.
type Summary struct {
	Commits    int       // Total commits reachable from HEAD
	LastCommit time.Time // Committer time of the most recent commit
}

// Summarize collects commit statistics for the repository at dir.
// Returns an error if git is not installed, dir is not a repository,
// or the repository has no commits yet.
func Summarize(ctx context.Context, dir string) (*Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	countCmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-list", "--count", "HEAD")
	countOutput, err := countCmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("not a git repository or git command failed: %w (stderr: %s)", err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("failed to execute git command (is git installed?): %w", err)
	}
	commits, err := strconv.Atoi(strings.TrimSpace(string(countOutput)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse commit count: %w", err)
	}

	logCmd := exec.CommandContext(ctx, "git", "-C", dir, "log", "-1", "--format=%ct")
	logOutput, err := logCmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get last commit time: %w", err)
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(string(logOutput)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last commit time: %w", err)
	}

	return &Summary{
		Commits:    commits,
		LastCommit: time.Unix(epoch, 0),
	}, nil
}

// IsGitRepo returns true if the given path is within a git repository.
// Returns false on any error (git not installed, not a repo, etc.).
func IsGitRepo(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", path, "rev-parse", "--git-dir")
	err := cmd.Run()
	return err == nil
}
