package store

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// GitReplicator mirrors the portfolio file to a git remote after each save.
// Every step is best-effort with a bounded timeout; a failed push never
// propagates to the caller.
type GitReplicator struct {
	remote  string
	branch  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewGitReplicator creates a replicator pushing to remote/branch.
func NewGitReplicator(remote, branch string, logger zerolog.Logger) *GitReplicator {
	return &GitReplicator{
		remote:  remote,
		branch:  branch,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Replicate commits and pushes the file. Skips silently when the file is not
// inside a git work tree, not tracked, or unchanged.
func (g *GitReplicator) Replicate(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Git sync skipped: cannot resolve portfolio path")
		return
	}
	dir := filepath.Dir(abs)
	name := filepath.Base(abs)

	if err := g.run(dir, 5*time.Second, "rev-parse", "--git-dir"); err != nil {
		g.logger.Debug().Msg("Not in a git repository, skipping git sync")
		return
	}
	if err := g.run(dir, 5*time.Second, "ls-files", "--error-unmatch", name); err != nil {
		g.logger.Debug().Str("file", name).Msg("Portfolio file not tracked in git, skipping sync")
		return
	}
	if err := g.run(dir, 5*time.Second, "diff", "--quiet", name); err == nil {
		g.logger.Debug().Msg("No portfolio changes, skipping git sync")
		return
	}

	if err := g.run(dir, 5*time.Second, "add", name); err != nil {
		g.logger.Warn().Err(err).Msg("Git sync failed: staging portfolio file")
		return
	}
	msg := fmt.Sprintf("Auto-update portfolio: %s", time.Now().Format("2006-01-02 15:04:05"))
	if err := g.run(dir, 5*time.Second, "commit", "-m", msg); err != nil {
		g.logger.Debug().Err(err).Msg("Git commit failed (may be no changes)")
		return
	}
	g.logger.Info().Msg("Portfolio committed to git")

	if err := g.run(dir, g.timeout, "push", g.remote, g.branch); err == nil {
		g.logger.Info().Msg("Portfolio pushed to remote")
		return
	}

	// Rejected push: rebase onto the remote and try once more.
	if err := g.run(dir, g.timeout, "pull", "--rebase", "--autostash", g.remote, g.branch); err != nil {
		g.logger.Warn().Err(err).Msg("Git pull --rebase failed, abandoning sync")
		_ = g.run(dir, 10*time.Second, "rebase", "--abort")
		return
	}
	if err := g.run(dir, g.timeout, "push", g.remote, g.branch); err != nil {
		g.logger.Warn().Err(err).Msg("Git push failed after rebase, portfolio not replicated")
		return
	}
	g.logger.Info().Msg("Portfolio pushed to remote after rebase")
}

// run executes one git command with prompts disabled.
func (g *GitReplicator) run(dir string, timeout time.Duration, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, string(out))
	}
	return nil
}
