package gitmeta

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/snapcommit/snapcommit/internal/logger"
)

// Collector gathers commit metadata by shelling out to git in a working
// directory. A zero Dir means the current directory.
type Collector struct {
	Dir string
}

// Collect resolves the given revision (typically "HEAD") and assembles the
// full CommitMetadata record for it.
func (c Collector) Collect(revision string) (CommitMetadata, error) {
	sha, err := c.git("rev-parse", revision)
	if err != nil {
		return CommitMetadata{}, fmt.Errorf("gitmeta: resolve revision %q: %w", revision, err)
	}

	message, err := c.git("log", "-1", "--format=%B", sha)
	if err != nil {
		return CommitMetadata{}, fmt.Errorf("gitmeta: read commit message: %w", err)
	}
	message = strings.TrimSpace(message)

	repoName, err := c.repoName()
	if err != nil {
		return CommitMetadata{}, err
	}

	branch, err := c.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		branch = "HEAD"
	}

	stats, err := c.diffStats(sha)
	if err != nil {
		return CommitMetadata{}, err
	}

	firstLine := message
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		firstLine = message[:i]
	}

	meta := CommitMetadata{
		Revision:   sha,
		Message:    message,
		CommitType: ParseCommitType(message),
		Scope:      ParseCommitScope(firstLine),
		Timestamp:  time.Now().Format("2006-01-02 15:04:05"),
		RepoName:   repoName,
		BranchName: branch,
		Stats:      stats,
	}

	logger.Debug("collected commit metadata",
		"revision", meta.ShortRevision(),
		"repo", meta.RepoName,
		"branch", meta.BranchName,
		"type", meta.CommitType,
	)
	return meta, nil
}

// repoName derives the repository name from the top-level directory.
func (c Collector) repoName() (string, error) {
	top, err := c.git("rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("gitmeta: not inside a git repository: %w", err)
	}
	return filepath.Base(top), nil
}

// diffStats totals the numstat output of a commit. Binary files report "-"
// for their counts and contribute only to the file count.
func (c Collector) diffStats(sha string) (DiffStats, error) {
	out, err := c.git("show", "--numstat", "--format=", sha)
	if err != nil {
		return DiffStats{}, fmt.Errorf("gitmeta: diff stats for %s: %w", sha, err)
	}
	return ParseNumstat(out), nil
}

// ParseNumstat parses `git show --numstat` output into DiffStats.
func ParseNumstat(out string) DiffStats {
	var stats DiffStats
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		if parts[0] != "-" {
			if n, err := strconv.ParseUint(parts[0], 10, 32); err == nil {
				stats.Insertions += uint32(n)
			}
		}
		if parts[1] != "-" {
			if n, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
				stats.Deletions += uint32(n)
			}
		}
		stats.FilesChanged++
	}
	return stats
}

func (c Collector) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.Dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
