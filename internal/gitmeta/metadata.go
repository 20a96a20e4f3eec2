// Package gitmeta models the commit metadata that rides along with every
// snapshot, and knows how to collect it from a git repository.
package gitmeta

import (
	"fmt"
	"strings"
)

// DiffStats summarizes the diff of a single commit.
type DiffStats struct {
	FilesChanged uint32 `json:"files_changed"`
	Insertions   uint32 `json:"insertions"`
	Deletions    uint32 `json:"deletions"`
}

// IsEmpty reports whether no changes were recorded.
func (s DiffStats) IsEmpty() bool {
	return s.FilesChanged == 0 && s.Insertions == 0 && s.Deletions == 0
}

// CommitMetadata is the full record describing one captured commit.
// It is assembled once per capture and treated as read-only downstream.
type CommitMetadata struct {
	Revision   string    `json:"revision"`
	Message    string    `json:"message"`
	CommitType string    `json:"commit_type"`
	Scope      string    `json:"scope"`
	Timestamp  string    `json:"timestamp"`
	RepoName   string    `json:"repo_name"`
	BranchName string    `json:"branch_name"`
	Stats      DiffStats `json:"stats"`
}

// DiffStatsString formats the stats the way git summarizes them,
// e.g. "2 files changed, 15 insertions(+), 3 deletions(-)".
func (m CommitMetadata) DiffStatsString() string {
	if m.Stats.IsEmpty() {
		return ""
	}

	parts := []string{fmt.Sprintf("%d file%s changed", m.Stats.FilesChanged, plural(m.Stats.FilesChanged))}
	if m.Stats.Insertions > 0 {
		parts = append(parts, fmt.Sprintf("%d insertion%s(+)", m.Stats.Insertions, plural(m.Stats.Insertions)))
	}
	if m.Stats.Deletions > 0 {
		parts = append(parts, fmt.Sprintf("%d deletion%s(-)", m.Stats.Deletions, plural(m.Stats.Deletions)))
	}

	return strings.Join(parts, ", ")
}

// ShortRevision returns the abbreviated commit SHA used for display.
func (m CommitMetadata) ShortRevision() string {
	if len(m.Revision) > 7 {
		return m.Revision[:7]
	}
	return m.Revision
}

func plural(n uint32) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// ParseCommitType extracts the conventional-commit type from a message.
// "feat(scope): message" yields "feat"; a message without a prefix yields
// "commit".
func ParseCommitType(message string) string {
	firstLine := message
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		firstLine = message[:i]
	}

	colon := strings.IndexByte(firstLine, ':')
	if colon < 0 {
		return "commit"
	}

	prefix := firstLine[:colon]
	if paren := strings.IndexByte(prefix, '('); paren >= 0 {
		prefix = prefix[:paren]
	}
	return strings.TrimSpace(prefix)
}

// ParseCommitScope extracts the conventional-commit scope from a message.
// "feat(api): message" yields "api"; no scope yields "".
func ParseCommitScope(message string) string {
	colon := strings.IndexByte(message, ':')
	if colon < 0 {
		return ""
	}

	prefix := message[:colon]
	open := strings.IndexByte(prefix, '(')
	close := strings.IndexByte(prefix, ')')
	if open < 0 || close < 0 || close < open {
		return ""
	}
	return strings.TrimSpace(prefix[open+1 : close])
}

// StripCommitPrefix removes the conventional-commit prefix from a message.
// "feat(scope): add thing" yields "add thing".
func StripCommitPrefix(message string) string {
	if colon := strings.IndexByte(message, ':'); colon >= 0 {
		return strings.TrimSpace(message[colon+1:])
	}
	return message
}
