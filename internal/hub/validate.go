package hub

import (
	"fmt"
	"regexp"
	"strings"
)

const maxRepoIDLength = 96

var repoIDPattern = regexp.MustCompile(`^(\b[\w\-.]+\b/)?\b[\w\-.]+\b$`)

// ValidateRepoID 按 Hub 的命名规则校验 repo_id（name 或 namespace/name）。
func ValidateRepoID(repoID string) error {
	if repoID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRepoID)
	}
	if len(repoID) > maxRepoIDLength {
		return fmt.Errorf("%w: %q longer than %d characters", ErrInvalidRepoID, repoID, maxRepoIDLength)
	}
	if !repoIDPattern.MatchString(repoID) {
		return fmt.Errorf("%w: %q", ErrInvalidRepoID, repoID)
	}
	if strings.Contains(repoID, "--") || strings.Contains(repoID, "..") {
		return fmt.Errorf("%w: %q cannot contain '--' or '..'", ErrInvalidRepoID, repoID)
	}
	if strings.HasSuffix(repoID, ".git") {
		return fmt.Errorf("%w: %q cannot end with .git", ErrInvalidRepoID, repoID)
	}
	return nil
}
