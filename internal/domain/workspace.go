package domain

import "regexp"

// MaxWorkspaceLength caps workspace names.
const MaxWorkspaceLength = 64

var workspaceRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateWorkspace checks a workspace name. Names end up inside cache and index keys,
// so the key separator ':' and glob characters are rejected.
func ValidateWorkspace(name string) error {
	if name == "" {
		return InvalidRequestf("workspace is required")
	}
	if len(name) > MaxWorkspaceLength {
		return InvalidRequestf("workspace name too long (max %d)", MaxWorkspaceLength)
	}
	if !workspaceRegex.MatchString(name) {
		return InvalidRequestf("workspace %q must be alphanumeric with underscores and hyphens", name)
	}
	return nil
}
