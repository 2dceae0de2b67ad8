// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidRepositoryID is returned when an identifier is not of the form "owner/name".
var ErrInvalidRepositoryID = errors.New("invalid repository identifier")

// ErrUnavailable signals that a repository is missing, archived or disabled.
var ErrUnavailable = errors.New("repository unavailable")

var repositoryIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// RepositoryID identifies a repository as "owner/name".
type RepositoryID string

// ParseRepositoryID validates s and returns it as a RepositoryID.
func ParseRepositoryID(s string) (RepositoryID, error) {
	s = strings.TrimSpace(s)
	if !repositoryIDPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRepositoryID, s)
	}
	return RepositoryID(s), nil
}

// ValidRepositoryID reports whether s is a well-formed "owner/name" identifier.
func ValidRepositoryID(s string) bool {
	return repositoryIDPattern.MatchString(s)
}

// Owner returns the part before the slash.
func (r RepositoryID) Owner() string {
	owner, _, _ := strings.Cut(string(r), "/")
	return owner
}

// Name returns the part after the slash.
func (r RepositoryID) Name() string {
	_, name, _ := strings.Cut(string(r), "/")
	return name
}

func (r RepositoryID) String() string { return string(r) }

// RepositoryInfo is the subset of repository metadata the evaluator needs.
type RepositoryInfo struct {
	ID            RepositoryID
	DefaultBranch string
	Archived      bool
	Disabled      bool
}

// Available reports whether the repository can be evaluated.
func (i RepositoryInfo) Available() bool {
	return !i.Archived && !i.Disabled
}

// EntryTypeBlob is the tree entry type of a regular file.
const EntryTypeBlob = "blob"

// FileEntry is one entry of a repository snapshot listing.
type FileEntry struct {
	Path string
	Type string
}
