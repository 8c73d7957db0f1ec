// Package model defines the domain types shared across the application.
package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidRepoRef indicates a repository reference that could not be
// parsed into owner/name form.
var ErrInvalidRepoRef = errors.New("invalid repository reference")

// RepoRef identifies a GitHub repository. FullName is the canonical
// identifier; two refs are equal iff their full names are equal.
type RepoRef struct {
	Owner    string
	Name     string
	FullName string
}

// NewRepoRef builds a RepoRef from its owner and name components.
func NewRepoRef(owner, name string) (RepoRef, error) {
	if owner == "" || name == "" {
		return RepoRef{}, fmt.Errorf("%w %q: owner and name must be non-empty", ErrInvalidRepoRef, owner+"/"+name)
	}
	if strings.Contains(owner, "/") || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("%w %q: owner and name must not contain '/'", ErrInvalidRepoRef, owner+"/"+name)
	}

	return RepoRef{
		Owner:    owner,
		Name:     name,
		FullName: owner + "/" + name,
	}, nil
}

// ParseRepoRef accepts either an "owner/name" string or a github.com URL and
// returns the RepoRef it identifies. For URLs, the first two path segments are
// taken as owner and name; anything after them (tree paths, query strings,
// fragments) is ignored.
func ParseRepoRef(s string) (RepoRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RepoRef{}, fmt.Errorf("%w: empty input", ErrInvalidRepoRef)
	}

	if strings.Contains(s, "://") || strings.HasPrefix(s, "github.com/") || strings.HasPrefix(s, "www.github.com/") {
		return parseRepoURL(s)
	}

	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return RepoRef{}, fmt.Errorf("%w %q: expected owner/name", ErrInvalidRepoRef, s)
	}

	return NewRepoRef(parts[0], parts[1])
}

// parseRepoURL extracts owner/name from a GitHub repository URL.
func parseRepoURL(s string) (RepoRef, error) {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return RepoRef{}, fmt.Errorf("%w %q: %v", ErrInvalidRepoRef, s, err)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "github.com" {
		return RepoRef{}, fmt.Errorf("%w %q: host must be github.com", ErrInvalidRepoRef, s)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return RepoRef{}, fmt.Errorf("%w %q: path must start with owner/name", ErrInvalidRepoRef, s)
	}

	return NewRepoRef(segments[0], strings.TrimSuffix(segments[1], ".git"))
}

// String returns the canonical owner/name form.
func (r RepoRef) String() string {
	return r.FullName
}
