// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/avasilyev/issuegram/internal/domain/model"
)

// Sentinel errors surfaced by GitHubClient implementations.
var (
	// ErrUnauthorized indicates the API rejected our credentials. It is never
	// retried, and the poll service treats it as fatal for the whole cycle.
	ErrUnauthorized = errors.New("github: bad credentials")

	// ErrRateLimited indicates the API quota was exhausted and could not be
	// recovered within the retry budget.
	ErrRateLimited = errors.New("github: rate limited")
)

// APIError is a permanent, server-reported failure: a GraphQL error with a
// non-retryable code, an unexpected HTTP status, or a response with no data.
type APIError struct {
	Code    string // GraphQL error type/extension code, may be empty.
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("github api error (%s): %s", e.Code, e.Message)
	}
	return "github api error: " + e.Message
}

// RequestError is a network-level failure: transport errors, timeouts, or
// undecodable responses. Instances only surface after the client's retry
// budget is exhausted.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "github request failed: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// GitHubClient defines the driven port for the rate-limited GitHub API
// client. Implementations retry transient failures internally and respect
// server-communicated rate limits; errors that escape carry the taxonomy
// above.
type GitHubClient interface {
	// RepoExists reports whether the repository resolves on GitHub.
	RepoExists(ctx context.Context, owner, name string) (bool, error)

	// IssuesByLabel returns up to a bounded page of open issues carrying any
	// of the given labels, newest first.
	IssuesByLabel(ctx context.Context, owner, name string, labels []string) ([]model.Issue, error)
}
