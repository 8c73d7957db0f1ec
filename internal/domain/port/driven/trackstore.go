package driven

import (
	"context"
	"errors"
	"time"

	"github.com/avasilyev/issuegram/internal/domain/model"
)

// Sentinel errors returned by TrackStore implementations.
var (
	// ErrAlreadyTracked indicates the chat already tracks the repository.
	ErrAlreadyTracked = errors.New("repository already tracked")

	// ErrNotTracked indicates the chat does not track the repository.
	ErrNotTracked = errors.New("repository not tracked")
)

// TrackStore defines the driven port for tracked-repository persistence:
// which chats track which repositories, the label subscription per pair, and
// the last-notified watermark per pair. The poll service only reads the
// tracked set; mutations come from the track service.
type TrackStore interface {
	// Read methods

	// ListTracked returns every tracked pair, grouped by chat. Iteration
	// order is unspecified.
	ListTracked(ctx context.Context) (map[int64][]model.RepoRef, error)
	// ListChatRepos returns the repositories tracked by one chat, ordered by
	// full name.
	ListChatRepos(ctx context.Context, chatID int64) ([]model.RepoRef, error)
	// TrackedLabels returns the label subscription for a pair. An untracked
	// pair yields ErrNotTracked; a tracked pair with no labels yields an
	// empty slice.
	TrackedLabels(ctx context.Context, chatID int64, repo model.RepoRef) ([]string, error)
	// LastNotified returns the pair's watermark, or nil if no notification
	// has ever been delivered for it.
	LastNotified(ctx context.Context, chatID int64, repo model.RepoRef) (*time.Time, error)

	// Write methods

	// AddRepo starts tracking a repository for a chat with the given initial
	// labels. Returns ErrAlreadyTracked on duplicates.
	AddRepo(ctx context.Context, chatID int64, repo model.RepoRef, labels []string) error
	// RemoveRepo stops tracking a repository. Returns ErrNotTracked if the
	// pair does not exist. The label subscription and watermark go with it.
	RemoveRepo(ctx context.Context, chatID int64, repo model.RepoRef) error
	// SetTrackedLabels replaces the pair's label subscription.
	SetTrackedLabels(ctx context.Context, chatID int64, repo model.RepoRef, labels []string) error
	// SetLastNotified advances the pair's watermark. Stored with second
	// precision.
	SetLastNotified(ctx context.Context, chatID int64, repo model.RepoRef, at time.Time) error
}
