package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/avasilyev/issuegram/internal/domain/model"
	"github.com/avasilyev/issuegram/internal/domain/port/driven"
)

// ErrRepoNotFound indicates the referenced repository does not exist on
// GitHub (or is not visible with the configured credentials).
var ErrRepoNotFound = errors.New("repository not found on github")

// TrackService manages which repositories a chat tracks and the label
// subscription per tracked repository. It verifies repository existence
// against the API before persisting anything.
type TrackService struct {
	gh    driven.GitHubClient
	store driven.TrackStore
}

// NewTrackService creates a TrackService with all required dependencies.
func NewTrackService(gh driven.GitHubClient, store driven.TrackStore) *TrackService {
	return &TrackService{gh: gh, store: store}
}

// Track starts tracking a repository for a chat. ref may be "owner/name" or
// a github.com URL. The new subscription starts with the default label set.
// Returns ErrRepoNotFound if the repository does not resolve on GitHub and
// driven.ErrAlreadyTracked if the chat already tracks it.
func (s *TrackService) Track(ctx context.Context, chatID int64, ref string) (model.RepoRef, error) {
	repo, err := model.ParseRepoRef(ref)
	if err != nil {
		return model.RepoRef{}, err
	}

	exists, err := s.gh.RepoExists(ctx, repo.Owner, repo.Name)
	if err != nil {
		return model.RepoRef{}, fmt.Errorf("check repository %s: %w", repo.FullName, err)
	}
	if !exists {
		return model.RepoRef{}, fmt.Errorf("%s: %w", repo.FullName, ErrRepoNotFound)
	}

	if err := s.store.AddRepo(ctx, chatID, repo, model.DefaultLabels()); err != nil {
		return model.RepoRef{}, err
	}

	slog.Info("repository tracked", "chat", chatID, "repo", repo.FullName)
	return repo, nil
}

// Untrack stops tracking a repository for a chat, discarding its label
// subscription and watermark.
func (s *TrackService) Untrack(ctx context.Context, chatID int64, ref string) (model.RepoRef, error) {
	repo, err := model.ParseRepoRef(ref)
	if err != nil {
		return model.RepoRef{}, err
	}

	if err := s.store.RemoveRepo(ctx, chatID, repo); err != nil {
		return model.RepoRef{}, err
	}

	slog.Info("repository untracked", "chat", chatID, "repo", repo.FullName)
	return repo, nil
}

// ListTracked returns the repositories tracked by a chat.
func (s *TrackService) ListTracked(ctx context.Context, chatID int64) ([]model.RepoRef, error) {
	return s.store.ListChatRepos(ctx, chatID)
}

// Labels returns the label subscription for a tracked repository.
func (s *TrackService) Labels(ctx context.Context, chatID int64, ref string) ([]string, error) {
	repo, err := model.ParseRepoRef(ref)
	if err != nil {
		return nil, err
	}
	return s.store.TrackedLabels(ctx, chatID, repo)
}

// ToggleLabel flips a label's membership in a tracked repository's
// subscription and reports whether the label is tracked afterwards.
// Label comparison is case-insensitive, matching GitHub's behavior.
func (s *TrackService) ToggleLabel(ctx context.Context, chatID int64, ref, label string) (bool, error) {
	repo, err := model.ParseRepoRef(ref)
	if err != nil {
		return false, err
	}

	label = strings.TrimSpace(label)
	if label == "" {
		return false, fmt.Errorf("empty label")
	}

	labels, err := s.store.TrackedLabels(ctx, chatID, repo)
	if err != nil {
		return false, err
	}

	next := make([]string, 0, len(labels)+1)
	enabled := true
	for _, l := range labels {
		if strings.EqualFold(l, label) {
			enabled = false
			continue
		}
		next = append(next, l)
	}
	if enabled {
		next = append(next, label)
	}
	sort.Strings(next)

	if err := s.store.SetTrackedLabels(ctx, chatID, repo, next); err != nil {
		return false, err
	}

	slog.Info("label toggled", "chat", chatID, "repo", repo.FullName, "label", label, "tracked", enabled)
	return enabled, nil
}
