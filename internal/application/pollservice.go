// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avasilyev/issuegram/internal/domain/model"
	"github.com/avasilyev/issuegram/internal/domain/port/driven"
)

// PollService orchestrates periodic issue discovery across all tracked
// (chat, repository) pairs. Each cycle it fetches matching issues per pair,
// filters them against the pair's watermark, delivers the new ones as one
// batch, and advances the watermark only on confirmed delivery.
type PollService struct {
	gh       driven.GitHubClient
	store    driven.TrackStore
	notifier driven.Notifier
	interval time.Duration
	now      func() time.Time
}

// NewPollService creates a PollService with all required dependencies.
func NewPollService(
	gh driven.GitHubClient,
	store driven.TrackStore,
	notifier driven.Notifier,
	interval time.Duration,
) *PollService {
	return &PollService{
		gh:       gh,
		store:    store,
		notifier: notifier,
		interval: interval,
		now:      time.Now,
	}
}

// Run executes an immediate poll cycle, then polls on the configured
// interval. Recoverable per-pair failures are logged inside the cycle; a
// fatal error (rejected credentials, unreadable tracked set) aborts the loop
// and is returned. Run returns nil when the context is canceled.
func (s *PollService) Run(ctx context.Context) error {
	for {
		if err := s.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("poll service stopped")
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			slog.Info("poll service stopped")
			return nil
		case <-time.After(s.interval):
		}
	}
}

// PollOnce runs one full pass over all tracked pairs. A failure on one pair
// never prevents processing of the remaining pairs, with one exception:
// ErrUnauthorized means every later call would fail the same way, so the
// cycle aborts immediately.
func (s *PollService) PollOnce(ctx context.Context) error {
	start := time.Now()

	tracked, err := s.store.ListTracked(ctx)
	if err != nil {
		return fmt.Errorf("list tracked pairs: %w", err)
	}

	var pairs, pollErrors int
	for chatID, repos := range tracked {
		for _, repo := range repos {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			pairs++
			if err := s.pollPair(ctx, chatID, repo); err != nil {
				if errors.Is(err, driven.ErrUnauthorized) {
					return fmt.Errorf("poll chat %d repo %s: %w", chatID, repo.FullName, err)
				}
				slog.Error("pair poll failed", "chat", chatID, "repo", repo.FullName, "error", err)
				pollErrors++
			}
		}
	}

	slog.Info("poll cycle complete",
		"pairs", pairs,
		"errors", pollErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

// pollPair fetches, filters, and delivers new issues for a single pair.
// Returned errors are recoverable (the cycle logs and moves on) except
// ErrUnauthorized, which PollOnce treats as fatal.
func (s *PollService) pollPair(ctx context.Context, chatID int64, repo model.RepoRef) error {
	labels, err := s.store.TrackedLabels(ctx, chatID, repo)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}
	if len(labels) == 0 {
		// No subscription means no API call spent on this pair.
		slog.Debug("no labels tracked, skipping", "chat", chatID, "repo", repo.FullName)
		return nil
	}

	last, err := s.store.LastNotified(ctx, chatID, repo)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}
	watermark := time.Unix(0, 0)
	if last != nil {
		watermark = *last
	}

	issues, err := s.gh.IssuesByLabel(ctx, repo.Owner, repo.Name, labels)
	if err != nil {
		return fmt.Errorf("fetch issues: %w", err)
	}

	fresh := FilterNewIssues(issues, watermark)
	if len(fresh) == 0 {
		return nil
	}

	if err := s.notifier.SendNewIssues(ctx, chatID, repo.FullName, fresh); err != nil {
		// The watermark stays put so the next cycle retries delivery. A
		// duplicate notification beats a lost one.
		slog.Error("notification delivery failed", "chat", chatID, "repo", repo.FullName, "error", err)
		return nil
	}

	deliveredAt := s.now()
	if err := s.store.SetLastNotified(ctx, chatID, repo, deliveredAt); err != nil {
		// The next cycle simply redelivers the same batch.
		slog.Error("watermark write failed", "chat", chatID, "repo", repo.FullName, "error", err)
	}

	slog.Info("new issues delivered",
		"chat", chatID,
		"repo", repo.FullName,
		"issues", len(fresh),
	)

	return nil
}

// FilterNewIssues returns the issues created strictly after the watermark.
// An issue created exactly at the watermark is not new.
func FilterNewIssues(issues []model.Issue, watermark time.Time) []model.Issue {
	var fresh []model.Issue
	for _, issue := range issues {
		if issue.CreatedAt.After(watermark) {
			fresh = append(fresh, issue)
		}
	}
	return fresh
}
