package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasilyev/issuegram/internal/domain/model"
	"github.com/avasilyev/issuegram/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockGitHub struct {
	repoExists    func(ctx context.Context, owner, name string) (bool, error)
	issuesByLabel func(ctx context.Context, owner, name string, labels []string) ([]model.Issue, error)
	issueCalls    int
}

func (m *mockGitHub) RepoExists(ctx context.Context, owner, name string) (bool, error) {
	return m.repoExists(ctx, owner, name)
}

func (m *mockGitHub) IssuesByLabel(ctx context.Context, owner, name string, labels []string) ([]model.Issue, error) {
	m.issueCalls++
	return m.issuesByLabel(ctx, owner, name, labels)
}

type watermarkWrite struct {
	chatID int64
	repo   model.RepoRef
	at     time.Time
}

type mockStore struct {
	tracked       map[int64][]model.RepoRef
	trackedErr    error
	labels        map[string][]string
	labelsErr     error
	watermarks    map[string]*time.Time
	watermarkErr  error
	setLabelCalls []string
	writes        []watermarkWrite
	writeErr      error
	added         []watermarkWrite
	addErr        error
	removed       []model.RepoRef
	removeErr     error
	addedLabels   [][]string
}

func pairKey(chatID int64, repo model.RepoRef) string {
	return repo.FullName
}

func (m *mockStore) ListTracked(_ context.Context) (map[int64][]model.RepoRef, error) {
	return m.tracked, m.trackedErr
}

func (m *mockStore) ListChatRepos(_ context.Context, chatID int64) ([]model.RepoRef, error) {
	return m.tracked[chatID], nil
}

func (m *mockStore) TrackedLabels(_ context.Context, chatID int64, repo model.RepoRef) ([]string, error) {
	if m.labelsErr != nil {
		return nil, m.labelsErr
	}
	return m.labels[pairKey(chatID, repo)], nil
}

func (m *mockStore) SetTrackedLabels(_ context.Context, chatID int64, repo model.RepoRef, labels []string) error {
	m.setLabelCalls = labels
	return nil
}

func (m *mockStore) LastNotified(_ context.Context, chatID int64, repo model.RepoRef) (*time.Time, error) {
	if m.watermarkErr != nil {
		return nil, m.watermarkErr
	}
	return m.watermarks[pairKey(chatID, repo)], nil
}

func (m *mockStore) SetLastNotified(_ context.Context, chatID int64, repo model.RepoRef, at time.Time) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, watermarkWrite{chatID: chatID, repo: repo, at: at})
	if m.watermarks == nil {
		m.watermarks = make(map[string]*time.Time)
	}
	m.watermarks[pairKey(chatID, repo)] = &at
	return nil
}

func (m *mockStore) AddRepo(_ context.Context, chatID int64, repo model.RepoRef, labels []string) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, watermarkWrite{chatID: chatID, repo: repo})
	m.addedLabels = append(m.addedLabels, labels)
	return nil
}

func (m *mockStore) RemoveRepo(_ context.Context, chatID int64, repo model.RepoRef) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, repo)
	return nil
}

type sentBatch struct {
	chatID int64
	repo   string
	issues []model.Issue
}

type mockNotifier struct {
	sendErr error
	sent    []sentBatch
}

func (m *mockNotifier) SendNewIssues(_ context.Context, chatID int64, repoFullName string, issues []model.Issue) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentBatch{chatID: chatID, repo: repoFullName, issues: issues})
	return nil
}

// --- Helpers ---

func ref(t *testing.T, full string) model.RepoRef {
	t.Helper()
	repo, err := model.ParseRepoRef(full)
	require.NoError(t, err)
	return repo
}

func issueAt(number int, createdAt time.Time) model.Issue {
	return model.Issue{
		Number:    number,
		Title:     "issue",
		URL:       "https://example.invalid",
		CreatedAt: createdAt,
	}
}

// --- FilterNewIssues ---

func TestFilterNewIssues_StrictlyAfterWatermark(t *testing.T) {
	watermark := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	issues := []model.Issue{
		issueAt(1, watermark.Add(-time.Second)),
		issueAt(2, watermark),
		issueAt(3, watermark.Add(time.Second)),
	}

	fresh := FilterNewIssues(issues, watermark)

	require.Len(t, fresh, 1)
	assert.Equal(t, 3, fresh[0].Number)
}

func TestFilterNewIssues_EpochWatermarkKeepsEverything(t *testing.T) {
	issues := []model.Issue{
		issueAt(1, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
		issueAt(2, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)),
	}

	fresh := FilterNewIssues(issues, time.Unix(0, 0))
	assert.Len(t, fresh, 2)
}

// --- PollOnce ---

func TestPollOnce_DeliversAndAdvancesWatermark(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	goRepo := ref(t, "golang/go")
	old := now.Add(-time.Hour)

	gh := &mockGitHub{
		issuesByLabel: func(_ context.Context, owner, name string, labels []string) ([]model.Issue, error) {
			assert.Equal(t, "golang", owner)
			assert.Equal(t, "go", name)
			assert.Equal(t, []string{"help wanted"}, labels)
			return []model.Issue{
				issueAt(7, old.Add(30 * time.Minute)),
				issueAt(6, old.Add(-time.Minute)),
			}, nil
		},
	}
	store := &mockStore{
		tracked:    map[int64][]model.RepoRef{100: {goRepo}},
		labels:     map[string][]string{"golang/go": {"help wanted"}},
		watermarks: map[string]*time.Time{"golang/go": &old},
	}
	notifier := &mockNotifier{}

	svc := NewPollService(gh, store, notifier, time.Minute)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.PollOnce(context.Background()))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(100), notifier.sent[0].chatID)
	assert.Equal(t, "golang/go", notifier.sent[0].repo)
	require.Len(t, notifier.sent[0].issues, 1)
	assert.Equal(t, 7, notifier.sent[0].issues[0].Number)

	// The watermark advances to delivery time, not to the newest issue.
	require.Len(t, store.writes, 1)
	assert.True(t, store.writes[0].at.Equal(now))

	// A second cycle over unchanged remote data delivers nothing.
	require.NoError(t, svc.PollOnce(context.Background()))
	assert.Len(t, notifier.sent, 1)
}

func TestPollOnce_NoWatermarkDeliversBacklog(t *testing.T) {
	goRepo := ref(t, "golang/go")

	gh := &mockGitHub{
		issuesByLabel: func(context.Context, string, string, []string) ([]model.Issue, error) {
			return []model.Issue{issueAt(1, time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC))}, nil
		},
	}
	store := &mockStore{
		tracked:    map[int64][]model.RepoRef{100: {goRepo}},
		labels:     map[string][]string{"golang/go": {"help wanted"}},
		watermarks: map[string]*time.Time{},
	}
	notifier := &mockNotifier{}

	svc := NewPollService(gh, store, notifier, time.Minute)
	require.NoError(t, svc.PollOnce(context.Background()))

	require.Len(t, notifier.sent, 1)
	assert.Len(t, notifier.sent[0].issues, 1)
}

func TestPollOnce_EmptyLabelsSkipsFetch(t *testing.T) {
	goRepo := ref(t, "golang/go")

	gh := &mockGitHub{
		issuesByLabel: func(context.Context, string, string, []string) ([]model.Issue, error) {
			return nil, errors.New("should not be called")
		},
	}
	store := &mockStore{
		tracked: map[int64][]model.RepoRef{100: {goRepo}},
		labels:  map[string][]string{},
	}
	notifier := &mockNotifier{}

	svc := NewPollService(gh, store, notifier, time.Minute)
	require.NoError(t, svc.PollOnce(context.Background()))

	assert.Zero(t, gh.issueCalls)
	assert.Empty(t, notifier.sent)
}

func TestPollOnce_NoNewIssuesNoNotification(t *testing.T) {
	goRepo := ref(t, "golang/go")
	watermark := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	gh := &mockGitHub{
		issuesByLabel: func(context.Context, string, string, []string) ([]model.Issue, error) {
			return []model.Issue{issueAt(1, watermark.Add(-time.Hour))}, nil
		},
	}
	store := &mockStore{
		tracked:    map[int64][]model.RepoRef{100: {goRepo}},
		labels:     map[string][]string{"golang/go": {"help wanted"}},
		watermarks: map[string]*time.Time{"golang/go": &watermark},
	}
	notifier := &mockNotifier{}

	svc := NewPollService(gh, store, notifier, time.Minute)
	require.NoError(t, svc.PollOnce(context.Background()))

	assert.Empty(t, notifier.sent)
	assert.Empty(t, store.writes, "watermark must not move without a delivery")
}

func TestPollOnce_DeliveryFailureKeepsWatermark(t *testing.T) {
	goRepo := ref(t, "golang/go")

	gh := &mockGitHub{
		issuesByLabel: func(context.Context, string, string, []string) ([]model.Issue, error) {
			return []model.Issue{issueAt(1, time.Now())}, nil
		},
	}
	store := &mockStore{
		tracked: map[int64][]model.RepoRef{100: {goRepo}},
		labels:  map[string][]string{"golang/go": {"help wanted"}},
	}
	notifier := &mockNotifier{sendErr: errors.New("telegram down")}

	svc := NewPollService(gh, store, notifier, time.Minute)
	require.NoError(t, svc.PollOnce(context.Background()))

	assert.Empty(t, store.writes, "failed delivery must not advance the watermark")

	// Once delivery recovers, the next cycle sends the same batch.
	notifier.sendErr = nil
	require.NoError(t, svc.PollOnce(context.Background()))
	require.Len(t, notifier.sent, 1)
	assert.Len(t, store.writes, 1)
}

func TestPollOnce_FetchErrorSkipsPair(t *testing.T) {
	goRepo := ref(t, "golang/go")
	rustRepo := ref(t, "rust-lang/rust")

	gh := &mockGitHub{
		issuesByLabel: func(_ context.Context, owner, _ string, _ []string) ([]model.Issue, error) {
			if owner == "golang" {
				return nil, &driven.APIError{Code: "FORBIDDEN", Message: "nope"}
			}
			return []model.Issue{issueAt(1, time.Now())}, nil
		},
	}
	store := &mockStore{
		tracked: map[int64][]model.RepoRef{100: {goRepo, rustRepo}},
		labels: map[string][]string{
			"golang/go":      {"help wanted"},
			"rust-lang/rust": {"help wanted"},
		},
	}
	notifier := &mockNotifier{}

	svc := NewPollService(gh, store, notifier, time.Minute)
	require.NoError(t, svc.PollOnce(context.Background()), "a pair failure is not fatal")

	// The failing pair is skipped, the healthy one still delivers.
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "rust-lang/rust", notifier.sent[0].repo)
}

func TestPollOnce_UnauthorizedAbortsCycle(t *testing.T) {
	goRepo := ref(t, "golang/go")
	rustRepo := ref(t, "rust-lang/rust")

	gh := &mockGitHub{
		issuesByLabel: func(context.Context, string, string, []string) ([]model.Issue, error) {
			return nil, driven.ErrUnauthorized
		},
	}
	store := &mockStore{
		tracked: map[int64][]model.RepoRef{100: {goRepo, rustRepo}},
		labels: map[string][]string{
			"golang/go":      {"help wanted"},
			"rust-lang/rust": {"help wanted"},
		},
	}
	notifier := &mockNotifier{}

	svc := NewPollService(gh, store, notifier, time.Minute)
	err := svc.PollOnce(context.Background())

	require.ErrorIs(t, err, driven.ErrUnauthorized)
	assert.Equal(t, 1, gh.issueCalls, "remaining pairs must not be polled after auth failure")
}

func TestPollOnce_PairsBeforeAuthFailureStillDeliver(t *testing.T) {
	goRepo := ref(t, "golang/go")
	rustRepo := ref(t, "rust-lang/rust")

	// golang/go sorts first in the chat's repo slice, so it is polled before
	// the pair that trips the auth failure.
	gh := &mockGitHub{
		issuesByLabel: func(_ context.Context, owner, _ string, _ []string) ([]model.Issue, error) {
			if owner == "rust-lang" {
				return nil, driven.ErrUnauthorized
			}
			return []model.Issue{issueAt(1, time.Now())}, nil
		},
	}
	store := &mockStore{
		tracked: map[int64][]model.RepoRef{100: {goRepo, rustRepo}},
		labels: map[string][]string{
			"golang/go":      {"help wanted"},
			"rust-lang/rust": {"help wanted"},
		},
	}
	notifier := &mockNotifier{}

	svc := NewPollService(gh, store, notifier, time.Minute)
	err := svc.PollOnce(context.Background())

	require.ErrorIs(t, err, driven.ErrUnauthorized)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "golang/go", notifier.sent[0].repo)
}

func TestPollOnce_ListTrackedFailureIsFatal(t *testing.T) {
	store := &mockStore{trackedErr: errors.New("disk gone")}
	svc := NewPollService(&mockGitHub{}, store, &mockNotifier{}, time.Minute)

	err := svc.PollOnce(context.Background())
	require.Error(t, err)
}

func TestPollOnce_WatermarkWriteFailureStillDelivers(t *testing.T) {
	goRepo := ref(t, "golang/go")

	gh := &mockGitHub{
		issuesByLabel: func(context.Context, string, string, []string) ([]model.Issue, error) {
			return []model.Issue{issueAt(1, time.Now())}, nil
		},
	}
	store := &mockStore{
		tracked:  map[int64][]model.RepoRef{100: {goRepo}},
		labels:   map[string][]string{"golang/go": {"help wanted"}},
		writeErr: errors.New("disk full"),
	}
	notifier := &mockNotifier{}

	svc := NewPollService(gh, store, notifier, time.Minute)
	require.NoError(t, svc.PollOnce(context.Background()))

	assert.Len(t, notifier.sent, 1)
}

// --- Run ---

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := &mockStore{tracked: map[int64][]model.RepoRef{}}
	svc := NewPollService(&mockGitHub{}, store, &mockNotifier{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRun_PropagatesFatalError(t *testing.T) {
	store := &mockStore{trackedErr: errors.New("disk gone")}
	svc := NewPollService(&mockGitHub{}, store, &mockNotifier{}, time.Hour)

	err := svc.Run(context.Background())
	require.Error(t, err)
}
