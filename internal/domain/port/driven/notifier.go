package driven

import (
	"context"

	"github.com/avasilyev/issuegram/internal/domain/model"
)

// Notifier defines the driven port for delivering new-issue notifications to
// a chat. One call delivers one batch; delivery is all-or-nothing from the
// poll service's perspective.
type Notifier interface {
	SendNewIssues(ctx context.Context, chatID int64, repoFullName string, issues []model.Issue) error
}
