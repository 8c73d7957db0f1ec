package model

import "time"

// Issue is a GitHub issue as fetched from the API. Issues are read-only
// values refetched on every poll cycle; only the watermark filter decides
// whether one counts as new.
type Issue struct {
	Number    int
	Title     string
	URL       string
	Body      string // Markdown source; rendering happens in the notifier.
	CreatedAt time.Time
}
