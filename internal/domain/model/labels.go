package model

// DefaultLabels returns the starter label subscription applied when a
// repository is first tracked. Callers receive a fresh copy.
func DefaultLabels() []string {
	return []string{"good first issue", "beginner-friendly", "help wanted"}
}
