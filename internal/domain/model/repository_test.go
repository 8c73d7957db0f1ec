package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasilyev/issuegram/internal/domain/model"
)

func TestParseRepoRef_OwnerNameForm(t *testing.T) {
	repo, err := model.ParseRepoRef("golang/go")
	require.NoError(t, err)

	assert.Equal(t, "golang", repo.Owner)
	assert.Equal(t, "go", repo.Name)
	assert.Equal(t, "golang/go", repo.FullName)
	assert.Equal(t, "golang/go", repo.String())
}

func TestParseRepoRef_TrimsWhitespace(t *testing.T) {
	repo, err := model.ParseRepoRef("  golang/go \n")
	require.NoError(t, err)
	assert.Equal(t, "golang/go", repo.FullName)
}

func TestParseRepoRef_URLForms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"https URL", "https://github.com/golang/go", "golang/go"},
		{"trailing slash", "https://github.com/golang/go/", "golang/go"},
		{"www host", "https://www.github.com/golang/go", "golang/go"},
		{"schemeless", "github.com/golang/go", "golang/go"},
		{"git suffix", "https://github.com/golang/go.git", "golang/go"},
		{"tree path ignored", "https://github.com/golang/go/tree/master/src", "golang/go"},
		{"issues path ignored", "https://github.com/golang/go/issues?q=is%3Aopen", "golang/go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := model.ParseRepoRef(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, repo.FullName)
		})
	}
}

func TestParseRepoRef_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"no slash", "golang"},
		{"too many segments", "a/b/c"},
		{"empty owner", "/go"},
		{"empty name", "golang/"},
		{"wrong host", "https://gitlab.com/golang/go"},
		{"url without repo", "https://github.com/golang"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.ParseRepoRef(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidRepoRef)
		})
	}
}

func TestNewRepoRef_RejectsSlash(t *testing.T) {
	_, err := model.NewRepoRef("own/er", "name")
	assert.ErrorIs(t, err, model.ErrInvalidRepoRef)
}

func TestDefaultLabels(t *testing.T) {
	labels := model.DefaultLabels()
	assert.Equal(t, []string{"good first issue", "beginner-friendly", "help wanted"}, labels)

	// Mutating the returned slice must not affect later callers.
	labels[0] = "changed"
	assert.Equal(t, "good first issue", model.DefaultLabels()[0])
}
