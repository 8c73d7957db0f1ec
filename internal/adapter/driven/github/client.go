// Package github implements the GitHubClient port against the GitHub
// GraphQL API, with REST used only to seed rate-limit state at startup.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/avasilyev/issuegram/internal/domain/model"
	"github.com/avasilyev/issuegram/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

const (
	defaultGraphQLURL = "https://api.github.com/graphql"

	// issuePageSize bounds how many issues one fetch returns. New issues
	// beyond the page are picked up by later cycles via the watermark.
	issuePageSize = 10
)

// Client implements the driven.GitHubClient port. All calls share one
// rateLimitState, so the guard and the retry loop see a single quota view
// regardless of how many goroutines use the client.
type Client struct {
	httpClient *http.Client
	rest       *gh.Client
	token      string
	graphqlURL string
	limits     *rateLimitState
	retry      retryPolicy
}

// NewClient creates a GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//
// GraphQL requests carry the token header directly; the embedded go-github
// client reuses the same stack for the REST rate-limit endpoint.
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	httpClient := github_ratelimit.NewClient(cacheTransport)
	rest := gh.NewClient(httpClient).WithAuthToken(token)

	return &Client{
		httpClient: httpClient,
		rest:       rest,
		token:      token,
		graphqlURL: defaultGraphQLURL,
		limits:     newRateLimitState(defaultQuotaThreshold),
		retry:      defaultRetryPolicy(),
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	rest := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	rest.BaseURL = u

	// Derive the GraphQL URL from baseURL so httptest servers can intercept
	// GraphQL requests.
	graphqlU := *u
	graphqlU.Path = "/graphql"

	return &Client{
		httpClient: httpClient,
		rest:       rest,
		token:      token,
		graphqlURL: graphqlU.String(),
		limits:     newRateLimitState(defaultQuotaThreshold),
		retry:      defaultRetryPolicy(),
	}, nil
}

// SeedRateLimit primes the shared quota state from the REST rate-limit
// endpoint. Best-effort at startup: without it the state starts optimistic
// and is corrected by the first GraphQL response.
func (c *Client) SeedRateLimit(ctx context.Context) error {
	limits, _, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		return fmt.Errorf("seed rate limit: %w", err)
	}

	if gql := limits.GetGraphQL(); gql != nil {
		c.limits.update(gql.Remaining, gql.Reset.Time)
		slog.Debug("github quota seeded",
			"remaining", gql.Remaining,
			"reset_at", gql.Reset.Time,
		)
	}

	return nil
}

// RateLimit returns the client's current view of the GraphQL quota.
func (c *Client) RateLimit() (remaining int, resetAt time.Time) {
	return c.limits.snapshot()
}

const repoExistsQuery = `query($owner: String!, $name: String!) {
	repository(owner: $owner, name: $name) {
		id
	}
	rateLimit {
		remaining
		resetAt
	}
}`

type repoExistsData struct {
	Repository *struct {
		ID string `json:"id"`
	} `json:"repository"`
}

// RepoExists reports whether owner/name resolves on GitHub. A NOT_FOUND
// GraphQL error is the API's way of saying no; it is not an error here.
func (c *Client) RepoExists(ctx context.Context, owner, name string) (bool, error) {
	var data repoExistsData
	err := c.query(ctx, repoExistsQuery, map[string]any{
		"owner": owner,
		"name":  name,
	}, &data)
	if err != nil {
		var apiErr *driven.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "NOT_FOUND" {
			return false, nil
		}
		return false, fmt.Errorf("checking repository %s/%s: %w", owner, name, err)
	}

	return data.Repository != nil, nil
}

const issuesByLabelQuery = `query($owner: String!, $name: String!, $labels: [String!], $count: Int!) {
	repository(owner: $owner, name: $name) {
		issues(first: $count, labels: $labels, states: OPEN, orderBy: {field: CREATED_AT, direction: DESC}) {
			nodes {
				number
				title
				url
				body
				createdAt
			}
		}
	}
	rateLimit {
		remaining
		resetAt
	}
}`

type issuesByLabelData struct {
	Repository *struct {
		Issues struct {
			Nodes []issueNode `json:"nodes"`
		} `json:"issues"`
	} `json:"repository"`
}

type issueNode struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// IssuesByLabel returns up to issuePageSize open issues carrying any of the
// given labels, newest first.
func (c *Client) IssuesByLabel(ctx context.Context, owner, name string, labels []string) ([]model.Issue, error) {
	if len(labels) == 0 {
		return []model.Issue{}, nil
	}

	var data issuesByLabelData
	err := c.query(ctx, issuesByLabelQuery, map[string]any{
		"owner":  owner,
		"name":   name,
		"labels": labels,
		"count":  issuePageSize,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("fetching issues for %s/%s: %w", owner, name, err)
	}

	if data.Repository == nil {
		return nil, &driven.APIError{Message: fmt.Sprintf("repository %s/%s not in response", owner, name)}
	}

	nodes := data.Repository.Issues.Nodes
	issues := make([]model.Issue, 0, len(nodes))
	for _, n := range nodes {
		issues = append(issues, model.Issue{
			Number:    n.Number,
			Title:     n.Title,
			URL:       n.URL,
			Body:      n.Body,
			CreatedAt: n.CreatedAt,
		})
	}

	return issues, nil
}
