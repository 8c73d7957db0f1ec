package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/avasilyev/issuegram/internal/domain/port/driven"
)

// retryPolicy holds the exponential backoff parameters for one logical
// GraphQL call. The elapsed budget bounds the worst-case latency of a call
// to roughly a minute.
type retryPolicy struct {
	initialInterval time.Duration
	multiplier      float64
	maxInterval     time.Duration
	maxElapsed      time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		initialInterval: 1 * time.Second,
		multiplier:      2.0,
		maxInterval:     30 * time.Second,
		maxElapsed:      60 * time.Second,
	}
}

// graphqlRequest is the JSON body sent to the GitHub GraphQL API.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphqlError is one entry of a GraphQL response's errors array. GitHub
// reports machine-readable codes in "type" on data errors and in
// extensions.code on validation errors.
type graphqlError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

func (e graphqlError) code() string {
	if e.Type != "" {
		return e.Type
	}
	return e.Extensions.Code
}

// graphqlEnvelope is the outer shape of every GraphQL response.
type graphqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// rateLimitMeta extracts the quota block requested alongside every query.
type rateLimitMeta struct {
	RateLimit *struct {
		Remaining int       `json:"remaining"`
		ResetAt   time.Time `json:"resetAt"`
	} `json:"rateLimit"`
}

const rateLimitedCode = "RATE_LIMITED"

// query runs one logical GraphQL operation: the cooperative rate-limit guard
// first, then the request/response/parse pipeline driven as a unit through
// the retry policy. out is filled from the response's data field on success.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.limits.wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.initialInterval
	bo.Multiplier = c.retry.multiplier
	bo.MaxInterval = c.retry.maxInterval
	bo.MaxElapsedTime = c.retry.maxElapsed

	return backoff.Retry(func() error {
		return c.attempt(ctx, body, out)
	}, backoff.WithContext(bo, ctx))
}

// attempt performs a single request/response/parse pass and classifies the
// outcome. Returning a plain error marks the failure transient (the retry
// loop backs off and tries again); wrapping in backoff.Permanent stops the
// loop immediately and surfaces the inner error.
func (c *Client) attempt(ctx context.Context, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create graphql request: %w", err))
	}
	req.Header.Set("Authorization", "bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &driven.RequestError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to decoding.
	case resp.StatusCode == http.StatusUnauthorized:
		return backoff.Permanent(driven.ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("http 429: %w", driven.ErrRateLimited)
	case resp.StatusCode >= 500:
		return &driven.RequestError{Err: fmt.Errorf("http %d", resp.StatusCode)}
	default:
		return backoff.Permanent(&driven.APIError{
			Message: fmt.Sprintf("unexpected http status %d", resp.StatusCode),
		})
	}

	var envelope graphqlEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &driven.RequestError{Err: fmt.Errorf("decode graphql response: %w", err)}
	}

	// Quota metadata is recorded for every completed response, whether or
	// not the call itself succeeded.
	c.recordRateLimit(envelope.Data)

	if len(envelope.Errors) > 0 {
		for _, e := range envelope.Errors {
			if e.code() == rateLimitedCode {
				return fmt.Errorf("graphql: %s: %w", e.Message, driven.ErrRateLimited)
			}
		}
		first := envelope.Errors[0]
		return backoff.Permanent(&driven.APIError{Code: first.code(), Message: first.Message})
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return backoff.Permanent(&driven.APIError{Message: "no data in response"})
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &driven.RequestError{Err: fmt.Errorf("decode graphql data: %w", err)}
	}

	return nil
}

// recordRateLimit updates the shared quota state when the response data
// carries a rateLimit block.
func (c *Client) recordRateLimit(data json.RawMessage) {
	if len(data) == 0 {
		return
	}

	var meta rateLimitMeta
	if err := json.Unmarshal(data, &meta); err != nil || meta.RateLimit == nil {
		return
	}

	c.limits.update(meta.RateLimit.Remaining, meta.RateLimit.ResetAt)

	if meta.RateLimit.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", meta.RateLimit.Remaining,
			"reset_in", time.Until(meta.RateLimit.ResetAt).Round(time.Second),
		)
	}
}
