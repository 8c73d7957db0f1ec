// Package telegram implements the Notifier port against the Telegram Bot
// API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avasilyev/issuegram/internal/domain/model"
	"github.com/avasilyev/issuegram/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Sink)(nil)

const defaultAPIBase = "https://api.telegram.org"

// Sink delivers new-issue notifications as Telegram messages.
type Sink struct {
	httpClient *http.Client
	apiBase    string
	token      string
}

// NewSink creates a Sink for the given bot token. The HTTP client enforces a
// 30-second timeout as a safety net alongside context cancellation.
func NewSink(token string) *Sink {
	return &Sink{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiBase:    defaultAPIBase,
		token:      token,
	}
}

// NewSinkWithHTTPClient creates a Sink with a custom http.Client and API
// base URL. This constructor is intended for testing, allowing injection of
// an httptest server.
func NewSinkWithHTTPClient(httpClient *http.Client, apiBase, token string) *Sink {
	return &Sink{
		httpClient: httpClient,
		apiBase:    apiBase,
		token:      token,
	}
}

// sendMessageRequest is the JSON body for the sendMessage method.
type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// sendMessageResponse is the minimal response shape we inspect.
type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendNewIssues delivers one batch of new issues for a repository as a
// single message. An empty batch is a no-op.
func (s *Sink) SendNewIssues(ctx context.Context, chatID int64, repoFullName string, issues []model.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	reqBody := sendMessageRequest{
		ChatID:                chatID,
		Text:                  newIssuesMessage(repoFullName, issues),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal sendMessage request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage to chat %d: %w", chatID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var tgResp sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&tgResp); err != nil {
		return fmt.Errorf("decode sendMessage response for chat %d: %w", chatID, err)
	}

	if !tgResp.OK {
		return fmt.Errorf("sendMessage to chat %d failed (http %d): %s", chatID, resp.StatusCode, tgResp.Description)
	}

	return nil
}
