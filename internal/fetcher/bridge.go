// Package fetcher reads channel history from the messaging-platform bridge.
//
// The bridge is a small HTTP sidecar that owns the platform session. This
// package only knows its "list messages since cursor" contract.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmate/ingest-service/internal/model"
)

const (
	httpTimeout  = 15 * time.Second
	maxBodyBytes = 8 << 20
	DefaultLimit = 100
)

// ErrChannelUnavailable means the bridge refused the channel (unknown,
// private, or the platform rejected our credentials for it).
var ErrChannelUnavailable = errors.New("channel unavailable")

// Bridge fetches messages over HTTP.
type Bridge struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewBridge constructs a fetcher with a shared HTTP client.
func NewBridge(baseURL, apiKey string, logger *zap.Logger) *Bridge {
	return &Bridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: httpTimeout},
		logger:  logger.Named("fetcher"),
	}
}

// bridgeResponse mirrors the bridge's JSON body.
type bridgeResponse struct {
	Messages []bridgeMessage `json:"messages"`
}

type bridgeMessage struct {
	ID   json.Number `json:"id"`
	Text string      `json:"text"`
	Date time.Time   `json:"date"`
	URL  string      `json:"url"`
}

// FetchMessages returns up to limit messages posted on ch after since.
// A nil since asks for the latest messages. Posts without text are dropped.
func (b *Bridge) FetchMessages(ctx context.Context, ch model.Channel, since *time.Time, limit int) ([]model.RawMessage, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if since != nil {
		params.Set("since", since.UTC().Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/channels/%s/messages?%s",
		b.baseURL, url.PathEscape(ch.Username), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET %s: %w", ch.Username, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: @%s (%d)", ErrChannelUnavailable, ch.Username, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("bridge returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed bridgeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	msgs := make([]model.RawMessage, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		link := m.URL
		if link == "" {
			link = fmt.Sprintf("https://t.me/%s/%s", ch.Username, m.ID)
		}
		msgs = append(msgs, model.RawMessage{
			ChannelID: ch.ID,
			MessageID: m.ID.String(),
			Text:      m.Text,
			PostedAt:  m.Date,
			URL:       link,
		})
	}

	b.logger.Debug("fetched messages",
		zap.String("channelId", ch.ID), zap.Int("count", len(msgs)))
	return msgs, nil
}
