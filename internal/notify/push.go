package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jobmate/ingest-service/internal/model"
)

// MaxBatchSize is the provider's limit on tokens per multicast request.
const MaxBatchSize = 500

const pushTimeout = 10 * time.Second

// Payload is the body of one push, minus its recipients.
type Payload struct {
	Notification  Notification  `json:"notification"`
	Data          Data          `json:"data"`
	PlatformHints PlatformHints `json:"platformHints"`
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Data struct {
	JobID    string `json:"jobId"`
	Category string `json:"category"`
	Type     string `json:"type"`
}

// PlatformHints carries per-platform delivery options; empty ones are omitted.
type PlatformHints struct {
	Priority    string `json:"priority"`
	Sound       string `json:"sound,omitempty"`
	Badge       int    `json:"badge,omitempty"`
	ChannelID   string `json:"channelId,omitempty"`
	ClickAction string `json:"clickAction,omitempty"`
}

// NewJobPayload builds the "new job" push for job.
func NewJobPayload(job model.Job) Payload {
	body := job.Title
	if job.Company != nil {
		body += " at " + *job.Company
	}
	if job.Location != nil {
		body += " · " + *job.Location
	} else if job.IsRemote {
		body += " · Remote"
	}
	return Payload{
		Notification: Notification{
			Title: fmt.Sprintf("New %s job", job.Category),
			Body:  body,
		},
		Data: Data{JobID: job.ID, Category: job.Category, Type: "new_job"},
		PlatformHints: PlatformHints{
			Priority:    "high",
			Sound:       "default",
			Badge:       1,
			ChannelID:   "job_alerts",
			ClickAction: "OPEN_JOB",
		},
	}
}

// SendResult is the provider's verdict on one multicast.
type SendResult struct {
	SuccessCount int
	// FailedTokens were not delivered this time.
	FailedTokens []string
	// InvalidTokens are permanently dead and should be forgotten.
	InvalidTokens []string
}

// Sender delivers one payload to at most MaxBatchSize tokens.
type Sender interface {
	Send(ctx context.Context, tokens []string, p Payload) (SendResult, error)
}

// HTTPSender posts multicasts to a push gateway.
type HTTPSender struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPSender(url, apiKey string) *HTTPSender {
	return &HTTPSender{url: url, apiKey: apiKey, client: &http.Client{Timeout: pushTimeout}}
}

type multicastRequest struct {
	Tokens []string `json:"tokens"`
	Payload
}

type multicastResponse struct {
	SuccessCount int `json:"successCount"`
	Responses    []struct {
		Token   string `json:"token"`
		Success bool   `json:"success"`
		Error   string `json:"error"`
	} `json:"responses"`
}

var invalidTokenErrors = map[string]bool{
	"unregistered":               true,
	"invalid-registration-token": true,
	"invalid-argument":           true,
}

// Send posts one multicast. A non-2xx status is an error so the caller can
// retry; per-token failures are reported in the result.
func (s *HTTPSender) Send(ctx context.Context, tokens []string, p Payload) (SendResult, error) {
	if len(tokens) > MaxBatchSize {
		return SendResult{}, fmt.Errorf("batch of %d exceeds limit %d", len(tokens), MaxBatchSize)
	}
	body, err := json.Marshal(multicastRequest{Tokens: tokens, Payload: p})
	if err != nil {
		return SendResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "key="+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("http POST: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return SendResult{}, fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed multicastResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return SendResult{}, fmt.Errorf("json unmarshal: %w", err)
	}

	res := SendResult{SuccessCount: parsed.SuccessCount}
	for _, r := range parsed.Responses {
		if r.Success {
			continue
		}
		res.FailedTokens = append(res.FailedTokens, r.Token)
		if invalidTokenErrors[r.Error] {
			res.InvalidTokens = append(res.InvalidTokens, r.Token)
		}
	}
	return res, nil
}
