package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/ingest-service/internal/model"
)

func TestNewJobPayload(t *testing.T) {
	company := "Acme"
	job := model.Job{ID: "j1", Title: "Go Developer", Category: "Tech", Company: &company, IsRemote: true}

	p := NewJobPayload(job)
	assert.Equal(t, "New Tech job", p.Notification.Title)
	assert.Equal(t, "Go Developer at Acme · Remote", p.Notification.Body)
	assert.Equal(t, Data{JobID: "j1", Category: "Tech", Type: "new_job"}, p.Data)
	assert.Equal(t, "high", p.PlatformHints.Priority)
}

func TestHTTPSender_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key=k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"successCount":1,"responses":[
			{"token":"a","success":true},
			{"token":"b","success":false,"error":"unregistered"},
			{"token":"c","success":false,"error":"unavailable"}
		]}`))
	}))
	defer srv.Close()

	res, err := NewHTTPSender(srv.URL, "k").
		Send(context.Background(), []string{"a", "b", "c"}, NewJobPayload(model.Job{ID: "j1", Category: "Tech"}))
	require.NoError(t, err)

	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, []string{"b", "c"}, res.FailedTokens)
	assert.Equal(t, []string{"b"}, res.InvalidTokens)

	assert.Len(t, got["tokens"], 3)
	data := got["data"].(map[string]any)
	assert.Equal(t, "new_job", data["type"])
	hints := got["platformHints"].(map[string]any)
	assert.Equal(t, "default", hints["sound"])
}

func TestHTTPSender_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSender(srv.URL, "").Send(context.Background(), []string{"a"}, Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPSender_RejectsOversizedBatch(t *testing.T) {
	tokens := make([]string, MaxBatchSize+1)
	for i := range tokens {
		tokens[i] = fmt.Sprint(i)
	}
	_, err := NewHTTPSender("http://unused.invalid", "").Send(context.Background(), tokens, Payload{})
	assert.Error(t, err)
}
