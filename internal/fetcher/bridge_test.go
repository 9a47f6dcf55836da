package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/ingest-service/internal/model"
)

func TestFetchMessages(t *testing.T) {
	var gotPath, gotSince, gotLimit, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSince = r.URL.Query().Get("since")
		gotLimit = r.URL.Query().Get("limit")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[
			{"id": 11, "text": "Hiring a Go developer", "date": "2026-03-01T08:00:00Z"},
			{"id": 12, "text": "   ", "date": "2026-03-01T08:05:00Z"},
			{"id": 13, "text": "Accountant needed", "date": "2026-03-01T09:00:00Z", "url": "https://t.me/c/13"}
		]}`))
	}))
	defer srv.Close()

	b := NewBridge(srv.URL+"/", "secret", zap.NewNop())
	since := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	ch := model.Channel{ID: "ch-1", Username: "jobs_et"}

	msgs, err := b.FetchMessages(context.Background(), ch, &since, 50)
	require.NoError(t, err)

	assert.Equal(t, "/channels/jobs_et/messages", gotPath)
	assert.Equal(t, "2026-02-28T12:00:00Z", gotSince)
	assert.Equal(t, "50", gotLimit)
	assert.Equal(t, "Bearer secret", gotAuth)

	require.Len(t, msgs, 2, "blank posts are dropped")
	assert.Equal(t, "11", msgs[0].MessageID)
	assert.Equal(t, "ch-1", msgs[0].ChannelID)
	assert.Equal(t, "https://t.me/jobs_et/11", msgs[0].URL)
	assert.Equal(t, "https://t.me/c/13", msgs[1].URL)
}

func TestFetchMessages_NoCursor(t *testing.T) {
	var hasSince bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasSince = r.URL.Query()["since"]
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	msgs, err := NewBridge(srv.URL, "", zap.NewNop()).
		FetchMessages(context.Background(), model.Channel{Username: "x"}, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.False(t, hasSince)
}

func TestFetchMessages_ChannelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "private channel", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewBridge(srv.URL, "", zap.NewNop()).
		FetchMessages(context.Background(), model.Channel{Username: "private"}, nil, 10)
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestFetchMessages_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "flood wait", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewBridge(srv.URL, "", zap.NewNop()).
		FetchMessages(context.Background(), model.Channel{Username: "x"}, nil, 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChannelUnavailable)
	assert.Contains(t, err.Error(), "502")
}
