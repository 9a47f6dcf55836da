// Package notify fans a new job out to matching subscribers as push
// notifications, in provider-sized batches.
package notify

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmate/ingest-service/internal/batch"
	"jobmate/ingest-service/internal/match"
	"jobmate/ingest-service/internal/metrics"
	"jobmate/ingest-service/internal/model"
	"jobmate/ingest-service/internal/retry"
)

// Options tunes a Dispatcher. Zero values select defaults.
type Options struct {
	BatchSize   int // capped at MaxBatchSize
	Concurrency int
	MinScore    int
	Retry       retry.Policy
}

// Dispatcher scores subscribers against a job and sends the push in batches.
type Dispatcher struct {
	sender Sender
	opts   Options
	logger *zap.Logger
}

func NewDispatcher(sender Sender, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.BatchSize <= 0 || opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Default()
	}
	return &Dispatcher{sender: sender, opts: opts, logger: logger.Named("notify")}
}

// Recipient is a subscriber that passed the relevance gate.
type Recipient struct {
	UserID string
	Score  int
	Tokens []string
}

// Summary aggregates every batch of one job's dispatch.
type Summary struct {
	model.NotificationResult
	Recipients    int
	Batches       int
	InvalidTokens []string
}

// Delivered reports whether the job can be flagged as notified: at least one
// batch went through. A job with no eligible recipient stays pending until it
// leaves the notification window.
func (s Summary) Delivered() bool { return s.Success }

// Recipients selects subscribers whose preferred categories include the
// job's category and whose score reaches MinScore, best match first.
func (d *Dispatcher) Recipients(job model.Job, subs []model.SubscriberProfile) []Recipient {
	out := make([]Recipient, 0)
	for _, s := range subs {
		if !s.NotificationsEnabled || len(s.PushTokens) == 0 {
			continue
		}
		if !match.ContainsFold(s.PreferredCategories, job.Category) {
			continue
		}
		score := match.Score(job, s)
		if score < d.opts.MinScore {
			continue
		}
		out = append(out, Recipient{UserID: s.UserID, Score: score, Tokens: s.PushTokens})
	}
	slices.SortStableFunc(out, func(a, b Recipient) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		if a.UserID < b.UserID {
			return -1
		}
		if a.UserID > b.UserID {
			return 1
		}
		return 0
	})
	return out
}

// Dispatch sends the new-job push for job to every eligible subscriber.
// Each batch is retried independently; a batch that still fails only marks
// its own tokens as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, job model.Job, subs []model.SubscriberProfile) (Summary, error) {
	recipients := d.Recipients(job, subs)
	sum := Summary{Recipients: len(recipients)}
	if len(recipients) == 0 {
		d.logger.Debug("no eligible subscribers", zap.String("jobId", job.ID))
		return sum, nil
	}

	tokens := uniqueTokens(recipients)
	chunks, err := batch.Chunk(tokens, d.opts.BatchSize)
	if err != nil {
		return sum, err
	}

	payload := NewJobPayload(job)
	var (
		mu      sync.Mutex
		results = make(map[int]model.NotificationResult)
		invalid []string
		g       errgroup.Group
	)
	g.SetLimit(d.opts.Concurrency)

	n := 0
	for group := range chunks {
		idx := n
		n++
		g.Go(func() error {
			res, dead := d.sendBatch(ctx, job, idx, group, payload)
			mu.Lock()
			results[idx] = res
			invalid = append(invalid, dead...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sum.Batches = n
	for i := range n {
		sum.Merge(results[i])
	}
	slices.Sort(invalid)
	sum.InvalidTokens = invalid

	d.logger.Info("job dispatched",
		zap.String("jobId", job.ID),
		zap.Int("recipients", sum.Recipients),
		zap.Int("batches", sum.Batches),
		zap.Int("sent", sum.NotificationsSent),
		zap.Int("failedTokens", len(sum.FailedTokens)),
	)
	return sum, nil
}

func (d *Dispatcher) sendBatch(ctx context.Context, job model.Job, idx int, tokens []string, p Payload) (model.NotificationResult, []string) {
	policy := d.opts.Retry
	policy.OnRetry = func(attempt int, err error) {
		d.logger.Warn("push batch failed, retrying",
			zap.String("jobId", job.ID), zap.Int("batch", idx),
			zap.Int("attempt", attempt), zap.Error(err))
	}

	res, err := retry.DoValue(ctx, policy, func(ctx context.Context) (SendResult, error) {
		return d.sender.Send(ctx, tokens, p)
	})
	if err != nil {
		metrics.NotificationBatches.WithLabelValues("failed").Inc()
		return model.NotificationResult{
			FailedTokens: slices.Clone(tokens),
			Errors:       []string{fmt.Sprintf("batch %d: %v", idx, err)},
		}, nil
	}

	metrics.NotificationBatches.WithLabelValues("ok").Inc()
	return model.NotificationResult{
		Success:           res.SuccessCount > 0,
		NotificationsSent: res.SuccessCount,
		FailedTokens:      res.FailedTokens,
	}, res.InvalidTokens
}

func uniqueTokens(rs []Recipient) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range rs {
		for _, t := range r.Tokens {
			if _, dup := seen[t]; dup || t == "" {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
