// Package pipeline orchestrates a scraping run: it walks the channel
// registry, fetches and extracts messages, persists new jobs, folds each
// channel's outcome into the session and reports to operators when done.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmate/ingest-service/internal/extract"
	"jobmate/ingest-service/internal/metrics"
	"jobmate/ingest-service/internal/model"
	"jobmate/ingest-service/internal/notify"
	"jobmate/ingest-service/internal/retry"
	"jobmate/ingest-service/internal/session"
	"jobmate/ingest-service/internal/store"
)

// ─── Collaborators ───────────────────────────────────────────────────────────

type ChannelRegistry interface {
	ListActiveChannels(ctx context.Context) ([]model.Channel, error)
}

type MessageFetcher interface {
	FetchMessages(ctx context.Context, ch model.Channel, since *time.Time, limit int) ([]model.RawMessage, error)
}

type Extractor interface {
	Extract(msg model.RawMessage) (model.Job, error)
}

// JobStore is the persistence side of the pipeline.
type JobStore interface {
	UpsertIfNew(ctx context.Context, job *model.Job) (store.Outcome, error)
	SaveFailedExtraction(ctx context.Context, f *model.FailedExtraction) error
	ListRetryableFailures(ctx context.Context, retryCap, limit int) ([]model.FailedExtraction, error)
	RecordFailureRetry(ctx context.Context, id, reason string, retryCap int) (int, string, error)
	ResolveFailure(ctx context.Context, id string) error
	PendingNotificationJobs(ctx context.Context, since time.Time, limit int) ([]model.Job, error)
	MarkNotificationSent(ctx context.Context, jobID string) error
}

type SubscriberStore interface {
	ListNotifiableSubscribers(ctx context.Context) ([]model.SubscriberProfile, error)
	RemovePushTokens(ctx context.Context, tokens []string) (int64, error)
}

// Sessions is implemented by *session.Tracker.
type Sessions interface {
	Create(ctx context.Context) (*session.Session, error)
	Start(ctx context.Context, id string, totalChannels int) error
	RecordChannel(ctx context.Context, id string, out session.ChannelOutcome) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause error) error
	Get(ctx context.Context, id string) (*session.Session, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, job model.Job, subs []model.SubscriberProfile) (notify.Summary, error)
}

// Reporter is implemented by *report.Emitter.
type Reporter interface {
	Completed(ctx context.Context, s *session.Session) error
	Failed(ctx context.Context, s *session.Session) error
}

// Deps bundles every collaborator of a Runner.
type Deps struct {
	Registry    ChannelRegistry
	Fetcher     MessageFetcher
	Extractor   Extractor
	Jobs        JobStore
	Subscribers SubscriberStore
	Sessions    Sessions
	Notifier    Notifier
	Reporter    Reporter
}

// Config tunes a Runner. Zero values select defaults.
type Config struct {
	Workers      int
	FetchLimit   int
	RetryCap     int
	BlockedTerms []string
	Retry        retry.Policy
	// CursorOverlap is subtracted from a channel's lastScraped before fetching.
	CursorOverlap time.Duration
	// NotifyWindow bounds how old an unnotified job may be and still be pushed.
	NotifyWindow time.Duration
	// SweepLimit bounds rows loaded by the retry and notification sweeps.
	SweepLimit int
}

const (
	defaultWorkers       = 4
	defaultFetchLimit    = 100
	defaultRetryCap      = 3
	defaultCursorOverlap = time.Hour
	defaultNotifyWindow  = 24 * time.Hour
	defaultSweepLimit    = 200
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.FetchLimit <= 0 {
		c.FetchLimit = defaultFetchLimit
	}
	if c.RetryCap <= 0 {
		c.RetryCap = defaultRetryCap
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.Default()
	}
	if c.CursorOverlap <= 0 {
		c.CursorOverlap = defaultCursorOverlap
	}
	if c.NotifyWindow <= 0 {
		c.NotifyWindow = defaultNotifyWindow
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = defaultSweepLimit
	}
	return c
}

// ─── Runner ──────────────────────────────────────────────────────────────────

// Runner executes scraping runs.
type Runner struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// New constructs a Runner.
func New(deps Deps, cfg Config, logger *zap.Logger) *Runner {
	return &Runner{deps: deps, cfg: cfg.withDefaults(), logger: logger.Named("pipeline"), now: time.Now}
}

// Start creates a session and processes it in the background. It returns
// as soon as the session document exists; the run outlives ctx.
func (r *Runner) Start(ctx context.Context) (string, error) {
	s, err := r.deps.Sessions.Create(ctx)
	if err != nil {
		return "", err
	}

	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(runCtx, s.ID)
	}()
	return s.ID, nil
}

// Run creates a session and processes it before returning the final document.
// Once the session exists the run no longer follows ctx cancellation, so a
// session is never left running; Wait covers it like a started run.
func (r *Runner) Run(ctx context.Context) (*session.Session, error) {
	s, err := r.deps.Sessions.Create(ctx)
	if err != nil {
		return nil, err
	}

	r.wg.Add(1)
	defer r.wg.Done()
	runCtx := context.WithoutCancel(ctx)
	r.execute(runCtx, s.ID)
	return r.deps.Sessions.Get(runCtx, s.ID)
}

// Wait blocks until every run launched by Start or Run has finished.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) execute(ctx context.Context, id string) {
	log := r.logger.With(zap.String("sessionId", id))
	started := r.now()

	channels, err := r.deps.Registry.ListActiveChannels(ctx)
	if err != nil {
		r.fail(ctx, id, fmt.Errorf("load channel registry: %w", err))
		return
	}
	if err := r.deps.Sessions.Start(ctx, id, len(channels)); err != nil {
		r.fail(ctx, id, fmt.Errorf("start session: %w", err))
		return
	}
	log.Info("run started", zap.Int("channels", len(channels)), zap.Int("workers", r.cfg.Workers))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for _, ch := range channels {
		g.Go(func() error {
			out := r.processChannel(ctx, ch)
			if out.Err != nil {
				metrics.ChannelErrors.Inc()
				log.Warn("channel skipped", zap.String("channelId", ch.ID), zap.Error(out.Err))
			}
			if err := r.deps.Sessions.RecordChannel(ctx, id, out); err != nil {
				log.Error("record channel outcome", zap.String("channelId", ch.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := r.deps.Sessions.Complete(ctx, id); err != nil {
		r.fail(ctx, id, fmt.Errorf("complete session: %w", err))
		return
	}
	metrics.Sessions.WithLabelValues(string(session.StatusCompleted)).Inc()
	metrics.RunDuration.Observe(r.now().Sub(started).Seconds())

	if s, err := r.deps.Sessions.Get(ctx, id); err != nil {
		log.Warn("reload session for report", zap.Error(err))
	} else {
		log.Info("run completed",
			zap.Int("processedChannels", s.ProcessedChannels),
			zap.Int("jobs", s.TotalJobsExtracted),
			zap.Int("messages", s.TotalMessagesProcessed),
			zap.Int("errors", len(s.Errors)))
		if err := r.deps.Reporter.Completed(ctx, s); err != nil {
			log.Warn("completion report", zap.Error(err))
		}
	}

	if _, err := r.NotifyPending(ctx); err != nil {
		log.Warn("notification sweep after run", zap.Error(err))
	}
}

// fail records a run-level fatal error and sends the failure report.
func (r *Runner) fail(ctx context.Context, id string, cause error) {
	log := r.logger.With(zap.String("sessionId", id))
	log.Error("run failed", zap.Error(cause))
	metrics.Sessions.WithLabelValues(string(session.StatusFailed)).Inc()

	if err := r.deps.Sessions.Fail(ctx, id, cause); err != nil {
		log.Error("mark session failed", zap.Error(err))
	}

	s, err := r.deps.Sessions.Get(ctx, id)
	if err != nil {
		s = &session.Session{ID: id, Status: session.StatusFailed, Error: cause.Error(), StartedAt: r.now().UTC()}
	}
	if err := r.deps.Reporter.Failed(ctx, s); err != nil {
		log.Warn("failure report", zap.Error(err))
	}
}

// processChannel runs fetch → extract → persist for one channel. Every
// problem is returned in the outcome; nothing here aborts the run.
func (r *Runner) processChannel(ctx context.Context, ch model.Channel) session.ChannelOutcome {
	log := r.logger.With(zap.String("channelId", ch.ID), zap.String("channel", ch.Username))

	policy := r.cfg.Retry
	policy.OnRetry = func(attempt int, err error) {
		log.Warn("fetch failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	since := r.cursor(ch)
	msgs, err := retry.DoValue(ctx, policy, func(ctx context.Context) ([]model.RawMessage, error) {
		return r.deps.Fetcher.FetchMessages(ctx, ch, since, r.cfg.FetchLimit)
	})
	if err != nil {
		return session.ChannelOutcome{Err: fmt.Errorf("@%s: %w", ch.Username, err)}
	}

	slices.SortStableFunc(msgs, func(a, b model.RawMessage) int {
		return a.PostedAt.Compare(b.PostedAt)
	})

	out := session.ChannelOutcome{}
	for _, m := range msgs {
		out.Messages++
		metrics.MessagesProcessed.Inc()

		created, err := r.ingest(ctx, ch, m)
		if err != nil {
			out.Err = fmt.Errorf("@%s: message %s: %w", ch.Username, m.MessageID, err)
			return out
		}
		if created {
			out.Jobs++
		}
	}

	log.Debug("channel done", zap.Int("messages", out.Messages), zap.Int("jobs", out.Jobs))
	return out
}

// ingest handles one message. It reports whether a new job was stored. A
// message that cannot be stored is recorded as a failed extraction so the
// channel moves on; an error means even that record could not be written.
func (r *Runner) ingest(ctx context.Context, ch model.Channel, m model.RawMessage) (bool, error) {
	job, keep, err := r.extractJob(m, ch.Category)
	if err != nil {
		metrics.Jobs.WithLabelValues(metrics.OutcomeFailed).Inc()
		return false, r.saveFailure(ctx, m, reason(err))
	}
	if !keep {
		metrics.Jobs.WithLabelValues(metrics.OutcomeBlocked).Inc()
		return false, nil
	}

	outcome, err := r.deps.Jobs.UpsertIfNew(ctx, &job)
	if err != nil {
		metrics.Jobs.WithLabelValues(metrics.OutcomeFailed).Inc()
		r.logger.Warn("job not stored", zap.String("key", job.Key().String()), zap.Error(err))
		if serr := r.saveFailure(ctx, m, "persist: "+err.Error()); serr != nil {
			return false, fmt.Errorf("%w (record failure: %v)", err, serr)
		}
		return false, nil
	}
	metrics.Jobs.WithLabelValues(outcome.String()).Inc()
	return outcome == store.Created, nil
}

// extractJob applies the rules shared by first-pass ingestion and the retry
// sweep. Blocked posts return keep=false without error; a job the engine
// could not categorise takes the channel's category.
func (r *Runner) extractJob(m model.RawMessage, channelCategory string) (job model.Job, keep bool, err error) {
	if extract.ContainsBlockedTerm(m.Text, r.cfg.BlockedTerms) {
		return model.Job{}, false, nil
	}
	job, err = r.deps.Extractor.Extract(m)
	if err != nil {
		return model.Job{}, false, err
	}
	if job.Category == extract.FallbackCategory && channelCategory != "" {
		job.Category = channelCategory
	}
	return job, true, nil
}

// saveFailure records m for the retry sweep. Postgres rejects NUL bytes in
// text columns, so they are dropped from the stored copy.
func (r *Runner) saveFailure(ctx context.Context, m model.RawMessage, why string) error {
	return r.deps.Jobs.SaveFailedExtraction(ctx, &model.FailedExtraction{
		ChannelID:  m.ChannelID,
		MessageID:  m.MessageID,
		RawText:    strings.ReplaceAll(m.Text, "\x00", ""),
		MessageURL: m.URL,
		PostedAt:   m.PostedAt,
		Reason:     strings.ReplaceAll(why, "\x00", ""),
		Status:     model.FailurePending,
	})
}

// cursor is the "since" of the next fetch: lastScraped minus an overlap so
// late-arriving posts are not missed. Dedup absorbs the overlap.
func (r *Runner) cursor(ch model.Channel) *time.Time {
	if ch.LastScraped == nil {
		return nil
	}
	since := ch.LastScraped.Add(-r.cfg.CursorOverlap)
	return &since
}

func reason(err error) string {
	var f *extract.Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return err.Error()
}
