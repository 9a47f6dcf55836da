package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"jobmate/ingest-service/internal/model"
	"jobmate/ingest-service/internal/store"
)

// RetryStats summarises one failed-extraction sweep.
type RetryStats struct {
	Attempted    int
	Resolved     int
	StillPending int
	ManualReview int
	// Blocked records now match a blocked term; they are resolved unstored.
	Blocked int
}

// RetryFailed re-extracts pending failed extractions with the same rules as
// first-pass ingestion. A success persists the job (dedup still applies) and
// resolves the record; another failure bumps its retry count, and reaching
// the cap parks it for manual review. Records are never deleted.
func (r *Runner) RetryFailed(ctx context.Context) (RetryStats, error) {
	var stats RetryStats

	records, err := r.deps.Jobs.ListRetryableFailures(ctx, r.cfg.RetryCap, r.cfg.SweepLimit)
	if err != nil {
		return stats, err
	}
	if len(records) == 0 {
		return stats, nil
	}

	channels, err := r.deps.Registry.ListActiveChannels(ctx)
	if err != nil {
		return stats, fmt.Errorf("load channel registry: %w", err)
	}
	categories := make(map[string]string, len(channels))
	for _, ch := range channels {
		categories[ch.ID] = ch.Category
	}

	for _, f := range records {
		stats.Attempted++
		job, keep, err := r.extractJob(model.RawMessage{
			ChannelID: f.ChannelID,
			MessageID: f.MessageID,
			Text:      f.RawText,
			PostedAt:  f.PostedAt,
			URL:       f.MessageURL,
		}, categories[f.ChannelID])
		if err == nil && keep {
			if _, uerr := r.deps.Jobs.UpsertIfNew(ctx, &job); uerr != nil {
				err = fmt.Errorf("persist: %w", uerr)
			}
		}

		if err != nil {
			_, status, rerr := r.deps.Jobs.RecordFailureRetry(ctx, f.ID, reason(err), r.cfg.RetryCap)
			if rerr != nil {
				return stats, fmt.Errorf("failed extraction %s: %w", f.ID, rerr)
			}
			if status == model.FailureManualReview {
				stats.ManualReview++
			} else {
				stats.StillPending++
			}
			continue
		}

		if err := r.deps.Jobs.ResolveFailure(ctx, f.ID); err != nil {
			return stats, err
		}
		if keep {
			stats.Resolved++
		} else {
			stats.Blocked++
		}
	}

	r.logger.Info("failed extraction sweep",
		zap.Int("attempted", stats.Attempted),
		zap.Int("resolved", stats.Resolved),
		zap.Int("blocked", stats.Blocked),
		zap.Int("manualReview", stats.ManualReview))
	return stats, nil
}

// NotifyStats summarises one notification sweep.
type NotifyStats struct {
	Jobs          int
	Notified      int
	Undelivered   int
	Sent          int
	TokensRemoved int64
}

// NotifyPending dispatches every recent job not yet notified. A job is
// flagged only once at least one of its batches was delivered; otherwise the
// next sweep picks it up again while it is inside the notification window.
func (r *Runner) NotifyPending(ctx context.Context) (NotifyStats, error) {
	var stats NotifyStats

	jobs, err := r.deps.Jobs.PendingNotificationJobs(ctx, r.now().Add(-r.cfg.NotifyWindow), r.cfg.SweepLimit)
	if err != nil {
		return stats, err
	}
	if len(jobs) == 0 {
		return stats, nil
	}

	subs, err := r.deps.Subscribers.ListNotifiableSubscribers(ctx)
	if err != nil {
		return stats, err
	}

	for _, job := range jobs {
		stats.Jobs++
		sum, err := r.deps.Notifier.Dispatch(ctx, job, subs)
		if err != nil {
			stats.Undelivered++
			r.logger.Warn("dispatch", zap.String("jobId", job.ID), zap.Error(err))
			continue
		}
		stats.Sent += sum.NotificationsSent

		if len(sum.InvalidTokens) > 0 {
			n, err := r.deps.Subscribers.RemovePushTokens(ctx, sum.InvalidTokens)
			if err != nil {
				r.logger.Warn("remove invalid push tokens", zap.String("jobId", job.ID), zap.Error(err))
			}
			stats.TokensRemoved += n
			subs = withoutTokens(subs, sum.InvalidTokens)
		}

		if !sum.Delivered() {
			stats.Undelivered++
			continue
		}
		if err := r.deps.Jobs.MarkNotificationSent(ctx, job.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return stats, err
		}
		stats.Notified++
	}

	r.logger.Info("notification sweep",
		zap.Int("jobs", stats.Jobs),
		zap.Int("notified", stats.Notified),
		zap.Int("sent", stats.Sent))
	return stats, nil
}

func withoutTokens(subs []model.SubscriberProfile, dead []string) []model.SubscriberProfile {
	drop := make(map[string]bool, len(dead))
	for _, t := range dead {
		drop[t] = true
	}
	out := make([]model.SubscriberProfile, len(subs))
	for i, s := range subs {
		kept := make([]string, 0, len(s.PushTokens))
		for _, t := range s.PushTokens {
			if !drop[t] {
				kept = append(kept, t)
			}
		}
		s.PushTokens = kept
		out[i] = s
	}
	return out
}
