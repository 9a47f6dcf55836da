package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"jobmate/ingest-service/internal/model"
)

// SaveFailedExtraction records a message the engine could not parse. A
// message already on record is left untouched: the retry sweep owns its
// retry_count, and re-running the pipeline must not multiply records.
func (p *Postgres) SaveFailedExtraction(ctx context.Context, f *model.FailedExtraction) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = model.FailurePending
	}
	_, err := p.db.Exec(ctx,
		`INSERT INTO failed_extractions (id, channel_id, message_id, raw_text, message_url,
		                                 posted_at, reason, retry_count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (channel_id, message_id) DO NOTHING`,
		f.ID, f.ChannelID, f.MessageID, f.RawText, f.MessageURL,
		f.PostedAt, f.Reason, f.RetryCount, f.Status,
	)
	if err != nil {
		return fmt.Errorf("save failed extraction %s/%s: %w", f.ChannelID, f.MessageID, err)
	}
	return nil
}

// ListRetryableFailures returns pending records whose retry_count is below
// retryCap, oldest first.
func (p *Postgres) ListRetryableFailures(ctx context.Context, retryCap, limit int) ([]model.FailedExtraction, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, channel_id, message_id, raw_text, message_url, posted_at, reason,
		        retry_count, status, created_at
		 FROM failed_extractions
		 WHERE status = 'pending' AND retry_count < $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		retryCap, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query failed extractions: %w", err)
	}
	defer rows.Close()

	out := make([]model.FailedExtraction, 0)
	for rows.Next() {
		var f model.FailedExtraction
		if err := rows.Scan(
			&f.ID, &f.ChannelID, &f.MessageID, &f.RawText, &f.MessageURL, &f.PostedAt,
			&f.Reason, &f.RetryCount, &f.Status, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan failed extraction: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordFailureRetry bumps retry_count after another failed attempt. Once
// the count reaches retryCap the record becomes manual_review and is no
// longer picked up by the sweep. Returns the new count and status.
func (p *Postgres) RecordFailureRetry(ctx context.Context, id, reason string, retryCap int) (int, string, error) {
	var (
		count  int
		status string
	)
	err := p.db.QueryRow(ctx,
		`UPDATE failed_extractions
		 SET retry_count = retry_count + 1,
		     reason      = $2,
		     status      = CASE WHEN retry_count + 1 >= $3 THEN 'manual_review' ELSE 'pending' END,
		     updated_at  = NOW()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING retry_count, status`,
		id, reason, retryCap,
	).Scan(&count, &status)
	if err != nil {
		return 0, "", notFound(err, "record failure retry")
	}
	return count, status, nil
}

// ResolveFailure marks a record as resolved after a successful re-extraction.
func (p *Postgres) ResolveFailure(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE failed_extractions SET status = 'resolved', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("resolve failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("resolve failure %s: %w", id, ErrNotFound)
	}
	return nil
}
