package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"jobmate/ingest-service/internal/model"
)

// Outcome of UpsertIfNew.
type Outcome int

const (
	Created Outcome = iota + 1
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// UpsertIfNew inserts job unless a row with the same (channel_id, message_id)
// exists. On insert the owning channel's total_jobs_scraped is bumped and
// last_scraped advanced in the same statement. Duplicates are not errors.
//
// job.ID is assigned when empty; job.CreatedAt is filled on Created.
func (p *Postgres) UpsertIfNew(ctx context.Context, job *model.Job) (Outcome, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	var createdAt time.Time
	err := p.db.QueryRow(ctx,
		`WITH ins AS (
		   INSERT INTO jobs (id, title, category, contract_type, salary, currency, tags,
		                     description, apply_link, channel_id, raw_text, location, company,
		                     experience_level, is_remote, required_skills, experience_years,
		                     education_required, posted_at, extracted_at, message_id, message_url)
		   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		           $17, $18, $19, $20, $21, $22)
		   ON CONFLICT (channel_id, message_id) DO NOTHING
		   RETURNING id, created_at
		 ), bump AS (
		   UPDATE channels
		   SET total_jobs_scraped = total_jobs_scraped + 1,
		       last_scraped       = NOW()
		   WHERE id = $10 AND EXISTS (SELECT 1 FROM ins)
		 )
		 SELECT created_at FROM ins`,
		job.ID, job.Title, job.Category, enumText(job.ContractType), job.Salary, job.Currency,
		nonNil(job.Tags), job.Description, job.ApplyLink, job.ChannelID, job.RawText,
		job.Location, job.Company, enumText(job.ExperienceLevel), job.IsRemote,
		nonNil(job.RequiredSkills), job.ExperienceYears, educationText(job.EducationRequired),
		job.PostedAt, job.ExtractedAt, job.MessageID, job.MessageURL,
	).Scan(&createdAt)

	if errors.Is(err, pgx.ErrNoRows) {
		p.logger.Debug("duplicate job discarded", zap.String("key", job.Key().String()))
		return Duplicate, nil
	}
	if err != nil {
		return 0, fmt.Errorf("upsert job %s: %w", job.Key(), err)
	}
	job.CreatedAt = createdAt
	return Created, nil
}

const jobColumns = `id, title, category, contract_type, salary, currency, tags, description,
	apply_link, channel_id, raw_text, location, company, experience_level, is_remote,
	required_skills, experience_years, education_required, posted_at, extracted_at,
	created_at, message_id, message_url, notification_sent`

// PendingNotificationJobs returns jobs created since `since` that have not
// been notified yet, oldest first.
func (p *Postgres) PendingNotificationJobs(ctx context.Context, since time.Time, limit int) ([]model.Job, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE notification_sent = false AND created_at >= $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkNotificationSent flags a job as notified.
func (p *Postgres) MarkNotificationSent(ctx context.Context, jobID string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE jobs SET notification_sent = true WHERE id = $1`,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark notification sent %s: %w", jobID, ErrNotFound)
	}
	return nil
}

func scanJob(row pgx.Row) (model.Job, error) {
	var (
		j                          model.Job
		contract, level, education *string
	)
	if err := row.Scan(
		&j.ID, &j.Title, &j.Category, &contract, &j.Salary, &j.Currency, &j.Tags,
		&j.Description, &j.ApplyLink, &j.ChannelID, &j.RawText, &j.Location, &j.Company,
		&level, &j.IsRemote, &j.RequiredSkills, &j.ExperienceYears, &education,
		&j.PostedAt, &j.ExtractedAt, &j.CreatedAt, &j.MessageID, &j.MessageURL,
		&j.NotificationSent,
	); err != nil {
		return j, fmt.Errorf("scan job: %w", err)
	}
	if contract != nil {
		ct := model.ContractType(*contract)
		j.ContractType = &ct
	}
	if level != nil {
		lv := model.ExperienceLevel(*level)
		j.ExperienceLevel = &lv
	}
	if education != nil {
		ed, err := model.ParseEducationLevel(*education)
		if err != nil {
			return j, err
		}
		j.EducationRequired = &ed
	}
	return j, nil
}

func enumText[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func educationText(v *model.EducationLevel) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
