package store

import (
	"context"
	"fmt"

	"jobmate/ingest-service/internal/model"
)

// ListNotifiableSubscribers returns profiles with notifications enabled and
// at least one push token.
func (p *Postgres) ListNotifiableSubscribers(ctx context.Context) ([]model.SubscriberProfile, error) {
	rows, err := p.db.Query(ctx,
		`SELECT user_id, skills, experience_years, education, preferred_categories,
		        preferred_locations, push_tokens, notifications_enabled
		 FROM subscribers
		 WHERE notifications_enabled = true AND cardinality(push_tokens) > 0`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	out := make([]model.SubscriberProfile, 0)
	for rows.Next() {
		var (
			s         model.SubscriberProfile
			education *string
		)
		if err := rows.Scan(
			&s.UserID, &s.Skills, &s.ExperienceYears, &education, &s.PreferredCategories,
			&s.PreferredLocations, &s.PushTokens, &s.NotificationsEnabled,
		); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if education != nil {
			ed, err := model.ParseEducationLevel(*education)
			if err != nil {
				return nil, fmt.Errorf("subscriber %s: %w", s.UserID, err)
			}
			s.Education = &ed
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AddPushToken appends token to the subscriber's list, moving it to the end
// if already present and dropping the oldest beyond model.MaxPushTokens.
func (p *Postgres) AddPushToken(ctx context.Context, userID, token string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE subscribers s
		 SET push_tokens = (
		       SELECT t.arr[greatest(cardinality(t.arr) - $3 + 1, 1):]
		       FROM (SELECT array_remove(s.push_tokens, $2::text) || $2::text AS arr) t
		     ),
		     updated_at = NOW()
		 WHERE s.user_id = $1`,
		userID, token, model.MaxPushTokens,
	)
	if err != nil {
		return fmt.Errorf("add push token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("add push token for %s: %w", userID, ErrNotFound)
	}
	return nil
}

// RemovePushTokens drops the given tokens from every subscriber holding
// them. Returns the number of subscribers touched.
func (p *Postgres) RemovePushTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE subscribers
		 SET push_tokens = ARRAY(SELECT t FROM unnest(push_tokens) AS t WHERE t <> ALL($1::text[])),
		     updated_at  = NOW()
		 WHERE push_tokens && $1::text[]`,
		tokens,
	)
	if err != nil {
		return 0, fmt.Errorf("remove push tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// OperatorEmails returns the addresses of every admin account.
func (p *Postgres) OperatorEmails(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx,
		`SELECT email FROM users WHERE role = 'admin' AND email <> '' ORDER BY email`,
	)
	if err != nil {
		return nil, fmt.Errorf("query operators: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
