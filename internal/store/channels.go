package store

import (
	"context"
	"fmt"

	"jobmate/ingest-service/internal/model"
)

// ListActiveChannels returns every channel with is_active and
// scraping_enabled set, oldest-scraped first.
func (p *Postgres) ListActiveChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, username, display_name, category, is_active, scraping_enabled,
		        total_jobs_scraped, last_scraped
		 FROM channels
		 WHERE is_active = true AND scraping_enabled = true
		 ORDER BY last_scraped ASC NULLS FIRST, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	channels := make([]model.Channel, 0)
	for rows.Next() {
		var c model.Channel
		if err := rows.Scan(
			&c.ID, &c.Username, &c.DisplayName, &c.Category, &c.IsActive,
			&c.ScrapingEnabled, &c.TotalJobsScraped, &c.LastScraped,
		); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}
