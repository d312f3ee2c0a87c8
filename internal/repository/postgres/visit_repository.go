package postgres

import (
	"context"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertVisitQuery = `
	INSERT INTO visits (
		link_id, short_key, visited_at, ip_address, user_agent, browser, browser_version, platform, language,
		continent, country, subdivisions, city, latitude, longitude,
		campaign, campaign_source, campaign_medium, campaign_term, campaign_content
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	RETURNING id
`

type VisitRepository struct {
	db *pgxpool.Pool
}

func NewVisitRepository(db *pgxpool.Pool) *VisitRepository {
	return &VisitRepository{db: db}
}

func (r *VisitRepository) RecordVisit(ctx context.Context, visit *domain.Visit) error {
	return r.db.QueryRow(ctx, insertVisitQuery, visitArgs(visit)...).Scan(&visit.ID)
}

// RecordVisits writes a batch of visits in one round trip.
func (r *VisitRepository) RecordVisits(ctx context.Context, visits []*domain.Visit) error {
	batch := &pgx.Batch{}
	for _, v := range visits {
		batch.Queue(insertVisitQuery, visitArgs(v)...)
	}

	return r.db.SendBatch(ctx, batch).Close()
}

func visitArgs(v *domain.Visit) []any {
	var lat, lon *float64
	if v.Location != nil {
		lat, lon = &v.Location.Latitude, &v.Location.Longitude
	}

	return []any{
		v.LinkID,
		v.ShortKey,
		v.VisitedAt,
		v.IPAddress,
		v.UserAgent,
		v.Browser,
		v.BrowserVersion,
		v.Platform,
		v.Language,
		v.Continent,
		v.Country,
		v.Subdivisions,
		v.City,
		lat,
		lon,
		v.Campaign,
		v.CampaignSource,
		v.CampaignMedium,
		v.CampaignTerm,
		v.CampaignContent,
	}
}

func (r *VisitRepository) GetStats(ctx context.Context, link *domain.Link) (*domain.LinkStats, error) {
	stats := &domain.LinkStats{
		ShortKey:  link.Short,
		LongURL:   link.Long,
		CreatedAt: link.CreatedAt,
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT ip_address),
			MAX(visited_at)
		FROM visits
		WHERE link_id = $1
	`

	var lastVisitedAt *time.Time
	err := r.db.QueryRow(ctx, query, link.ID).Scan(
		&stats.TotalVisits,
		&stats.UniqueIPs,
		&lastVisitedAt,
	)
	if err != nil {
		return nil, err
	}
	stats.LastVisitedAt = lastVisitedAt

	if stats.TopCountries, err = r.topValues(ctx, link.ID, "country", 5); err != nil {
		return nil, err
	}
	if stats.TopBrowsers, err = r.topValues(ctx, link.ID, "browser", 5); err != nil {
		return nil, err
	}
	if stats.TopCampaigns, err = r.topValues(ctx, link.ID, "campaign", 5); err != nil {
		return nil, err
	}

	return stats, nil
}

// topValues groups visits of a link by a fixed, non user-supplied column.
func (r *VisitRepository) topValues(ctx context.Context, linkID int64, column string, limit int) ([]domain.CountStats, error) {
	query := `
		SELECT
			COALESCE(` + column + `, 'Unknown') AS value,
			COUNT(*) AS count
		FROM visits
		WHERE link_id = $1
		GROUP BY value
		ORDER BY count DESC, value
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, linkID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []domain.CountStats{}
	for rows.Next() {
		var cs domain.CountStats
		if err := rows.Scan(&cs.Value, &cs.Count); err != nil {
			return nil, err
		}
		results = append(results, cs)
	}

	return results, rows.Err()
}
