package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store keeps links and visits in a single SQLite file. It is meant for
// local runs and tests; production deployments use the postgres repositories.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Pragmas go through the DSN so every pooled connection gets them.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) InsertLink(ctx context.Context, link *domain.Link) error {
	const q = `INSERT INTO links(long, short, created_at) VALUES (?, ?, ?);`

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, q, link.Long, link.Short, now.UnixMilli())
	if err != nil {
		return mapInsertError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = id
	link.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	return nil
}

func (s *Store) FindLink(ctx context.Context, field domain.LinkField, value string) (*domain.Link, error) {
	var q string
	switch field {
	case domain.FieldLong:
		q = `SELECT id, long, short, created_at FROM links WHERE long = ? LIMIT 1;`
	case domain.FieldShort:
		q = `SELECT id, long, short, created_at FROM links WHERE short = ? LIMIT 1;`
	default:
		return nil, fmt.Errorf("unknown link field %q", field)
	}

	var link domain.Link
	var created int64
	err := s.db.QueryRowContext(ctx, q, value).Scan(&link.ID, &link.Long, &link.Short, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	link.CreatedAt = time.UnixMilli(created).UTC()
	return &link, nil
}

// mapInsertError reports which unique column rejected the insert.
func mapInsertError(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}

	msg := sqliteErr.Error()
	if !strings.Contains(msg, "UNIQUE") {
		return err
	}
	switch {
	case strings.Contains(msg, "links.short"):
		return &domain.ConflictError{Field: domain.FieldShort, Err: err}
	case strings.Contains(msg, "links.long"):
		return &domain.ConflictError{Field: domain.FieldLong, Err: err}
	default:
		return err
	}
}

const insertVisitSQL = `
INSERT INTO visits(
  link_id, short_key, visited_at, ip_address, user_agent, browser, browser_version, platform, language,
  continent, country, subdivisions, city, latitude, longitude,
  campaign, campaign_source, campaign_medium, campaign_term, campaign_content
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

func (s *Store) RecordVisit(ctx context.Context, v *domain.Visit) error {
	args, err := visitArgs(v)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, insertVisitSQL, args...)
	if err != nil {
		return err
	}
	v.ID, err = res.LastInsertId()
	return err
}

func (s *Store) RecordVisits(ctx context.Context, visits []*domain.Visit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertVisitSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range visits {
		args, err := visitArgs(v)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func visitArgs(v *domain.Visit) ([]any, error) {
	var subdivisions, lat, lon any
	if v.Subdivisions != nil {
		b, err := json.Marshal(v.Subdivisions)
		if err != nil {
			return nil, err
		}
		subdivisions = string(b)
	}
	if v.Location != nil {
		lat, lon = v.Location.Latitude, v.Location.Longitude
	}

	return []any{
		v.LinkID, v.ShortKey, v.VisitedAt.UnixMilli(),
		v.IPAddress, v.UserAgent, v.Browser, v.BrowserVersion, v.Platform, v.Language,
		v.Continent, v.Country, subdivisions, v.City, lat, lon,
		v.Campaign, v.CampaignSource, v.CampaignMedium, v.CampaignTerm, v.CampaignContent,
	}, nil
}

// ListVisits returns the visits of a link, newest first.
func (s *Store) ListVisits(ctx context.Context, linkID int64) ([]*domain.Visit, error) {
	const q = `
SELECT id, link_id, short_key, visited_at, ip_address, user_agent, browser, browser_version, platform, language,
       continent, country, subdivisions, city, latitude, longitude,
       campaign, campaign_source, campaign_medium, campaign_term, campaign_content
FROM visits WHERE link_id = ? ORDER BY visited_at DESC, id DESC;`

	rows, err := s.db.QueryContext(ctx, q, linkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []*domain.Visit
	for rows.Next() {
		var (
			v            domain.Visit
			visitedAt    int64
			subdivisions sql.NullString
			lat, lon     sql.NullFloat64
		)
		err := rows.Scan(
			&v.ID, &v.LinkID, &v.ShortKey, &visitedAt,
			&v.IPAddress, &v.UserAgent, &v.Browser, &v.BrowserVersion, &v.Platform, &v.Language,
			&v.Continent, &v.Country, &subdivisions, &v.City, &lat, &lon,
			&v.Campaign, &v.CampaignSource, &v.CampaignMedium, &v.CampaignTerm, &v.CampaignContent,
		)
		if err != nil {
			return nil, err
		}
		v.VisitedAt = time.UnixMilli(visitedAt).UTC()
		if subdivisions.Valid {
			if err := json.Unmarshal([]byte(subdivisions.String), &v.Subdivisions); err != nil {
				return nil, err
			}
		}
		if lat.Valid && lon.Valid {
			v.Location = &domain.GeoPoint{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		visits = append(visits, &v)
	}

	return visits, rows.Err()
}

func (s *Store) GetStats(ctx context.Context, link *domain.Link) (*domain.LinkStats, error) {
	stats := &domain.LinkStats{
		ShortKey:  link.Short,
		LongURL:   link.Long,
		CreatedAt: link.CreatedAt,
	}

	const q = `SELECT COUNT(*), COUNT(DISTINCT ip_address), MAX(visited_at) FROM visits WHERE link_id = ?;`

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, q, link.ID).Scan(&stats.TotalVisits, &stats.UniqueIPs, &last); err != nil {
		return nil, err
	}
	if last.Valid {
		t := time.UnixMilli(last.Int64).UTC()
		stats.LastVisitedAt = &t
	}

	var err error
	if stats.TopCountries, err = s.topValues(ctx, link.ID, "country", 5); err != nil {
		return nil, err
	}
	if stats.TopBrowsers, err = s.topValues(ctx, link.ID, "browser", 5); err != nil {
		return nil, err
	}
	if stats.TopCampaigns, err = s.topValues(ctx, link.ID, "campaign", 5); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *Store) topValues(ctx context.Context, linkID int64, column string, limit int) ([]domain.CountStats, error) {
	q := `
SELECT COALESCE(` + column + `, 'Unknown') AS value, COUNT(*) AS count
FROM visits WHERE link_id = ?
GROUP BY value
ORDER BY count DESC, value
LIMIT ?;`

	rows, err := s.db.QueryContext(ctx, q, linkID, limit)
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
