package sqlite

import (
	"database/sql"
)

func applyMigrations(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}

// Timestamps are unix milliseconds so aggregates scan without format guessing.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS links (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  long       TEXT    NOT NULL UNIQUE,
  short      TEXT    NOT NULL UNIQUE,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS visits (
  id               INTEGER PRIMARY KEY AUTOINCREMENT,
  link_id          INTEGER NOT NULL REFERENCES links(id),
  short_key        TEXT    NOT NULL,
  visited_at       INTEGER NOT NULL,
  ip_address       TEXT,
  user_agent       TEXT,
  browser          TEXT,
  browser_version  TEXT,
  platform         TEXT,
  language         TEXT,
  continent        TEXT,
  country          TEXT,
  subdivisions     TEXT,
  city             TEXT,
  latitude         REAL,
  longitude        REAL,
  campaign         TEXT,
  campaign_source  TEXT,
  campaign_medium  TEXT,
  campaign_term    TEXT,
  campaign_content TEXT
);

CREATE INDEX IF NOT EXISTS idx_visits_link_id ON visits(link_id, visited_at);
`
