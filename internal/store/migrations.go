package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS cities (
    slug TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    region TEXT
);

CREATE TABLE IF NOT EXISTS hourly_records (
    city_slug TEXT NOT NULL,
    observed_at DATETIME NOT NULL,
    pm25 REAL,
    pm10 REAL,
    no2 REAL,
    so2 REAL,
    co REAL,
    quality_flags TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (city_slug, observed_at)
);

CREATE TABLE IF NOT EXISTS daily_records (
    city_slug TEXT NOT NULL,
    date TEXT NOT NULL,
    pm25_avg REAL NOT NULL,
    pm25_max REAL NOT NULL,
    pm10_avg REAL NOT NULL,
    pm10_max REAL NOT NULL,
    pm25_grade TEXT NOT NULL,
    pm10_grade TEXT NOT NULL,
    overall_grade TEXT NOT NULL,
    PRIMARY KEY (city_slug, date)
);

CREATE TABLE IF NOT EXISTS weather_observations (
    city_slug TEXT NOT NULL,
    observed_at DATETIME NOT NULL,
    wind_direction REAL,
    wind_speed REAL,
    temperature REAL,
    humidity REAL,
    precipitation REAL,
    precipitation_probability REAL,
    pressure_msl REAL,
    surface_pressure REAL,
    cloud_cover REAL,
    quality_flags TEXT,
    PRIMARY KEY (city_slug, observed_at)
);
`,
	},
	{
		Version:     2,
		Description: "Camera analyses, predictions and accuracy",
		SQL: `
CREATE TABLE IF NOT EXISTS visual_analyses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    city_slug TEXT NOT NULL,
    station_id TEXT NOT NULL,
    station_name TEXT,
    analyzed_at DATETIME NOT NULL,
    snapshot_url TEXT,
    contrast REAL,
    edge_density REAL,
    color_shift REAL,
    brightness REAL,
    brightness_uniformity REAL,
    haziness REAL,
    visibility_grade TEXT,
    estimated_pm25_min REAL,
    estimated_pm25_max REAL,
    confidence REAL,
    UNIQUE(station_id, analyzed_at)
);
CREATE INDEX IF NOT EXISTS idx_visual_city_time ON visual_analyses(city_slug, analyzed_at);

CREATE TABLE IF NOT EXISTS predictions (
    city_slug TEXT NOT NULL,
    target_date TEXT NOT NULL,
    computed_at DATETIME NOT NULL,
    grade TEXT NOT NULL,
    trend TEXT NOT NULL,
    pm25 REAL NOT NULL,
    pm10 REAL NOT NULL,
    blend_ratio REAL,
    total_factor REAL,
    message TEXT,
    breakdown_json TEXT,
    PRIMARY KEY (city_slug, target_date)
);

CREATE TABLE IF NOT EXISTS accuracy_snapshots (
    city_slug TEXT NOT NULL,
    date TEXT NOT NULL,
    pm25_accuracy REAL,
    pm10_accuracy REAL,
    overall_accuracy REAL,
    grade_match_rate REAL,
    sample_days INTEGER,
    PRIMARY KEY (city_slug, date)
);
`,
	},
	{
		Version:     3,
		Description: "Ingest run audit and raw payload archive",
		SQL: `
CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    source TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    city_slug TEXT,
    http_status INTEGER,
    response_size_bytes INTEGER,
    records_parsed INTEGER,
    records_stored INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);

CREATE TABLE IF NOT EXISTS raw_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ingest_run_id INTEGER,
    fetched_at DATETIME NOT NULL,
    source TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    city_slug TEXT,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_raw_payloads_fetched ON raw_payloads(fetched_at);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Info().Int("version", m.Version).Str("description", m.Description).Msg("migrations: applying")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
