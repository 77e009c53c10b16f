package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Schema creates every table the report service and the projection use.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id                  UUID PRIMARY KEY,
	code                TEXT NOT NULL UNIQUE,
	title               TEXT NOT NULL,
	description         TEXT NOT NULL,
	category            TEXT NOT NULL,
	start_date          TEXT NOT NULL,
	end_date            TEXT NOT NULL,
	status              TEXT NOT NULL,
	progress            INT NOT NULL CHECK (progress BETWEEN 0 AND 100),
	worker_count        INT NOT NULL CHECK (worker_count >= 1),
	responsible_persons TEXT[] NOT NULL,
	location_name       TEXT NOT NULL,
	latitude            DOUBLE PRECISION,
	longitude           DOUBLE PRECISION,
	risk_level          TEXT NOT NULL,
	weather_condition   TEXT NOT NULL,
	safety_incidents    INT NOT NULL CHECK (safety_incidents >= 0),
	photos              TEXT[] NOT NULL DEFAULT '{}',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	version             INT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_reports_category_status ON reports (category, status);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports (created_at DESC);

CREATE TABLE IF NOT EXISTS report_code_sequences (
	year       INT PRIMARY KEY,
	last_value INT NOT NULL
);

CREATE TABLE IF NOT EXISTS report_statistics (
	category   TEXT NOT NULL,
	status     TEXT NOT NULL,
	count      INT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (category, status)
);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL
);
`

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Connect opens a Postgres pool, retrying while the database comes up.
func Connect(dsn string, attempts int, delay time.Duration) (*sql.DB, error) {
	var db *sql.DB
	var err error

	for i := 0; i < attempts; i++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			err = db.Ping()
			if err == nil {
				db.SetMaxOpenConns(25)
				db.SetMaxIdleConns(10)
				db.SetConnMaxLifetime(5 * time.Minute)
				return db, nil
			}
			db.Close()
		}
		logrus.WithField("attempt", i+1).Infof("Waiting for database... attempt %d/%d", i+1, attempts)
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
}
