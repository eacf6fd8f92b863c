package database

import (
	"context"
	"fmt"
	"time"
)

// migration is one schema step. Statements run in order inside a single
// transaction where the dialect allows it (MySQL commits DDL implicitly).
type migration struct {
	name   string
	mysql  []string
	sqlite []string
}

var migrations = []migration{
	{
		name: "0001_events",
		mysql: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id             CHAR(36)     NOT NULL PRIMARY KEY,
				owner_id       VARCHAR(64)  NOT NULL,
				title          VARCHAR(200) NOT NULL,
				description    TEXT         NOT NULL,
				location       VARCHAR(255) NOT NULL,
				scheduled_at   BIGINT       NOT NULL,
				capacity       INT          NULL,
				attendee_count INT          NOT NULL DEFAULT 0,
				image_ref      VARCHAR(512) NULL,
				created_at     BIGINT       NOT NULL,
				updated_at     BIGINT       NOT NULL,
				INDEX idx_events_owner (owner_id, created_at),
				CONSTRAINT chk_events_attendance CHECK (attendee_count >= 0 AND (capacity IS NULL OR attendee_count <= capacity)),
				CONSTRAINT chk_events_capacity CHECK (capacity IS NULL OR capacity > 0)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id             TEXT    NOT NULL PRIMARY KEY,
				owner_id       TEXT    NOT NULL,
				title          TEXT    NOT NULL,
				description    TEXT    NOT NULL DEFAULT '',
				location       TEXT    NOT NULL,
				scheduled_at   INTEGER NOT NULL,
				capacity       INTEGER NULL,
				attendee_count INTEGER NOT NULL DEFAULT 0,
				image_ref      TEXT    NULL,
				created_at     INTEGER NOT NULL,
				updated_at     INTEGER NOT NULL,
				CHECK (attendee_count >= 0 AND (capacity IS NULL OR attendee_count <= capacity)),
				CHECK (capacity IS NULL OR capacity > 0)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_events_owner ON events (owner_id, created_at)`,
		},
	},
	{
		name: "0002_reservations",
		mysql: []string{
			`CREATE TABLE IF NOT EXISTS reservations (
				id             CHAR(36)    NOT NULL PRIMARY KEY,
				participant_id VARCHAR(64) NOT NULL,
				event_id       CHAR(36)    NOT NULL,
				created_at     BIGINT      NOT NULL,
				UNIQUE KEY uq_reservations_participant_event (participant_id, event_id),
				INDEX idx_reservations_event (event_id, created_at),
				CONSTRAINT fk_reservations_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS reservations (
				id             TEXT    NOT NULL PRIMARY KEY,
				participant_id TEXT    NOT NULL,
				event_id       TEXT    NOT NULL REFERENCES events (id) ON DELETE CASCADE,
				created_at     INTEGER NOT NULL,
				UNIQUE (participant_id, event_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_reservations_event ON reservations (event_id, created_at)`,
		},
	},
	{
		name:   "0003_event_likes",
		mysql:  []string{`ALTER TABLE events ADD COLUMN likes_count INT NOT NULL DEFAULT 0`},
		sqlite: []string{`ALTER TABLE events ADD COLUMN likes_count INTEGER NOT NULL DEFAULT 0`},
	},
}

// Migrate applies pending migrations at most once each, recording them in
// schema_migrations.
func Migrate(ctx context.Context, db *DB) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database is required")
	}
	createSQL := `CREATE TABLE IF NOT EXISTS schema_migrations (
		name       VARCHAR(128) NOT NULL PRIMARY KEY,
		applied_at BIGINT       NOT NULL
	)`
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		applied, err := isApplied(ctx, db, m.name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}
		stmts := m.sqlite
		if db.Dialect == MySQL {
			stmts = m.mysql
		}
		if err := apply(ctx, db, m.name, stmts); err != nil {
			return err
		}
	}
	return nil
}

func isApplied(ctx context.Context, db *DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func apply(ctx context.Context, db *DB, name string, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
		name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	committed = true
	return nil
}
