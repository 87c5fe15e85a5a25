package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

const createSessionArchiveSQL = `
CREATE TABLE IF NOT EXISTS session_archive (
	id            UUID PRIMARY KEY,
	code          TEXT NOT NULL,
	quiz_ref      TEXT NOT NULL,
	host_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	finish_reason TEXT,
	finished_at   TIMESTAMPTZ,
	data          JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS session_archive_host_idx ON session_archive (host_id)`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createSessionArchiveSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS session_archive`)
			return err
		},
	)
}
