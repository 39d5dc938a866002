package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0006, Down0006)
}

func Up0006(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE rejudging (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    reason TEXT NOT NULL,
    started_by TEXT NOT NULL,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    ended_at TIMESTAMP WITH TIME ZONE,
    finished_by TEXT,
    applied BOOLEAN,
    auto_apply BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON rejudging
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`},
		statement{query: `
ALTER TABLE submission ADD COLUMN rejudging_id UUID REFERENCES rejudging (id);`},
	)
}

func Down0006(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `ALTER TABLE submission DROP COLUMN rejudging_id;`},
		statement{query: `DROP TABLE rejudging;`},
	)
}
