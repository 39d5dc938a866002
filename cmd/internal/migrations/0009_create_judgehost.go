package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0009, Down0009)
}

func Up0009(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE judgehost_restriction (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    name TEXT NOT NULL,
    restrictions JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE TABLE judgehost (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    hostname TEXT NOT NULL UNIQUE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    poll_time TIMESTAMP WITH TIME ZONE,
    restriction_id UUID REFERENCES judgehost_restriction (id),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON judgehost_restriction
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`},
		statement{query: `
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON judgehost
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`},
		statement{query: `
ALTER TABLE submission ADD COLUMN judgehost_id UUID REFERENCES judgehost (id);`},
	)
}

func Down0009(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `ALTER TABLE submission DROP COLUMN judgehost_id;`},
		statement{query: `DROP TABLE judgehost;`},
		statement{query: `DROP TABLE judgehost_restriction;`},
	)
}
