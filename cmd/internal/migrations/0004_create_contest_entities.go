package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0004, Down0004)
}

var contestTables = []string{"contest", "team", "problem", "language"}

func Up0004(ctx context.Context, tx *sql.Tx) error {
	err := execStatements(ctx, tx,
		statement{query: `
CREATE TABLE contest (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    name TEXT NOT NULL,
    short_name TEXT NOT NULL UNIQUE,
    start_time TIMESTAMP WITH TIME ZONE,
    end_time TIMESTAMP WITH TIME ZONE,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE TABLE team (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    name TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    contest_id UUID NOT NULL REFERENCES contest (id),
    judging_last_started TIMESTAMP WITH TIME ZONE,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `CREATE INDEX idx_team_contest_id ON team (contest_id);`},
		statement{query: `
CREATE TABLE problem (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    name TEXT NOT NULL,
    label TEXT NOT NULL,
    contest_id UUID NOT NULL REFERENCES contest (id),
    testcase_count INTEGER NOT NULL DEFAULT 0,
    time_limit DOUBLE PRECISION NOT NULL DEFAULT 0,
    lazy_eval BOOLEAN,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `CREATE INDEX idx_problem_contest_id ON problem (contest_id);`},
		statement{query: `
CREATE TABLE language (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    name TEXT NOT NULL,
    external_id TEXT NOT NULL UNIQUE,
    time_factor DOUBLE PRECISION NOT NULL DEFAULT 1,
    allow_judge BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
	)
	if err != nil {
		return err
	}

	for _, table := range contestTables {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON %s
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`,
			table))
		if err != nil {
			return err
		}
	}

	return nil
}

func Down0004(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE language;`},
		statement{query: `DROP TABLE problem;`},
		statement{query: `DROP TABLE team;`},
		statement{query: `DROP TABLE contest;`},
	)
}
