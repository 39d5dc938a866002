package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0005, Down0005)
}

func Up0005(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE submission (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    contest_id UUID NOT NULL REFERENCES contest (id),
    team_id UUID NOT NULL REFERENCES team (id),
    problem_id UUID NOT NULL REFERENCES problem (id),
    language_id UUID NOT NULL REFERENCES language (id),
    submit_time TIMESTAMP WITH TIME ZONE NOT NULL,
    expected_results JSONB,
    valid BOOLEAN NOT NULL DEFAULT TRUE,
    orig_submission_id UUID REFERENCES submission (id),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `CREATE INDEX idx_submission_contest_id ON submission (contest_id);`},
		statement{query: `CREATE INDEX idx_submission_team_id ON submission (team_id);`},
		statement{query: `CREATE INDEX idx_submission_problem_id ON submission (problem_id);`},
		statement{query: `
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON submission
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`},
	)
}

func Down0005(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE submission;`)
	return err
}
