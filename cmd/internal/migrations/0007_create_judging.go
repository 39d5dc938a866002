package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0007, Down0007)
}

func Up0007(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE judging (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    submission_id UUID NOT NULL REFERENCES submission (id),
    valid BOOLEAN NOT NULL DEFAULT FALSE,
    start_time TIMESTAMP WITH TIME ZONE,
    end_time TIMESTAMP WITH TIME ZONE,
    result TEXT,
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    jury_member TEXT,
    judgehost_id UUID,
    rejudging_id UUID REFERENCES rejudging (id),
    prev_judging_id UUID,
    judge_completely BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `CREATE INDEX idx_judging_submission_id ON judging (submission_id);`},
		statement{query: `CREATE INDEX idx_judging_rejudging_id ON judging (rejudging_id);`},
		statement{query: `
CREATE UNIQUE INDEX idx_judging_one_valid_per_submission
ON judging (submission_id) WHERE valid;`},
		statement{query: `
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON judging
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`},
	)
}

func Down0007(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE judging;`)
	return err
}
