package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0008, Down0008)
}

func Up0008(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE queue_task (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    judging_id UUID NOT NULL UNIQUE REFERENCES judging (id),
    submission_id UUID NOT NULL REFERENCES submission (id),
    team_id UUID NOT NULL REFERENCES team (id),
    contest_id UUID NOT NULL REFERENCES contest (id),
    problem_id UUID NOT NULL REFERENCES problem (id),
    language_id UUID NOT NULL REFERENCES language (id),
    priority INTEGER NOT NULL DEFAULT 0,
    team_priority BIGINT NOT NULL DEFAULT 0,
    start_time TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX idx_queue_task_order ON queue_task (priority, team_priority, id);`},
		statement{query: `CREATE INDEX idx_queue_task_team_id ON queue_task (team_id);`},
		statement{query: `
CREATE TABLE judge_task (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    judging_id UUID NOT NULL REFERENCES judging (id),
    testcase_rank INTEGER NOT NULL,
    valid BOOLEAN NOT NULL DEFAULT TRUE,
    judgehost_id UUID,
    priority INTEGER NOT NULL DEFAULT 0,
    start_time TIMESTAMP WITH TIME ZONE,
    result TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE UNIQUE INDEX idx_judge_task_judging_rank ON judge_task (judging_id, testcase_rank);`},
		statement{query: `CREATE INDEX idx_judge_task_judgehost_id ON judge_task (judgehost_id);`},
		statement{query: `
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON queue_task
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`},
		statement{query: `
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON judge_task
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`},
	)
}

func Down0008(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE judge_task;`},
		statement{query: `DROP TABLE queue_task;`},
	)
}
