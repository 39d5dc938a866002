// Package cmds holds the judgectl subcommands for driving rejudgings from
// the command line.
package cmds

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	sloggorm "github.com/orandin/slog-gorm"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/queue"
	"github.com/contestkit/judge-orchestrator/cmd/internal/rejudging"
	"github.com/contestkit/judge-orchestrator/internal/config"
	"github.com/contestkit/judge-orchestrator/internal/logger"
	"github.com/contestkit/judge-orchestrator/internal/scoreboard"
)

const name = "github.com/contestkit/judge-orchestrator/cmd/judgectl/cmds"

var tracer = otel.Tracer(name)

var rootCmd = &cobra.Command{
	Use:   "judgectl",
	Short: "Jury command line tool for rejudgings and judge queue control",
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// managers connects to the database from the server config and wires up the
// domain managers. Score updates are only logged; the running server picks
// up the real scoreboard refresh on the next judging flip it handles.
type managers struct {
	db         *gorm.DB
	queue      *queue.Manager
	judgings   *judging.Manager
	rejudgings *rejudging.Manager
}

func connect(_ context.Context) (*managers, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	gormLogger := slog.New(logger.Handler)
	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)

	db, err := gorm.Open(
		postgres.Open(cfg.PostgresDSN()),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	scores := scoreboard.LoggingClient{}
	queueManager := queue.NewManager(db)
	judgingManager := judging.NewManager(db, cfg.Judging, queueManager, scores, scores)
	rejudgingManager := rejudging.NewManager(db, judgingManager, queueManager, scores, scores)

	return &managers{
		db:         db,
		queue:      queueManager,
		judgings:   judgingManager,
		rejudgings: rejudgingManager,
	}, nil
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
