package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"

	"github.com/contestkit/judge-orchestrator/cmd/judgectl/cmds"
	"github.com/contestkit/judge-orchestrator/internal/logger"
	otelorchestrator "github.com/contestkit/judge-orchestrator/internal/otel"
)

var tracer = otel.Tracer("github.com/contestkit/judge-orchestrator/judgectl")

func runApp(ctx context.Context) int {
	useOTLP, err := strconv.ParseBool(os.Getenv("USE_OTLP"))
	if err != nil {
		useOTLP = false
	}

	shutdown, err := otelorchestrator.SetupOTelSDK(ctx, useOTLP)
	if err != nil {
		logger.Logger.Warn("failed to setup otel sdk")
	}
	defer func() {
		fail := shutdown(ctx)
		if fail != nil {
			logger.Logger.Warn("no clean shutdown for otel", "error", fail)
		}
	}()

	ctx, span := tracer.Start(ctx, "Judgectl")
	defer span.End()

	err = cmds.Execute(ctx)
	if err != nil {
		logger.Logger.Error("error executing subcommands", "error", err)
		return 1
	}

	return 0
}

func main() {
	logger.LogLevel.Set(slog.LevelInfo)
	logger.InitSlog()

	ctx := context.Background()

	os.Exit(runApp(ctx))
}
