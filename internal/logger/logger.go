// Package logger exposes the process-wide slog logger: JSON to stderr with
// trace ids attached when a span is active.
package logger

import (
	"log/slog"
	"os"

	slogotel "github.com/remychantenay/slog-otel"
)

var LogLevel = new(slog.LevelVar)

var Handler = slogotel.NewOtelHandler(slogotel.WithNoTraceEvents(true))(
	slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     LogLevel,
	}),
)

var Logger = slog.New(Handler)

func InitSlog() {
	slog.SetDefault(Logger)
	LogLevel.Set(slog.LevelDebug)
}
