package cmds

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/contestkit/judge-orchestrator/internal/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply <rejudging-id>",
	Short: "Apply a finished rejudging, swapping the new judgings in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return finishRejudging(cmd, args[0], types.ActionApply)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <rejudging-id>",
	Short: "Cancel a rejudging, throwing the new judgings away",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return finishRejudging(cmd, args[0], types.ActionCancel)
	},
}

func finishRejudging(cmd *cobra.Command, rawID string, action types.RejudgeAction) error {
	ctx, span := tracer.Start(cmd.Context(), "finishRejudging")
	defer span.End()

	span.SetAttributes(attribute.String("action", string(action)))

	rejudgingID, err := uuid.Parse(rawID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid rejudging id")
		return fmt.Errorf("invalid rejudging id: %w", err)
	}

	m, err := connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to connect")
		return err
	}

	progress := make(chan types.ProgressEvent, 16)
	done := make(chan error, 1)
	go func() {
		defer close(progress)
		done <- m.rejudgings.Finish(ctx, rejudgingID, action, "judgectl", progress)
	}()

	for event := range progress {
		if event.Error {
			fmt.Println("error:", event.Message)
		} else {
			fmt.Println(event.Message)
		}
	}

	if err := <-done; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to finish rejudging")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "finished rejudging")
	return nil
}

func init() {
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(cancelCmd)
}
