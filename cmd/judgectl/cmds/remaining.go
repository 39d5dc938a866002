package cmds

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var remainingCmd = &cobra.Command{
	Use:   "judge-remaining <judging-id>...",
	Short: "Release the held back testcases of lazily evaluated judgings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "remainingCmd")
		defer span.End()

		judgingIDs, err := parseUUIDs(args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid judging id")
			return fmt.Errorf("invalid judging id: %w", err)
		}

		span.SetAttributes(attribute.Int("judgings", len(judgingIDs)))

		m, err := connect(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to connect")
			return err
		}

		summary, err := m.judgings.RequestRemainingBatch(ctx, judgingIDs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to request remaining")
			return err
		}

		fmt.Printf("requested %d judgings, released %d judge tasks\n",
			summary.Requested, summary.Released)
		for label, count := range map[string]int{
			"still running":     summary.StillRunning,
			"already requested": summary.AlreadyRequested,
			"superseded":        summary.Superseded,
			"not found":         summary.NotFound,
			"failed":            summary.Failed,
		} {
			if count != 0 {
				fmt.Printf("skipped %d (%s)\n", count, label)
			}
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "requested remaining")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(remainingCmd)
}
