package cmds

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/contestkit/judge-orchestrator/cmd/internal/rejudging"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

var (
	rejudgeReason          string
	rejudgePriority        string
	rejudgeFull            bool
	rejudgeAutoApply       bool
	rejudgeJudgeCompletely bool
	rejudgeContests        []string
	rejudgeProblems        []string
	rejudgeTeams           []string
	rejudgeLanguages       []string
	rejudgeSubmissions     []string
	rejudgeJudgings        []string
	rejudgeJudgehosts      []string
	rejudgeVerdicts        []string
	rejudgeBefore          string
	rejudgeAfter           string
)

var rejudgeCmd = &cobra.Command{
	Use:   "rejudge",
	Short: "Create a rejudging over a selection of judgings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "rejudgeCmd")
		defer span.End()

		span.SetAttributes(
			attribute.String("reason", rejudgeReason),
			attribute.Bool("full", rejudgeFull),
		)

		m, err := connect(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to connect")
			return err
		}

		sel, err := buildSelection()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid selection")
			return err
		}

		priority := types.PriorityLow
		if rejudgePriority != "" {
			priority, err = types.ParsePriority(rejudgePriority)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "invalid priority")
				return err
			}
		}

		created, count, err := m.rejudgings.Create(ctx, sel, rejudging.CreateOptions{
			Reason:          rejudgeReason,
			StartedBy:       "judgectl",
			Full:            rejudgeFull,
			AutoApply:       rejudgeAutoApply,
			JudgeCompletely: rejudgeJudgeCompletely,
			Priority:        priority,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to create rejudging")
			return err
		}

		if created != nil {
			fmt.Printf("rejudging %s created over %d judgings\n", created.ID, count)
		} else {
			fmt.Printf("invalidated %d judgings, they will be rejudged organically\n", count)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "created rejudging")
		return nil
	},
}

func buildSelection() (rejudging.Selection, error) {
	var sel rejudging.Selection
	var err error

	if sel.ContestIDs, err = parseUUIDs(rejudgeContests); err != nil {
		return sel, err
	}
	if sel.ProblemIDs, err = parseUUIDs(rejudgeProblems); err != nil {
		return sel, err
	}
	if sel.TeamIDs, err = parseUUIDs(rejudgeTeams); err != nil {
		return sel, err
	}
	if sel.LanguageIDs, err = parseUUIDs(rejudgeLanguages); err != nil {
		return sel, err
	}
	if sel.SubmissionIDs, err = parseUUIDs(rejudgeSubmissions); err != nil {
		return sel, err
	}
	if sel.JudgingIDs, err = parseUUIDs(rejudgeJudgings); err != nil {
		return sel, err
	}
	if sel.JudgehostIDs, err = parseUUIDs(rejudgeJudgehosts); err != nil {
		return sel, err
	}
	sel.Verdicts = rejudgeVerdicts

	if rejudgeBefore != "" {
		before, err := time.Parse(time.RFC3339, rejudgeBefore)
		if err != nil {
			return sel, fmt.Errorf("invalid before time: %w", err)
		}
		sel.Before = &before
	}
	if rejudgeAfter != "" {
		after, err := time.Parse(time.RFC3339, rejudgeAfter)
		if err != nil {
			return sel, fmt.Errorf("invalid after time: %w", err)
		}
		sel.After = &after
	}

	return sel, nil
}

func init() {
	rootCmd.AddCommand(rejudgeCmd)

	rejudgeCmd.Flags().StringVarP(&rejudgeReason, "reason", "r", "", "Reason for the rejudging")
	rejudgeCmd.Flags().
		StringVarP(&rejudgePriority, "priority", "p", "", "Queue priority (high, default, low)")
	rejudgeCmd.Flags().
		BoolVar(&rejudgeFull, "full", false, "Track the batch so it can be applied or canceled")
	rejudgeCmd.Flags().
		BoolVar(&rejudgeAutoApply, "auto-apply", false, "Apply automatically once all judgings finish")
	rejudgeCmd.Flags().
		BoolVar(&rejudgeJudgeCompletely, "judge-completely", false, "Run every testcase even under lazy evaluation")
	rejudgeCmd.Flags().StringSliceVar(&rejudgeContests, "contest", nil, "Contest id filter")
	rejudgeCmd.Flags().StringSliceVar(&rejudgeProblems, "problem", nil, "Problem id filter")
	rejudgeCmd.Flags().StringSliceVar(&rejudgeTeams, "team", nil, "Team id filter")
	rejudgeCmd.Flags().StringSliceVar(&rejudgeLanguages, "language", nil, "Language id filter")
	rejudgeCmd.Flags().StringSliceVar(&rejudgeSubmissions, "submission", nil, "Submission id filter")
	rejudgeCmd.Flags().StringSliceVar(&rejudgeJudgings, "judging", nil, "Judging id filter")
	rejudgeCmd.Flags().StringSliceVar(&rejudgeJudgehosts, "judgehost", nil, "Judgehost id filter")
	rejudgeCmd.Flags().StringSliceVar(&rejudgeVerdicts, "verdict", nil, "Verdict filter")
	rejudgeCmd.Flags().
		StringVar(&rejudgeBefore, "before", "", "Only submissions before this RFC3339 time (needs exactly one contest)")
	rejudgeCmd.Flags().
		StringVar(&rejudgeAfter, "after", "", "Only submissions after this RFC3339 time (needs exactly one contest)")

	if err := rejudgeCmd.MarkFlagRequired("reason"); err != nil {
		panic(err)
	}
}
