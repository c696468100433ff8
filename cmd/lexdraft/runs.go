package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) runsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	show := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a recorded run and its stage events",
		Long: `Reads the run history written when audit.postgres_dsn (or
LEXDRAFT_AUDIT_DSN) is configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.newBaseApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			if a.history == nil {
				return errors.New("run history is not configured (set audit.postgres_dsn)")
			}

			rec, err := a.history.Run(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := a.history.Events(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, map[string]any{"run": rec, "events": events})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s  %s  %s  agent=%s  started %s  took %s\n",
				rec.RunID, rec.Status, rec.DocumentType, rec.AgentID,
				rec.StartedAt.Format("2006-01-02 15:04:05"), rec.Elapsed)
			if rec.FailedStage != "" {
				fmt.Fprintf(out, "failed in %s: %s\n", rec.FailedStage, rec.Error)
			}
			if rec.Result != nil {
				fmt.Fprintf(out, "score %.1f, certified %v, %d refinement(s)\n",
					rec.Result.FinalScore, rec.Result.Certified, rec.Result.IterationCount)
			}
			for _, e := range events {
				line := "  " + e.Time.Format("15:04:05.000") + "  " + e.Stage + "  " + string(e.Kind)
				if e.Iteration > 0 {
					fmt.Fprintf(out, "%s  iter=%d  %s  ~%d tok", line, e.Iteration, e.Duration, e.TokenCost)
				} else {
					fmt.Fprintf(out, "%s  %s  ~%d tok", line, e.Duration, e.TokenCost)
				}
				if e.Error != "" {
					fmt.Fprintf(out, "  %s", e.Error)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the run and events as JSON")
	cmd.AddCommand(show)
	return cmd
}
