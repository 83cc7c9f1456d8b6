package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mmynk/equb/internal/reconcile"
)

// NewIntegrityCommand creates the integrity command.
func NewIntegrityCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "integrity",
		Short: "Re-sum settled contributions against every executed payout",
		Long: `Check that every executed payout is backed by exactly the settled
contributions it was sized for. The check only reads.

Exit codes:
  0 - No violations
  1 - At least one violation
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := reconcile.NewEngine(store, nil, nil, nil).IntegrityCheck(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "integrity check failed", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				writeIntegrityText(out, report)
			}
			if !report.Healthy() {
				return NewExitError(ExitFailure, fmt.Sprintf("%d integrity violations", report.DiscrepancyCount))
			}
			return nil
		},
	}
}

func writeIntegrityText(w io.Writer, report *reconcile.IntegrityReport) {
	fmt.Fprintf(w, "Checked %d payouts, %d violations\n", report.CheckedPayouts, report.DiscrepancyCount)
	for _, v := range report.Violations {
		fmt.Fprintf(w, "  group %s round %d: %s (expected %d/%s, actual %d/%s)\n",
			v.GroupID, v.RoundNumber, v.Reason,
			v.Expected.Count, v.Expected.Amount, v.Actual.Count, v.Actual.Amount)
	}
}

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show ledger-wide volume and integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			m, err := reconcile.NewEngine(store, nil, nil, nil).GlobalMetrics(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to compute metrics", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, m)
			}
			fmt.Fprintf(out, "Contributions: %d (%s)\n", m.ContributionCount, m.ContributionVolume)
			fmt.Fprintf(out, "Payouts:       %d (%s)\n", m.PayoutCount, m.PayoutVolume)
			fmt.Fprintf(out, "Groups:        %d active, %d completed\n", m.ActiveGroups, m.CompletedGroups)
			fmt.Fprintf(out, "Degraded:      %t\n", m.Degraded)
			writeIntegrityText(out, m.Integrity)
			return nil
		},
	}
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay GROUP_ID",
		Short: "Rebuild a group's state from its audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			state, err := reconcile.NewEngine(store, nil, nil, nil).Replay(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "replay failed", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, state)
			}
			writeStateText(out, state)
			return nil
		},
	}
}

func writeStateText(w io.Writer, s *reconcile.GroupState) {
	fmt.Fprintf(w, "Group %s: %s, round %d (%d events, last seq %d)\n",
		s.GroupID, s.Status, s.CurrentRound, s.EventCount, s.LastSeq)

	users := make([]string, 0, len(s.Members))
	for u := range s.Members {
		users = append(users, u)
	}
	sort.Strings(users)
	for _, u := range users {
		m := s.Members[u]
		fmt.Fprintf(w, "  member %s %s %s\n", u, m.Role, m.Status)
	}
	for _, p := range s.Payouts {
		fmt.Fprintf(w, "  round %d paid %s to %s\n", p.Round, p.Amount, p.RecipientUserID)
	}
}

// NewDriftCommand creates the drift command.
func NewDriftCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drift GROUP_ID",
		Short: "Compare a replayed group with its stored projection",
		Long: `Replay the group's audit log and compare it with the group,
membership and payout rows.

Exit codes:
  0 - Projection matches the log
  1 - Drift detected
  2 - Command error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := reconcile.NewEngine(store, nil, nil, nil).DetectDrift(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "drift detection failed", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else if !report.Drifted {
				fmt.Fprintf(out, "Group %s: no drift\n", report.GroupID)
			} else {
				fmt.Fprintf(out, "Group %s: %d drifted fields\n", report.GroupID, len(report.Fields))
				for _, f := range report.Fields {
					fmt.Fprintf(out, "  %s: replayed %q, projected %q\n", f.Field, f.Replayed, f.Projected)
				}
			}
			if report.Drifted {
				return NewExitError(ExitFailure, "drift detected")
			}
			return nil
		},
	}
}
