package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/models"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	GroupID string
	UserID  string
	Limit   int
}

// NewFeedCommand creates the feed command, which prints the admin audit log.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the audit log",
		Long: `Print audit events in ledger order, unredacted.

Examples:
  equbctl feed --group 3f1c...
  equbctl feed --user alice --limit 20 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			views, err := audit.NewFeed(store, nil).AdminLog(cmd.Context(), opts.operator(), models.AuditFilter{
				GroupID:         opts.GroupID,
				InvolvingUserID: opts.UserID,
				Limit:           opts.Limit,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read audit log", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				if views == nil {
					views = []audit.View{}
				}
				return writeJSON(out, views)
			}
			if len(views) == 0 {
				fmt.Fprintln(out, "No events found.")
				return nil
			}
			for _, v := range views {
				fmt.Fprintf(out, "%6d %s %-8s %-28s %s/%s by %s\n",
					v.Seq, v.Timestamp.Format(time.RFC3339), v.Severity, v.Action,
					v.EntityType, v.EntityID, v.ActorUserID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.GroupID, "group", "", "only events of this group")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "only events this user performed or is the subject of")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 for all)")

	return cmd
}
