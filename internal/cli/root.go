// Package cli implements equbctl, the operator tool that runs the
// reconciliation engine and audit feeds directly against a ledger file.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mmynk/equb/internal/config"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage/sqlite"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Database string
	Format   string // "json" | "text"
	Operator string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the equbctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "equbctl",
		Short: "Operate an equb ledger",
		Long:  "Run integrity checks, replay, drift detection and audit queries against an equb ledger database.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", envOr("EQUB_DB_PATH", config.DefaultDBPath), "path to the ledger database")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Operator, "operator", "equbctl", "user ID recorded as the ADMIN reading feeds")

	cmd.AddCommand(NewIntegrityCommand(opts))
	cmd.AddCommand(NewMetricsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewDriftCommand(opts))
	cmd.AddCommand(NewFeedCommand(opts))

	return cmd
}

func (o *RootOptions) open() (*sqlite.SQLiteStore, error) {
	store, err := sqlite.New(o.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return store, nil
}

func (o *RootOptions) operator() models.Actor {
	return models.Actor{ID: o.Operator, Role: models.RoleAdmin}
}
