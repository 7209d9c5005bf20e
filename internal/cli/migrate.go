package cli

import (
	"github.com/rpattn/entitysync/internal/config"
	"github.com/rpattn/entitysync/internal/db"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			return db.RunMigrations(cfg.Database)
		},
	}
}
