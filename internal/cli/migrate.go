package cli

import (
	"github.com/spf13/cobra"

	"github.com/agriffard/SoftTrack/internal/config"
	"github.com/agriffard/SoftTrack/internal/db"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(rootOpts)

			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}

			if err := db.RunMigrations(cfg.Database); err != nil {
				return err
			}

			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
