package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	storex "github.com/tanpawarit/Vault-Concierge/agent/store"
	configx "github.com/tanpawarit/Vault-Concierge/pkg/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := configx.New[AppConfig]("VAULT")
			if err != nil {
				return err
			}
			if appCfg.DatabaseURL == "" {
				return errors.New("VAULT_DATABASE_URL is required")
			}

			db := storex.OpenPostgres(appCfg.DatabaseURL)
			defer db.Close()

			if err := storex.Migrate(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
