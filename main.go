package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	configx "github.com/tanpawarit/Vault-Concierge/pkg/config"
	logx "github.com/tanpawarit/Vault-Concierge/pkg/logger"
	_ "github.com/tanpawarit/Vault-Concierge/pkg/logger/autoload"
)

const (
	transportInline = "inline"
	transportQStash = "qstash"
)

type AppConfig struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	PublicURL       string        `envconfig:"PUBLIC_URL"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	EventTransport  string        `envconfig:"EVENT_TRANSPORT" default:"inline"`
	InstructionsDir string        `envconfig:"INSTRUCTIONS_DIR" default:"."`
	SweepSchedule   string        `envconfig:"SWEEP_SCHEDULE" default:"@every 5m"`
	SweepGrace      time.Duration `envconfig:"SWEEP_GRACE" default:"10m"`
	LedgerTTL       time.Duration `envconfig:"LEDGER_TTL" default:"168h"`
}

func (c AppConfig) Validate() error {
	switch c.EventTransport {
	case transportInline:
	case transportQStash:
		if strings.TrimSpace(c.PublicURL) == "" {
			return errors.New("VAULT_PUBLIC_URL is required for the qstash event transport")
		}
	default:
		return fmt.Errorf("unknown event transport %q", c.EventTransport)
	}
	return nil
}

// EventsURL is where QStash delivers events.
func (c AppConfig) EventsURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/api/events"
}

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "vault",
		Short:         "The Vault SMS concierge workflow engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envFile == "" {
				return nil
			}
			configx.SetEnvFile(envFile)
			logCfg, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return err
			}
			logx.Init(*logCfg)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file")

	cmd.AddCommand(newServeCmd(), newMigrateCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("vault exited")
		os.Exit(1)
	}
}
