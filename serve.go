package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	channelx "github.com/tanpawarit/Vault-Concierge/agent/channel"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	eventsx "github.com/tanpawarit/Vault-Concierge/agent/events"
	ingressx "github.com/tanpawarit/Vault-Concierge/agent/ingress"
	llmx "github.com/tanpawarit/Vault-Concierge/agent/llm"
	loopx "github.com/tanpawarit/Vault-Concierge/agent/loop"
	promptx "github.com/tanpawarit/Vault-Concierge/agent/prompt"
	storex "github.com/tanpawarit/Vault-Concierge/agent/store"
	workflowx "github.com/tanpawarit/Vault-Concierge/agent/workflow"
	configx "github.com/tanpawarit/Vault-Concierge/pkg/config"
	qstashx "github.com/tanpawarit/Vault-Concierge/pkg/qstash"
	twiliox "github.com/tanpawarit/Vault-Concierge/pkg/twilio"
	upstashx "github.com/tanpawarit/Vault-Concierge/pkg/upstash"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingress endpoints and run the concierge workflows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(log.Logger.WithContext(ctx))
		},
	}
}

func runServe(ctx context.Context) error {
	appCfg, err := configx.New[AppConfig]("VAULT")
	if err != nil {
		return err
	}
	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, appCfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway, err := newGateway(appCfg.LedgerTTL)
	if err != nil {
		return err
	}

	model, err := llmx.NewFromConfig(ctx, *llmCfg)
	if err != nil {
		return err
	}

	var (
		sender    contractx.EventSender
		inline    *eventsx.Inline
		publisher *qstashx.Client
	)
	switch appCfg.EventTransport {
	case transportQStash:
		qCfg, err := configx.New[qstashx.Config]("QSTASH")
		if err != nil {
			return err
		}
		if !qCfg.Enabled() {
			return fmt.Errorf("qstash transport: %w", qstashx.ErrNotConfigured)
		}
		publisher, err = qstashx.NewClient(*qCfg)
		if err != nil {
			return err
		}
		sender = eventsx.NewQStash(publisher, appCfg.EventsURL())
	default:
		inline = eventsx.NewInline(nil)
		sender = inline
	}

	engine, err := workflowx.New(store, gateway, model, sender,
		workflowx.WithThreshold(llmCfg.IntentConfidenceThreshold),
		workflowx.WithInstructions(promptx.LoadInstructionPack(appCfg.InstructionsDir, "ellis")),
		workflowx.WithObserver(loopx.LogObserver{}),
	)
	if err != nil {
		return err
	}

	var ingressOpts []ingressx.Option
	if inline != nil {
		inline.Bind(engine)
	} else {
		ingressOpts = append(ingressOpts, ingressx.WithEventDelivery(engine, publisher, appCfg.EventsURL()))
	}

	var sweeper *workflowx.Sweeper
	if appCfg.SweepSchedule != "" {
		sweeper = workflowx.NewSweeper(store, sender, appCfg.SweepGrace)
		if err := sweeper.Start(ctx, appCfg.SweepSchedule); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              appCfg.HTTPAddr,
		Handler:           ingressx.New(store, sender, ingressOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", appCfg.HTTPAddr).
			Str("event_transport", appCfg.EventTransport).
			Bool("model_enabled", model.Enabled()).
			Msg("vault concierge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if inline != nil {
		inline.Wait()
	}
	log.Info().Msg("vault concierge stopped")
	return nil
}

// openStore connects to Postgres, or falls back to the in-memory store when no
// database is configured.
func openStore(ctx context.Context, dsn string) (contractx.Store, func(), error) {
	if dsn == "" {
		log.Warn().Msg("VAULT_DATABASE_URL not set, using in-memory store")
		return storex.NewMemory(), func() {}, nil
	}

	db := storex.OpenPostgres(dsn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return storex.NewPostgres(db), func() { _ = db.Close() }, nil
}

// newGateway sends through Twilio when configured and keeps the send ledger in
// Upstash Redis when configured. Missing credentials select mock mode and an
// in-process ledger.
func newGateway(ledgerTTL time.Duration) (*channelx.Gateway, error) {
	twCfg, err := configx.New[twiliox.Config]("TWILIO")
	if err != nil {
		return nil, err
	}
	redisCfg, err := configx.New[upstashx.Config]("UPSTASH_REDIS")
	if err != nil {
		return nil, err
	}

	var opts []channelx.Option
	if redisCfg.Enabled() {
		redis, err := upstashx.NewClient(*redisCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, channelx.WithLedger(channelx.NewRedisLedger(redis, ledgerTTL)))
	}

	if !twCfg.Configured() {
		log.Warn().Msg("twilio credentials not set, sms gateway in mock mode")
		return channelx.New(nil, opts...), nil
	}
	tw, err := twiliox.NewClient(*twCfg)
	if err != nil {
		return nil, err
	}
	return channelx.New(tw, opts...), nil
}
