package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/fineflow/internal/approval"
	"github.com/fineflow/internal/chat"
	"github.com/fineflow/internal/config"
	"github.com/fineflow/internal/jobqueue"
	"github.com/fineflow/internal/ledger"
	"github.com/fineflow/internal/logging"
	"github.com/fineflow/internal/server"
)

// ServeCommand returns the CLI command for running the bot.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the approval bot and its HTTP endpoints",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the configured HTTP port",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Missing chat or ledger credentials keep the process alive in a
	// degraded state; health checks still answer and the gap shows up there
	// rather than in a crash loop.
	var poster chat.Poster
	client, err := chat.NewClient(chat.ClientConfig{
		BaseURL:           cfg.Chat.BaseURL,
		Token:             cfg.Chat.Token,
		ActionURL:         cfg.Chat.ActionURL,
		ActionToken:       cfg.Server.WebhookToken,
		RequestsPerSecond: cfg.Chat.RequestsPerSecond,
	})
	if err != nil {
		log.Warn().Err(err).Msg("chat transport not configured, running degraded")
	} else {
		poster = client
	}

	var store *ledger.Postgres
	var book ledger.Ledger
	if cfg.Ledger.DatabaseURL != "" {
		store, err = ledger.NewPostgres(ctx, cfg.Ledger.DatabaseURL, cfg.Location())
		if err != nil {
			log.Warn().Err(err).Msg("ledger not configured, approvals will not persist")
		} else {
			defer store.Close()
			book = store
		}
	} else {
		log.Warn().Msg("no ledger database configured, approvals will not persist")
	}

	var svc *approval.Service
	var queue *jobqueue.Queue
	if poster != nil {
		svc = approval.NewService(approval.Options{
			Poster: poster,
			Ledger: book,
			Policy: approval.Policy{
				Required:  cfg.Approval.Required,
				Approvers: cfg.Approval.Approvers,
			},
			RemindAfter: cfg.RemindAfter(),
			Location:    cfg.Location(),
		})

		// Reminders ride the durable job queue when a database is around;
		// otherwise in-process timers cover a single-process deployment.
		if store != nil {
			queue, err = jobqueue.NewQueue(store.Pool(), svc, jobqueue.DefaultQueueConfig())
			if err != nil {
				return fmt.Errorf("failed to create job queue: %w", err)
			}
			if err := queue.Start(ctx); err != nil {
				return fmt.Errorf("failed to start job queue: %w", err)
			}
			svc.UseScheduler(queue)
		} else {
			svc.UseScheduler(approval.NewTimerScheduler(svc.FireReminder))
		}
	}

	srv := server.NewServer(server.Config{
		Port:         cfg.Server.Port,
		WebhookToken: cfg.Server.WebhookToken,
		BotUser:      cfg.Chat.BotUser,
	}, svc)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if queue != nil {
		if err := queue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("job queue shutdown failed")
		}
	}
	return nil
}
