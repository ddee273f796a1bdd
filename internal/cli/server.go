package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"qrquest/internal/app"
	"qrquest/internal/config"
	"qrquest/internal/logging"
	"qrquest/internal/metrics"
	transport "qrquest/internal/transport/http"
	"qrquest/internal/transport/telegram"
)

const shutdownTimeout = 5 * time.Second

// NewStartCmd builds the CLI subcommand to start the bot and HTTP server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quest bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	deadline, err := cfg.Deadline()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	backends, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	hub := transport.NewHub()
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "qrquest",
		Name:      "ws_connections",
		Help:      "Open websocket chat connections",
	}, func() float64 { return float64(hub.Connected()) }))
	notifiers := append(backends.notifiers, hub)

	var client *telegram.Client
	if cfg.Bot.Token != "" {
		client = telegram.NewClient(cfg.Bot.APIURL, cfg.Bot.Token, cfg.Quest.MediaDir)
		notifiers = append(notifiers, telegram.NewNotifier(client, cfg.Quest.Operators))
	}

	engine := app.NewEngine(backends.store, backends.catalog, backends.states, notifiers, app.NewQuestClock(deadline), app.Options{
		Operators: cfg.Quest.Operators,
		Logger:    logger,
		Metrics:   metrics.New(reg),
	})

	questions, err := backends.catalog.Count(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"questions": questions, "deadline": deadline}).Info("quest catalog loaded")

	listenPort := portFlag
	if listenPort == "" {
		listenPort = cfg.Server.Port
	}
	server := &http.Server{
		Addr:              ":" + listenPort,
		Handler:           transport.NewRouter(transport.NewWSHandler(engine, hub, logger), reg),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", listenPort).Info("starting http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		engine.RunClock(gctx)
		return nil
	})
	if client != nil {
		bot := telegram.NewBot(client, engine, logger, cfg.Bot.Workers, config.TTLDuration(cfg.Bot.PollTimeout, 30*time.Second))
		g.Go(func() error {
			logger.Info("starting telegram bot")
			return bot.Run(gctx)
		})
	} else {
		logger.Warn("bot token not configured, telegram transport disabled")
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("shutting down")
		case <-engine.ShutdownRequested():
			logger.Warn("restart requested by operator, shutting down")
			stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
