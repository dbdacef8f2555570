package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kidandcat/communityconnect/internal/api"
	"github.com/kidandcat/communityconnect/internal/auth"
	"github.com/kidandcat/communityconnect/internal/config"
	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/feeds"
	"github.com/kidandcat/communityconnect/internal/live"
	"github.com/kidandcat/communityconnect/internal/logging"
	"github.com/kidandcat/communityconnect/internal/metrics"
	"github.com/kidandcat/communityconnect/internal/notify"
	"github.com/kidandcat/communityconnect/internal/regions"
)

type globalFlags struct {
	configFile string
	verbose    bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var g globalFlags

	serve := serveCmd(&g)
	cmd := &cobra.Command{
		Use:           "communityconnect",
		Short:         "Community Connect safety feed server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "config file (default ./config.yaml)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")
	addServerFlags(cmd)

	cmd.AddCommand(serve, migrateCmd(&g), refreshCmd(&g), regionsCmd())
	return cmd
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("base-url", "", "public URL used in magic links")
	cmd.Flags().String("data-dir", "", "directory holding the database")
}

// setup loads the config and builds the logger shared by every command.
func setup(g *globalFlags, cmd *cobra.Command) (*config.Loader, *config.Config, *zap.Logger, error) {
	loader := config.NewLoader(g.configFile)
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development, g.verbose)
	if err != nil {
		return nil, nil, nil, err
	}
	return loader, cfg, logger, nil
}

func newFetchers(cfg *config.Config) []feeds.Fetcher {
	client := &http.Client{Timeout: cfg.Feeds.Timeout}
	return []feeds.Fetcher{
		feeds.NewTrafficFeed(cfg.Feeds.TrafficURL, cfg.Feeds.TrafficAPIKey, client),
		feeds.NewEmergencyFeed(cfg.Feeds.EmergencyURL, client),
	}
}

func serveCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and feed refresher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, cfg, logger, err := setup(g, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, loader, cfg, logger)
		},
	}
	addServerFlags(cmd)
	return cmd
}

func serve(ctx context.Context, loader *config.Loader, cfg *config.Config, logger *zap.Logger) error {
	if err := db.Init(cfg.DataDir); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	for _, email := range cfg.AdminEmails {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		if _, err := db.EnsureAdmin(ctx, email); err != nil {
			return fmt.Errorf("sync admin %s: %w", email, err)
		}
		logger.Info("admin synced", zap.String("email", email))
	}

	policy, err := cfg.AgingPolicy()
	if err != nil {
		return err
	}
	m := metrics.New()
	table := regions.Default()
	hub := live.NewHub(logger, m)
	notifier := notify.New(table, hub, m, logger)

	agg := feeds.New(newFetchers(cfg), feeds.Options{
		Schedule:       cfg.Feeds.RefreshSchedule,
		Timeout:        cfg.Feeds.Timeout,
		UserPostWindow: cfg.Feeds.UserPostWindow,
		Regions:        table,
		Policy:         policy,
		Metrics:        m,
		Logger:         logger,
		Posts:          feeds.DBPosts(table),
		OnNew:          notifier.Handle,
	})

	loader.Watch(reloadAging(agg, logger), func(err error) {
		logger.Warn("config change rejected", zap.Error(err))
	})

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.New(api.Deps{
			Config:     cfg,
			Aggregator: agg,
			Regions:    table,
			Hub:        hub,
			Notifier:   notifier,
			Mailer:     auth.NewMailer(*cfg, logger),
			Metrics:    m,
			Logger:     logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanup := cron.New()
	if _, err := cleanup.AddFunc("@hourly", func() {
		n, err := db.DeleteExpired(ctx)
		if err != nil {
			logger.Error("cleanup failed", zap.Error(err))
			return
		}
		logger.Debug("cleanup done", zap.Int64("deleted", n))
	}); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	cleanup.Start()
	defer cleanup.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return agg.Run(ctx) })
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("base_url", cfg.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// reloadAging swaps the aggregator's aging policy when the config changes.
func reloadAging(agg *feeds.Aggregator, logger *zap.Logger) func(*config.Config) {
	return func(next *config.Config) {
		p, err := next.AgingPolicy()
		if err != nil {
			logger.Warn("aging policy not reloaded", zap.Error(err))
			return
		}
		agg.SetPolicy(p)
		logger.Info("aging policy reloaded", zap.Any("hours", next.Aging.Hours))
	}
}
