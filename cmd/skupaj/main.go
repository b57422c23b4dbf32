package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/skupaj/internal/api"
	"github.com/erazemk/skupaj/internal/auth"
	"github.com/erazemk/skupaj/internal/blob"
	"github.com/erazemk/skupaj/internal/config"
	"github.com/erazemk/skupaj/internal/db"
	"github.com/erazemk/skupaj/internal/geo"
	"github.com/erazemk/skupaj/internal/haul"
	"github.com/erazemk/skupaj/internal/ledger"
	"github.com/erazemk/skupaj/internal/notify"
	"github.com/erazemk/skupaj/internal/store"
	"github.com/erazemk/skupaj/internal/visibility"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	cfg        config.Config
	cleanupLog func()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "skupaj",
		Short:         "Group haul inventory and commitments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath, config.Default())
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return err
			}
			handler, cleanup, err := newLogHandler(os.Stdout, os.Stderr, cfg.Logging)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return err
			}
			slog.SetDefault(slog.New(handler))
			opts.cfg, opts.cleanupLog = cfg, cleanup
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.cleanupLog != nil {
				opts.cleanupLog()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "skupaj.toml", "TOML config file (missing is fine)")

	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return cmd
}

func newInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and media directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if _, err := os.Stat(cfg.Database.Path); err == nil {
				slog.Error("database already exists", "path", cfg.Database.Path)
				return fmt.Errorf("database %s already exists", cfg.Database.Path)
			}

			database, err := openDatabase(cfg.Database.Path)
			if err != nil {
				slog.Error("failed to initialize database", "error", err)
				return err
			}
			defer database.Close()

			if _, err := blob.NewFS(cfg.Media.Dir); err != nil {
				slog.Error("failed to create media directory", "error", err)
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database created: %s\n", cfg.Database.Path)
			fmt.Fprintln(out, "Schema initialized.")
			fmt.Fprintf(out, "Media directory: %s\n", cfg.Media.Dir)
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	return cmd
}

// openDatabase opens the database and brings the schema up to date.
func openDatabase(path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}

func newSender(cfg config.NotifyConfig) (notify.Sender, func(), error) {
	if cfg.Driver != config.NotifyDriverAMQP {
		return notify.LogSender{}, func() {}, nil
	}
	sender, err := notify.NewAMQPSender(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		return nil, nil, err
	}
	return sender, func() {
		if err := sender.Close(); err != nil {
			slog.Warn("closing amqp connection failed", "error", err)
		}
	}, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return err
	}
	defer database.Close()
	slog.Info("database ready", "path", cfg.Database.Path)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		// Generated on first run and kept in the database.
		if secret, err = store.GetJWTSecret(ctx, database); err != nil {
			slog.Error("failed to get JWT secret", "error", err)
			return err
		}
	}
	tokens := auth.Issuer{Secret: secret, TTL: cfg.TokenTTL()}

	blobs, err := blob.NewFS(cfg.Media.Dir)
	if err != nil {
		slog.Error("failed to open media directory", "error", err)
		return err
	}

	sender, closeSender, err := newSender(cfg.Notify)
	if err != nil {
		slog.Error("failed to set up notifications", "driver", cfg.Notify.Driver, "error", err)
		return err
	}
	defer closeSender()
	dispatcher := notify.NewDispatcher(sender, cfg.Notify.QueueSize, 5*time.Second)

	var geocoder geo.Geocoder = geo.Disabled{}
	if cfg.Geocoding.Enabled {
		geocoder = geo.NewPostcodesIO(cfg.Geocoding.BaseURL, cfg.GeocodingTimeout())
	}

	mediaURL := func(p string) string { return cfg.Media.URLPrefix + p }
	svc := haul.NewService(haul.Deps{
		DB: database,
		Ledger: ledger.New(database, ledger.Options{
			MaxRetries:  cfg.Ledger.MaxRetries,
			LockTimeout: cfg.LockTimeout(),
		}),
		Tokens:   tokens,
		Notifier: dispatcher,
		Geocoder: geocoder,
		Blobs:    blobs,
		Gate:     visibility.Gate{MediaURL: mediaURL},
	}, nil, haul.Config{
		LeaveWindow:   cfg.LeaveWindow(),
		DefaultRadius: float64(cfg.Hauls.DefaultRadiusM),
		MaxRetries:    cfg.Ledger.MaxRetries,
	})

	router := api.NewRouter(svc, api.RouterConfig{
		Tokens:      tokens,
		MediaDir:    blobs.Root(),
		MediaPrefix: cfg.Media.URLPrefix,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			slog.Warn("notifications left undelivered", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr, "public_url", cfg.Server.PublicURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		return err
	}

	slog.Info("server stopped, closing database")
	return nil
}
