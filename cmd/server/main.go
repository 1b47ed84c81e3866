package main // Entry point package

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/patient-records/internal/config"
	"github.com/iliyamo/patient-records/internal/database"
	"github.com/iliyamo/patient-records/internal/handler"
	"github.com/iliyamo/patient-records/internal/middleware"
	"github.com/iliyamo/patient-records/internal/queue"
	"github.com/iliyamo/patient-records/internal/repository"
	"github.com/iliyamo/patient-records/internal/router"
	"github.com/iliyamo/patient-records/internal/service"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "patient-records",
		Short:        "Patient records web application",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(consumeCmd())
	rootCmd.AddCommand(purgeSessionsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users and sessions tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Schema is up to date.")
			return nil
		},
	}
}

func consumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Append patient events to the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			logPath, _ := cmd.Flags().GetString("log")
			logger := newLogger(os.Getenv("APP_ENV") == "dev")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := &queue.Consumer{URL: config.BrokerURL(), LogPath: logPath, Logger: logger}
			logger.Info().Str("queue", queue.PatientEventsQueue).Str("log", logPath).Msg("audit consumer started")
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			logger.Info().Msg("audit consumer stopped")
			return nil
		},
	}
	cmd.Flags().String("log", "logs/patient_audit.log", "Audit log file")
	return cmd
}

func purgeSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-sessions",
		Short: "Delete expired login sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			grace, _ := cmd.Flags().GetDuration("grace")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := repository.NewSessionRepo(db).PurgeExpired(ctx, time.Now().UTC().Add(-grace))
			if err != nil {
				return fmt.Errorf("purge sessions: %w", err)
			}
			fmt.Printf("Deleted %d expired session(s).\n", n)
			return nil
		},
	}
	cmd.Flags().Duration("grace", 0, "Keep sessions that expired less than this long ago")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.IsDev())

	ctx := context.Background()

	// Credential store
	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	defer db.Close()
	logger.Info().Msg("connected to mysql")

	// Record store
	mc, err := database.OpenMongo(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	coll := mc.Database(cfg.MongoDB).Collection(database.PatientsCollection)
	logger.Info().Str("db", cfg.MongoDB).Msg("connected to mongodb")

	// Rate limiting is optional; without Redis the limiter passes everything.
	rlCfg := config.LoadRateLimitConfig()
	var rdb *redis.Client
	if rlCfg.Enabled {
		rdb, err = config.NewRedisClient(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, rate limiting disabled")
		} else {
			defer rdb.Close()
		}
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		events = service.NewQueuePublisher(cfg.AMQPURL, logger)
	}

	auth := service.NewAuthenticator(
		repository.NewUserRepo(db),
		repository.NewSessionRepo(db),
		cfg.SessionSecret,
		time.Duration(cfg.SessionTTLDays)*24*time.Hour,
		cfg.BcryptCost,
		logger,
	)
	patients := service.NewPatientService(repository.NewPatientRepo(coll), events, logger)

	if !cfg.PatientsRequireLogin {
		logger.Warn().Msg("patient routes are open to anonymous users; set PATIENTS_REQUIRE_LOGIN=true to guard them")
	}

	e, err := router.New(router.Deps{
		Auth:                 handler.NewAuthHandler(auth, cfg.CookieSecure, logger),
		Patients:             handler.NewPatientHandler(patients),
		Identity:             auth,
		RateLimit:            middleware.NewTokenBucket(rlCfg, rdb, logger, handler.RateLimited),
		PatientsRequireLogin: cfg.PatientsRequireLogin,
		SecureCookie:         cfg.CookieSecure,
		Logger:               logger,
	})
	if err != nil {
		return err
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
