package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smilehealth/smilehealth/internal/config"
	"github.com/smilehealth/smilehealth/internal/domain/activity"
	"github.com/smilehealth/smilehealth/internal/domain/casegroup"
	"github.com/smilehealth/smilehealth/internal/domain/chat"
	"github.com/smilehealth/smilehealth/internal/domain/feedback"
	"github.com/smilehealth/smilehealth/internal/domain/identity"
	"github.com/smilehealth/smilehealth/internal/domain/media"
	"github.com/smilehealth/smilehealth/internal/domain/patient"
	"github.com/smilehealth/smilehealth/internal/platform/auth"
	"github.com/smilehealth/smilehealth/internal/platform/blobstore"
	"github.com/smilehealth/smilehealth/internal/platform/db"
	"github.com/smilehealth/smilehealth/internal/platform/middleware"
	"github.com/smilehealth/smilehealth/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smilehealth-server",
		Short: "SmileHealth clinical records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importUsersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func importUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-users <csv-file>",
		Short: "Bulk-create user accounts from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			svc := identity.NewService(
				identity.NewUserRepoPG(pool),
				identity.NewProfileRepoPG(pool),
				identity.NewBranchRepoPG(pool),
				db.NewPoolRunner(pool),
			)

			result, err := svc.ImportUsers(ctx, f, logger)
			if err != nil {
				return err
			}

			fmt.Printf("Created %d user(s), skipped %d row(s).\n", result.Created, result.Skipped)
			for _, e := range result.Errors {
				fmt.Println("  " + e)
			}
			return nil
		},
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	runner := db.NewPoolRunner(pool)

	blobs := blobstore.NewFSStore(cfg.MediaRoot, cfg.MediaFallback, logger)
	defer blobs.Close()

	var sender notification.EmailSender
	if cfg.SMTPAddr != "" {
		sender = &notification.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	} else {
		logger.Warn().Msg("SMTP_ADDR not set, feedback mail stays in memory")
		sender = &notification.LoopbackSender{}
	}
	mailer := notification.NewMailer(sender, cfg.FeedbackAddress, logger)

	jwtCfg := auth.JWTConfig{Secret: []byte(cfg.JWTSecret), TTL: cfg.JWTTTL}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unreachable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Domain services
	activitySvc := activity.NewService(activity.NewRepoPG(pool), logger)

	identitySvc := identity.NewService(
		identity.NewUserRepoPG(pool),
		identity.NewProfileRepoPG(pool),
		identity.NewBranchRepoPG(pool),
		runner,
	)

	casegroupSvc := casegroup.NewService(casegroup.NewRepoPG(pool), activitySvc, runner)

	mediaRepo := media.NewRepoPG(pool)

	patientSvc := patient.NewService(
		patient.NewRepoPG(pool),
		patient.NewCommentRepoPG(pool),
		casegroupSvc,
		mediaRepo,
		blobs,
		activitySvc,
		runner,
		logger,
	)

	mediaSvc := media.NewService(mediaRepo, patientSvc, blobs, activitySvc, runner, logger)

	hub := chat.NewHub()
	chatSvc := chat.NewService(chat.NewRepoPG(pool), hub, runner, logger)

	identityHandler := identity.NewHandler(identitySvc, jwtCfg, blobs)

	// Login stays outside the auth middleware.
	public := e.Group("/api/v1")
	identityHandler.RegisterPublicRoutes(public)

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}

	identityHandler.RegisterRoutes(apiV1)
	activity.NewHandler(activitySvc).RegisterRoutes(apiV1)
	casegroup.NewHandler(casegroupSvc).RegisterRoutes(apiV1)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	media.NewHandler(mediaSvc).RegisterRoutes(apiV1)
	chat.NewHandler(chatSvc, logger).RegisterRoutes(apiV1)
	feedback.NewHandler(mailer).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	mailer.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
