package main

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/backend"
	"github.com/MarcoPoloResearchLab/roster/internal/client"
	"github.com/MarcoPoloResearchLab/roster/internal/config"
	"github.com/MarcoPoloResearchLab/roster/internal/database"
	"github.com/MarcoPoloResearchLab/roster/internal/logging"
	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"github.com/MarcoPoloResearchLab/roster/internal/server"
	"github.com/MarcoPoloResearchLab/roster/internal/view"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "roster",
		Short: "Activity roster view and reference backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "view",
		Short: "Serve the roster page backed by the activities API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "backend",
		Short: "Serve the reference activities API from SQLite",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackend(cmd.Context())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "View server listen address")
	cmd.PersistentFlags().String("backend-address", defaults.GetString("backend.address"), "Backend listen address")
	cmd.PersistentFlags().String("backend-url", defaults.GetString("backend.base_url"), "Activities API base URL used by the view")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Duration("client-timeout", defaults.GetDuration("client.timeout"), "Per-request timeout for backend calls (0 disables)")
	cmd.PersistentFlags().Float64("rate-limit", defaults.GetFloat64("ui.rate_limit"), "Per-client /ui post rate per second (0 disables)")
	cmd.PersistentFlags().Int("rate-burst", defaults.GetInt("ui.rate_burst"), "Per-client /ui post burst")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "backend.address", "backend-address")
	bindFlag(cmd, "backend.base_url", "backend-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "client.timeout", "client-timeout")
	bindFlag(cmd, "ui.rate_limit", "rate-limit")
	bindFlag(cmd, "ui.rate_burst", "rate-burst")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	return appConfig, logger, nil
}

func runView(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	activitiesClient, err := client.New(client.Config{
		BaseURL: appConfig.BackendBaseURL,
		Timeout: appConfig.RequestTimeout,
		Logger:  logger.Named("client"),
	})
	if err != nil {
		return err
	}

	document, err := view.NewSkeletonDocument()
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := server.NewRealtimeDispatcher()
	controller, err := view.New(view.Config{
		Document:   document,
		Client:     activitiesClient,
		IDProvider: roster.NewUUIDProvider(),
		Clock:      time.Now,
		Logger:     logger.Named("view"),
		OnChange:   dispatcher.PublishChange,
	})
	if err != nil {
		return err
	}
	if err := controller.Start(signalCtx); err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		View:      controller,
		Realtime:  dispatcher,
		Logger:    logger,
		RateLimit: appConfig.RateLimit,
		RateBurst: appConfig.RateBurst,
	})
	if err != nil {
		return err
	}

	logger.Info("view configured", zap.String("backend", appConfig.BackendBaseURL))
	return serve(signalCtx, logger, appConfig.HTTPAddress, handler)
}

func runBackend(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	service, err := backend.NewService(backend.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger.Named("backend"),
	})
	if err != nil {
		return err
	}

	handler, err := backend.NewHTTPHandler(backend.Dependencies{
		Service: service,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(signalCtx, logger, appConfig.BackendAddress, handler)
}

func serve(ctx context.Context, logger *zap.Logger, address string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:    address,
		Handler: handler,
		// open event streams end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", address))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
