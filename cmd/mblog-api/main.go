package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/config"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/database"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/memos"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/server"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/webhook"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile     string
	dotEnvFiles []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mblog-api",
		Short: "MBlog memo publishing backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, mysql)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "MySQL DSN")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the settings cache (empty disables it)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Credential signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	applied, err := config.LoadDotEnv()
	if err != nil {
		return err
	}
	dotEnvFiles = applied

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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if len(dotEnvFiles) > 0 {
		logger.Info("dotenv files applied", zap.Strings("files", dotEnvFiles))
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var settingsCache settings.Cache
	if strings.TrimSpace(appConfig.RedisAddress) != "" {
		redisClient, err := settings.NewRedisClient(signalCtx, settings.RedisOptions{
			Address:  appConfig.RedisAddress,
			Password: appConfig.RedisPassword,
			DB:       appConfig.RedisDB,
		})
		if err != nil {
			return err
		}
		defer redisClient.Close()
		settingsCache = settings.NewRedisCache(redisClient)
		logger.Info("settings cache enabled", zap.String("address", appConfig.RedisAddress))
	}

	settingsStore, err := settings.NewStore(settings.StoreConfig{
		Database: db,
		Cache:    settingsCache,
		CacheTTL: appConfig.SettingsCacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := settingsStore.EnsureWebhookToken(signalCtx, newWebhookToken); err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Settings: settingsStore,
		Issuer:   tokenIssuer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	resolver, err := auth.NewResolver(auth.ResolverConfig{
		Issuer:    tokenIssuer,
		Directory: userService,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	// The dispatcher reads announcements through its own notifier-free service.
	announcements, err := memos.NewService(memos.ServiceConfig{
		Database: db,
		Settings: settingsStore,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	dispatcher, err := webhook.NewDispatcher(webhook.Config{
		Source:    announcements,
		Settings:  settingsStore,
		QueueSize: appConfig.WebhookQueueSize,
		Timeout:   appConfig.WebhookTimeout,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	memoService, err := memos.NewService(memos.ServiceConfig{
		Database: db,
		Settings: settingsStore,
		Notifier: dispatcher,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Resolver:    resolver,
		Users:       userService,
		Memos:       memoService,
		Settings:    settingsStore,
		TokenHeader: appConfig.TokenHeader,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func newWebhookToken() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(value.String(), "-", ""), nil
}
