package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/zhifu/sumup-terminal/config"
	"github.com/zhifu/sumup-terminal/routes"
	"github.com/zhifu/sumup-terminal/services"
	"github.com/zhifu/sumup-terminal/utils"
)

func main() {
	defaultConfig := os.Getenv("SUMUP_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	configFile := flag.String("config", defaultConfig, "path to config.yaml")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	if err := run(*configFile, *envFile); err != nil {
		fmt.Fprintln(os.Stderr, "sumup-terminal:", err)
		os.Exit(1)
	}
}

func run(configFile, envFile string) error {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return err
	}

	logger := utils.NewLogger(os.Stdout, cfg.Server.Mode, cfg.Log.Level)
	slog.SetDefault(logger)

	if err := utils.EnsureWritableDir(cfg.Storage.Dir, 0o775); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	terminals, err := services.NewTerminalStorage(cfg.Storage.TerminalsFile)
	if err != nil {
		return err
	}
	transactions, err := services.NewTransactionStorage(cfg.Storage.TransactionsDir)
	if err != nil {
		return err
	}
	if added, err := terminals.Seed(cfg.Terminals); err != nil {
		return fmt.Errorf("seed terminals: %w", err)
	} else if added > 0 {
		logger.Info("terminals added from config", "count", added)
	}

	recorders := services.MultiRecorder{services.NewTransactionLog(cfg.Storage.TransactionLog)}
	if cfg.MySQL.Enabled() {
		db, err := utils.InitDatabase(cfg.MySQL, cfg.Server.Mode == gin.ReleaseMode)
		if err != nil {
			logger.Warn("ledger database unavailable, attempts go to the log file only", "error", err)
		} else {
			recorders = append(recorders, services.NewGormLedger(db))
			logger.Info("ledger database connected", "host", cfg.MySQL.Host, "dbname", cfg.MySQL.DBName)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := routes.NewHub(logger)
	go hub.Run(ctx)

	credentials := services.NewCredentialStore(cfg.Storage.CredentialFile, cfg.Storage.KeyFile)
	client := services.NewSumUpClient(cfg.SumUp.BaseURL, cfg.SumUp.Timeout, logger)
	if cfg.Webhook.SharedSecret == "" {
		logger.Warn("webhook shared secret is empty, every callback will be rejected")
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(routes.RequestLogger(logger))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/webhook"})))
	router.Use(routes.SecurityHeaders())

	apiRoutes := routes.NewAPIRoutes(routes.Options{
		Config:        cfg,
		Authenticator: services.NewBasicAuthenticator(cfg.Auth.Realm, cfg.Auth.UserMap()),
		Client:        client,
		Checkout:      services.NewCheckoutService(client, terminals, recorders, hub, cfg.SumUp, logger),
		Terminals:     terminals,
		Transactions:  transactions,
		Credentials:   credentials,
		Resolver:      services.NewCredentialResolver(cfg.SumUp, credentials),
		Webhooks:      services.NewWebhookIngestor(cfg.Webhook.SharedSecret, transactions, hub, logger),
		Hub:           hub,
		Logger:        logger,
	})
	apiRoutes.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr, "mode", gin.Mode(), "auth_method", cfg.SumUp.AuthMethod)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
