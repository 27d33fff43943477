package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"chat-gateway/infrastructure/api"
	"chat-gateway/infrastructure/backend"
	"chat-gateway/infrastructure/ws"
	"chat-gateway/internal"
	"chat-gateway/moderation"
	"chat-gateway/observability"
	"chat-gateway/repositories"
	"chat-gateway/runtime"
	"chat-gateway/runtime/workers"
	"chat-gateway/services"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Gateway terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// The pattern keeps 'defer' statements effective and the entry point testable.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.GetLoggerFromString(config.LogLevel)

	// 2. Store backend
	// A failed first connection is not fatal: the gateway starts
	// degraded and the reconnect worker keeps trying.
	store := backend.New(logger, config.NatsURL, config.MaxMessages, config.BackendTimeout)
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), config.BackendTimeout)
	if err := store.Connect(connectCtx); err != nil {
		logger.Warn("Store backend unreachable, starting degraded", "url", config.NatsURL, "error", err)
	}
	cancelConnect()
	defer store.Close()

	// 3. Stores, registry, fanout
	presence := repositories.NewPresenceStore(store, logger)
	messages := repositories.NewMessageStore(store, config.MaxMessages, logger)
	registry := runtime.NewRegistry(logger)
	monitoring := observability.NewMonitoringManager(logger, registry, store)
	relay := workers.NewRelayWorker(logger, store, registry, monitoring)

	moderator, err := moderation.NewModerator(config.CensoredWordList(), charReplacement, logger)
	if err != nil {
		return exitConfig, fmt.Errorf("moderation dictionary error: %w", err)
	}

	chatService := services.NewChatService(
		logger, registry, presence, messages, relay, moderator, config.BackendTimeout,
	)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised workers
	sup := workers.NewSupervisor(logger)
	sup.Add(
		relay,
		workers.NewReconnectWorker(logger, store, presence, config.RetryInterval, config.BackendTimeout),
		workers.NewHealthMonitoringWorker(logger, monitoring, config.MetricInterval),
	)
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 6. HTTP server (REST + websocket)
	apiServer := api.NewServer(logger, presence, messages, moderator, monitoring)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := &http.Server{
		Addr:    address,
		Handler: apiServer.Router(ws.NewHandler(logger, chatService)),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting gateway", "address", address, "at", time.Now().UTC())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}

	sup.Stop()
	select {
	case <-supDone:
	case <-time.After(5 * time.Second):
		logger.Warn("Workers did not stop in time")
	}

	logger.Info("Gateway stopped")
	return exitOK, nil
}
