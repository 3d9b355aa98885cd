package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"whisper/auth"
	"whisper/infrastructure/ws"
	"whisper/repositories"
	"whisper/runtime"
	"whisper/runtime/workers"
	"whisper/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so deferred cleanup (like the database
// close) always executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories, registry, services
	userRepository := repositories.NewUserRepository(db)
	messageRepository := repositories.NewMessageRepository(db)
	registry := runtime.NewRegistry()
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)

	presence := services.NewPresenceService(log, userRepository, registry)
	delivery := services.NewDeliveryService(log, messageRepository, userRepository,
		registry, config.MaxContentLength, config.MaxHistoryLimit)
	receipts := services.NewReceiptService(log, messageRepository, registry)
	mutations := services.NewMutationService(log, messageRepository, registry)
	typing := services.NewTypingService(registry)
	authService := services.NewAuthService(userRepository, tokens)

	// 4. Transport
	timeouts := ws.Timeouts{
		PingInterval: config.PingInterval,
		PongWait:     config.PongWait,
		WriteWait:    config.WriteWait,
		ReadLimit:    config.ReadLimit,
	}
	handler := ws.NewHandler(log, tokens, userRepository, registry,
		presence, delivery, receipts, mutations, typing,
		config.ConnectionBufferSize, timeouts)
	rest := ws.NewRestHandler(log, authService, delivery, tokens)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := ws.NewServer(address, log, handler, rest, config.ShutdownTimeout)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervision
	supervisor := workers.NewSupervisor(log)
	supervisor.Add(server)
	supervisor.Add(workers.NewStorageGC(db, config.StorageGCInterval, log))

	log.Info("Starting whisper", "address", address)
	supervisor.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
