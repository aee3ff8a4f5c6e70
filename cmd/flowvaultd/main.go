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

	"flowvault/config"
	"flowvault/core/events"
	"flowvault/core/state"
	"flowvault/core/types"
	"flowvault/native/bank"
	"flowvault/native/scenario"
	"flowvault/observability/logging"
	"flowvault/observability/metrics"
	"flowvault/rpc"
	"flowvault/storage"
)

// logEmitter mirrors engine events into the structured log so operators can
// follow custody changes without an external indexer.
type logEmitter struct {
	logger *slog.Logger
}

func (e logEmitter) Emit(evt events.Event) {
	attrs := []any{"type", evt.EventType()}
	if projector, ok := evt.(interface{ Event() *types.Event }); ok {
		if projected := projector.Event(); projected != nil {
			for key, value := range projected.Attributes {
				attrs = append(attrs, key, value)
			}
		}
	}
	e.logger.Info("engine event", attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup(cfg.ServiceName, cfg.Environment)

	managerAddr, err := cfg.Manager()
	if err != nil {
		logger.Error("Invalid manager address", slog.Any("error", err))
		os.Exit(1)
	}
	vaultAddr, err := cfg.Vault()
	if err != nil {
		logger.Error("Invalid vault address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	ledger := bank.NewLedger(manager)
	emitter := logEmitter{logger: logger}

	active, err := manager.ActiveScenarios()
	if err != nil {
		logger.Error("Failed to read active scenario count", slog.Any("error", err))
		os.Exit(1)
	}
	metrics.Scenario().SetEscrowed(float64(active))

	registry := scenario.NewRegistry(managerAddr)
	registry.SetState(manager)
	registry.SetEmitter(emitter)

	engine := scenario.NewEngine()
	engine.SetState(manager)
	engine.SetBank(ledger)
	engine.SetRegistry(registry)
	engine.SetVault(vaultAddr)
	engine.SetEmitter(emitter)

	server := rpc.NewServer(engine, ledger, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.RPCAddress)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	case sig := <-sigCh:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("RPC shutdown failed", slog.Any("error", err))
			os.Exit(1)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
