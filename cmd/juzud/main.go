package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wakumo/juzu-protocol/core/events"
	"github.com/wakumo/juzu-protocol/native/locker"
	"github.com/wakumo/juzu-protocol/native/token"
	"github.com/wakumo/juzu-protocol/observability/logging"
	"github.com/wakumo/juzu-protocol/observability/metrics"
	"github.com/wakumo/juzu-protocol/services/juzud"
	"github.com/wakumo/juzu-protocol/storage"
)

// logEmitter forwards domain events to structured logs.
type logEmitter struct {
	logger *slog.Logger
}

func (e *logEmitter) Emit(evt *events.Event) {
	if evt == nil {
		return
	}
	args := make([]any, 0, len(evt.Attributes)*2)
	for k, v := range evt.Attributes {
		args = append(args, k, v)
	}
	e.logger.Info(evt.Type, args...)
}

func main() {
	configPath := flag.String("config", "./juzud.toml", "path to the service configuration file")
	flag.Parse()

	cfg, err := juzud.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("juzud", cfg.Environment, logging.ParseLevel(cfg.LogLevel))

	if err := run(cfg, logger); err != nil {
		logger.Error("juzud terminated", "error", err)
		os.Exit(1)
	}
}

func run(cfg *juzud.Config, logger *slog.Logger) error {
	var db storage.Database
	if cfg.DataDir == "" {
		db = storage.NewMemDB()
		logger.Warn("no data directory configured, locker records are in-memory only")
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "lockers"))
		if err != nil {
			return fmt.Errorf("open leveldb: %w", err)
		}
		db = ldb
	}
	defer db.Close()

	admin := common.HexToAddress(cfg.Admin)
	factoryAddr := common.HexToAddress(cfg.FactoryAddress)
	rewardToken := common.HexToAddress(cfg.RewardToken)
	baseFee, ok := new(big.Int).SetString(cfg.BaseFeeRequirement, 10)
	if !ok || baseFee.Sign() < 0 {
		return fmt.Errorf("config: BaseFeeRequirement %q is not a non-negative integer", cfg.BaseFeeRequirement)
	}

	ledger := token.NewLedger(admin)
	nfts := token.NewNFTBook()
	adapter := token.NewAdapter(ledger, nfts)
	registry := token.NewRegistry(admin)
	if err := registry.AddFactory(admin, factoryAddr); err != nil {
		return fmt.Errorf("register factory: %w", err)
	}
	if err := ledger.AddMintRight(admin, rewardToken, factoryAddr); err != nil {
		return fmt.Errorf("grant mint right: %w", err)
	}
	bank := &token.MintAuthority{Ledger: ledger, Token: rewardToken, Holder: factoryAddr}

	registryMetrics := prometheus.NewRegistry()
	factory, err := locker.NewFactory(locker.FactoryConfig{
		Address:            factoryAddr,
		Admin:              admin,
		Version:            cfg.FactoryVersion,
		Apr:                cfg.StakingAPR,
		BaseFeeRequirement: baseFee,
		RewardToken:        rewardToken,
		Registry:           registry,
		Adapter:            adapter,
		Bank:               bank,
		Emitter:            &logEmitter{logger: logger.With("component", "factory")},
		Store:              locker.NewStore(db),
		Metrics:            metrics.NewFactorySet(registryMetrics),
	})
	if err != nil {
		return fmt.Errorf("build factory: %w", err)
	}

	server := juzud.NewServer(factory, registry, logger, cfg, registryMetrics)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("juzud listening", "address", cfg.ListenAddress, "factory_version", cfg.FactoryVersion)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
