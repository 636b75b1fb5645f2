package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ArbMon-Fusion/dca-engine/api"
	"github.com/ArbMon-Fusion/dca-engine/config"
	"github.com/ArbMon-Fusion/dca-engine/internal/approval"
	"github.com/ArbMon-Fusion/dca-engine/internal/chain"
	"github.com/ArbMon-Fusion/dca-engine/internal/order"
	"github.com/ArbMon-Fusion/dca-engine/internal/scheduler"
	"github.com/ArbMon-Fusion/dca-engine/internal/swap"
	"github.com/ArbMon-Fusion/dca-engine/service"
	"github.com/ArbMon-Fusion/dca-engine/storage"
	"github.com/ArbMon-Fusion/dca-engine/storage/docstore"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.GetConfigure()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *cfg, logger); err != nil {
		logger.WithError(err).Error("daemon exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	var sd *statsd.Client
	if cfg.Datadog.Host != "" {
		client, err := statsd.New(fmt.Sprintf("%s:%s", cfg.Datadog.Host, cfg.Datadog.Port))
		if err != nil {
			return fmt.Errorf("failed to create statsd client: %w", err)
		}
		sd = client
		defer sd.Close()
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}

	store, err := docstore.New(ctx, backend, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	callTimeout := time.Duration(cfg.Swap.CallTimeoutSeconds) * time.Second
	srcClient, err := chain.NewEthClient(
		cfg.SourceChain.RpcURL, cfg.SourceChain.ChainID, cfg.Resolver.PrivateKey, callTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to source chain: %w", err)
	}
	defer srcClient.Close()

	dstClient, err := chain.NewEthClient(
		cfg.DestChain.RpcURL, cfg.DestChain.ChainID, cfg.Resolver.PrivateKey, callTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to destination chain: %w", err)
	}
	defer dstClient.Close()

	signer, err := chain.NewLocalSigner(cfg.Resolver.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load resolver key: %w", err)
	}

	driver := swap.NewDriver(cfg, srcClient, dstClient, logger)
	builder := order.NewBuilder(cfg)
	swapSvc := service.NewSwapService(store, builder, driver, signer, logger)
	// the limit-order-protocol pulls maker funds on fill, so it is the
	// allowance spender, not the resolver
	checker := approval.NewChecker(
		srcClient,
		common.HexToAddress(cfg.SourceChain.Token),
		common.HexToAddress(cfg.SourceChain.LimitOrderProtocol),
		logger,
	)

	sched := scheduler.New(cfg, store, driver, logger, sd)
	server := api.NewServer(cfg, store, sched, swapSvc, checker, logger)

	sched.Start(ctx)
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newBackend(cfg config.Config) (storage.Backend, error) {
	switch cfg.Store.Backend {
	case "file", "":
		return docstore.NewFileBackend(cfg.Store.FilePath), nil
	case "redis":
		return docstore.NewRedisBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}
