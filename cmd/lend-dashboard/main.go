// Package main runs the lending dashboard: it polls one lending market and its
// oracle, serves the derived dashboard over HTTP and a WebSocket stream, and
// drives approve-then-act transaction sequences through a key-backed wallet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	httpadapter "github.com/archon-research/stl-lend/internal/adapters/inbound/http"
	"github.com/archon-research/stl-lend/internal/adapters/outbound/ethereum"
	"github.com/archon-research/stl-lend/internal/adapters/outbound/memory"
	"github.com/archon-research/stl-lend/internal/adapters/outbound/sns"
	"github.com/archon-research/stl-lend/internal/adapters/outbound/telemetry"
	"github.com/archon-research/stl-lend/internal/application"
	"github.com/archon-research/stl-lend/internal/pkg/blockchain"
	"github.com/archon-research/stl-lend/internal/pkg/blockchain/multicall"
	"github.com/archon-research/stl-lend/internal/pkg/env"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
	"github.com/archon-research/stl-lend/internal/services/liquidation"
	"github.com/archon-research/stl-lend/internal/services/market_data"
	"github.com/archon-research/stl-lend/internal/services/tx_orchestrator"
)

const serviceName = "lend-dashboard"

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	rpcURL := flag.String("rpc", "", "Ethereum JSON-RPC URL")
	httpAddr := flag.String("addr", "", "HTTP listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	if *rpcURL == "" {
		*rpcURL = requireEnv("RPC_URL", logger)
	}
	if *httpAddr == "" {
		*httpAddr = env.Get("HTTP_ADDR", ":8080")
	}

	marketAddr := requireAddress("MARKET_ADDRESS", logger)
	marketID := common.HexToHash(requireEnv("MARKET_ID", logger))
	oracleAddr := optionalAddress("ORACLE_ADDRESS", logger)
	faucetAddr := optionalAddress("FAUCET_ADDRESS", logger)
	chainID := big.NewInt(env.GetInt64("CHAIN_ID", 11155111))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:  serviceName,
		Environment:  env.Get("APP_ENV", "production"),
		OTLPEndpoint: env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Stdout:       env.IsDevelopment() && env.Get("TRACE_STDOUT", "") == "true",
		SampleRate:   env.GetFloat("TRACE_SAMPLE_RATE", 1.0),
	})
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  serviceName,
		Environment:  env.Get("APP_ENV", "production"),
		OTLPEndpoint: env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	})
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	metrics, err := telemetry.NewMetrics(serviceName)
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	ethClient, err := ethclient.Dial(*rpcURL)
	if err != nil {
		logger.Error("failed to connect to Ethereum node", "error", err)
		os.Exit(1)
	}
	defer ethClient.Close()
	logger.Info("Ethereum node connected", "chainID", chainID)

	mc, err := multicall.NewClient(ethClient, multicall.DefaultAddress)
	if err != nil {
		logger.Error("failed to create multicall client", "error", err)
		os.Exit(1)
	}

	reader, err := ethereum.NewReader(ethClient, mc, ethereum.ReaderConfig{
		Market:          marketAddr,
		MarketID:        marketID,
		Oracle:          oracleAddr,
		Faucet:          faucetAddr,
		RateLimitPerSec: env.GetFloat("RPC_RATE_LIMIT", 10),
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to create reader", "error", err)
		os.Exit(1)
	}

	paramsCtx, paramsCancel := context.WithTimeout(ctx, 30*time.Second)
	params, err := reader.MarketParams(paramsCtx)
	paramsCancel()
	if err != nil {
		logger.Error("failed to read market params", "market", marketAddr.Hex(), "error", err)
		os.Exit(1)
	}
	if oracleAddr != (common.Address{}) {
		params.Oracle = oracleAddr
	}
	if err := params.Validate(); err != nil {
		logger.Error("market params are unusable", "error", err)
		os.Exit(1)
	}
	logger.Info("market loaded",
		"loanToken", params.LoanToken.Hex(),
		"collateralToken", params.CollateralToken.Hex(),
		"oracle", params.Oracle.Hex(),
		"lltv", params.LLTV)

	var signer ethereum.Signer
	if key := env.Get("WALLET_PRIVATE_KEY", ""); key != "" {
		keySigner, err := ethereum.NewKeySigner(key)
		if err != nil {
			logger.Error("invalid wallet key", "error", err)
			os.Exit(1)
		}
		signer, err = ethereum.NewConfirmSigner(keySigner,
			ethereum.AllowTargets(marketAddr, faucetAddr, params.LoanToken, params.CollateralToken))
		if err != nil {
			logger.Error("failed to create signer", "error", err)
			os.Exit(1)
		}
		logger.Info("wallet connected", "account", keySigner.Address().Hex())
	} else {
		logger.Warn("WALLET_PRIVATE_KEY not set, running read-only")
	}
	wallet, err := ethereum.NewWallet(ethClient, signer, ethereum.WalletConfig{
		ChainID: chainID,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create wallet", "error", err)
		os.Exit(1)
	}

	calls, err := blockchain.NewMarketCalls(marketAddr, faucetAddr, params)
	if err != nil {
		logger.Error("failed to create market calls", "error", err)
		os.Exit(1)
	}

	feed := memory.NewNoticeSink(int(env.GetInt64("NOTICE_CAPACITY", memory.DefaultCapacity)))
	sinks := []outbound.NoticeSink{feed}
	if topicARN := env.Get("NOTICE_SNS_TOPIC_ARN", ""); topicARN != "" {
		snsSink, err := newSNSSink(ctx, topicARN, marketAddr, logger)
		if err != nil {
			logger.Error("failed to create SNS notice sink", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, snsSink)
		logger.Info("publishing notices to SNS", "topic", topicARN)
	}
	notices := application.NewNoticeFanout(logger, sinks...)

	faucetEnabled := faucetAddr != (common.Address{})
	cache := market_data.NewCache()
	poller, err := market_data.NewPoller(market_data.Config{
		AccountInterval: env.GetDuration("ACCOUNT_POLL_INTERVAL", 0),
		OracleInterval:  env.GetDuration("ORACLE_POLL_INTERVAL", 0),
		FaucetEnabled:   faucetEnabled,
		Metrics:         metrics,
		Logger:          logger,
	}, reader, wallet, cache, params)
	if err != nil {
		logger.Error("failed to create poller", "error", err)
		os.Exit(1)
	}

	liquidations, err := liquidation.NewService(liquidation.Config{
		IncentiveBps: env.GetInt64("LIQUIDATION_INCENTIVE_BPS", 0),
		Logger:       logger,
	}, reader, params)
	if err != nil {
		logger.Error("failed to create liquidation service", "error", err)
		os.Exit(1)
	}

	orchestrator, err := tx_orchestrator.NewOrchestrator(tx_orchestrator.Config{
		FaucetEnabled: faucetEnabled,
		Metrics:       metrics,
		Logger:        logger,
	}, params, tx_orchestrator.Deps{
		Wallet:       wallet,
		Reader:       reader,
		Calls:        calls,
		Market:       cache,
		Refresher:    poller,
		Liquidations: liquidations,
		Notices:      notices,
	})
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	dashboard, err := application.NewDashboard(application.Config{Logger: logger}, application.Deps{
		Params:       params,
		Cache:        cache,
		Poller:       poller,
		Orchestrator: orchestrator,
		Liquidations: liquidations,
		Feed:         feed,
		Notices:      notices,
	})
	if err != nil {
		logger.Error("failed to create dashboard", "error", err)
		os.Exit(1)
	}

	var shuttingDown atomic.Bool
	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Addr:           *httpAddr,
		StreamInterval: env.GetDuration("STREAM_INTERVAL", 0),
		Logger:         logger,
	}, dashboard, dashboard, &shuttingDown)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := dashboard.Start(ctx); err != nil {
		logger.Error("failed to start dashboard", "error", err)
		os.Exit(1)
	}
	server.Start()

	sig := <-sigChan
	logger.Info("received signal, shutting down...", "signal", sig)
	shuttingDown.Store(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if err := server.Shutdown(10 * time.Second); err != nil {
			logger.Error("error stopping http server", "error", err)
		}
		cancel()
		if err := dashboard.Stop(); err != nil {
			logger.Error("error stopping dashboard", "error", err)
		}
		if err := notices.Close(); err != nil {
			logger.Error("error closing notice sinks", "error", err)
		}
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Error("error flushing metrics", "error", err)
		}
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("error flushing traces", "error", err)
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Error("shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

func newSNSSink(ctx context.Context, topicARN string, market common.Address, logger *slog.Logger) (*sns.NoticeSink, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(env.Get("AWS_REGION", "us-east-1")))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := awssns.NewFromConfig(cfg, func(o *awssns.Options) {
		if endpoint := env.Get("AWS_SNS_ENDPOINT", ""); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return sns.NewNoticeSink(client, sns.Config{
		TopicARN: topicARN,
		Market:   market.Hex(),
		Logger:   logger,
	})
}

func requireEnv(key string, logger *slog.Logger) string {
	value := os.Getenv(key)
	if value == "" {
		logger.Error("required environment variable not set", "key", key)
		os.Exit(1)
	}
	return value
}

func requireAddress(key string, logger *slog.Logger) common.Address {
	addr := optionalAddress(key, logger)
	if addr == (common.Address{}) {
		logger.Error("required address not set", "key", key)
		os.Exit(1)
	}
	return addr
}

func optionalAddress(key string, logger *slog.Logger) common.Address {
	raw := env.Get(key, "")
	if raw == "" {
		return common.Address{}
	}
	if !common.IsHexAddress(raw) {
		logger.Error("invalid address", "key", key, "value", raw)
		os.Exit(1)
	}
	return common.HexToAddress(raw)
}
