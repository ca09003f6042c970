package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xsequent/arbswap/apperror"
	"github.com/0xsequent/arbswap/config"
	"github.com/0xsequent/arbswap/flashloan"
	"github.com/0xsequent/arbswap/flashloan/aave"
	"github.com/0xsequent/arbswap/gas"
	"github.com/0xsequent/arbswap/quote"
	"github.com/0xsequent/arbswap/quote/bebop"
	"github.com/0xsequent/arbswap/quote/lifi"
	"github.com/0xsequent/arbswap/relay"
	"github.com/0xsequent/arbswap/swap"
	"github.com/0xsequent/arbswap/types"
	"github.com/0xsequent/arbswap/utils"
	"github.com/0xsequent/arbswap/utils/metrics"
	"github.com/0xsequent/arbswap/wallet"
)

var (
	swapChain    string
	swapFrom     string
	swapTo       string
	swapAmount   string
	swapSlippage uint32
	swapTimeout  time.Duration
)

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Execute a token swap at the best available quote",
	RunE:  runSwap,
}

func init() {
	swapCmd.Flags().StringVar(&swapChain, "chain", "", "chain name (defaults to the configured default)")
	swapCmd.Flags().StringVar(&swapFrom, "from-token", "", "source token address")
	swapCmd.Flags().StringVar(&swapTo, "to-token", "", "destination token address")
	swapCmd.Flags().StringVar(&swapAmount, "amount", "", "amount to swap, human decimal units")
	swapCmd.Flags().Uint32Var(&swapSlippage, "slippage", 0, "slippage tolerance in basis points")
	swapCmd.Flags().DurationVar(&swapTimeout, "timeout", 2*time.Minute, "overall swap deadline")
	_ = swapCmd.MarkFlagRequired("from-token")
	_ = swapCmd.MarkFlagRequired("to-token")
	_ = swapCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(swapCmd)
}

func runSwap(cmd *cobra.Command, args []string) error {
	logger := utils.GetLogger()
	defer utils.CleanupLogger()

	if !common.IsHexAddress(swapFrom) || !common.IsHexAddress(swapTo) {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("token flags must be hex addresses"))
	}

	if err := config.LoadEnv(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	secure, err := config.LoadSecureConfig()
	if err != nil {
		return err
	}

	chainName := swapChain
	if chainName == "" {
		chainName = cfg.DefaultChain
	}
	chain, err := cfg.Chain(chainName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), swapTimeout)
	defer cancel()

	if cfg.PrometheusEnabled {
		go serveMetrics(cfg.PrometheusEndpoint, logger)
	}

	orchestrator, estimator, err := buildPipeline(ctx, cfg, chain, secure, logger)
	if err != nil {
		return err
	}
	defer estimator.Stop()

	req := &types.SwapRequest{
		Chain:       chainName,
		FromToken:   common.HexToAddress(swapFrom),
		ToToken:     common.HexToAddress(swapTo),
		Amount:      swapAmount,
		SlippageBPS: swapSlippage,
	}

	tx, err := orchestrator.Swap(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("swap complete: tx %s (chain %d, to %s)\n", tx.Hash.Hex(), tx.ChainID, tx.To.Hex())
	return nil
}

// buildPipeline dials the chain and assembles the quote sources, relay
// and orchestrator for one chain.
func buildPipeline(ctx context.Context, cfg *config.Config, chain *config.ChainConfig, secure *config.SecureConfig, logger *zap.Logger) (*swap.Orchestrator, *gas.Estimator, error) {
	client, err := ethclient.DialContext(ctx, chain.RPCEndpoint)
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.CodeRPCError, "dial rpc endpoint")
	}

	estimator, err := gas.NewEstimator(ctx, client, logger)
	if err != nil {
		return nil, nil, err
	}

	w, err := wallet.New(secure.PrivateKey, client, chain.ChainID, estimator, logger)
	if err != nil {
		estimator.Stop()
		return nil, nil, err
	}

	httpClient := &http.Client{Timeout: cfg.NetworkTimeout}
	venueLimiter := rate.NewLimiter(
		rate.Limit(cfg.VenueRateLimit.RequestsPerSecond), cfg.VenueRateLimit.BurstSize)
	relayLimiter := rate.NewLimiter(
		rate.Limit(cfg.RelayRateLimit.RequestsPerSecond), cfg.RelayRateLimit.BurstSize)

	lifiClient := lifi.NewClient(chain.LifiEndpoint, httpClient, venueLimiter)
	bebopClient := bebop.NewClient(chain.BebopEndpoint, httpClient, venueLimiter)

	sources := []quote.Source{
		lifi.NewAdapter(lifiClient, w, chain.ChainID, logger),
		bebop.NewAdapter(bebopClient, w, chain.BebopChainKey, logger),
	}

	relayClient, err := relay.NewClient(chain.RelayURL, secure.RelaySigningKey, w, relayLimiter, logger)
	if err != nil {
		estimator.Stop()
		return nil, nil, err
	}

	// The arbitrage path needs a deployed executor contract. Without one
	// every swap takes the direct path.
	var loans flashloan.Provider
	if (chain.ExecutorAddress() != common.Address{}) {
		provider, err := aave.NewProvider(
			chain.AavePoolAddress(), chain.ExecutorAddress(), relayClient, chain.FlashLoanGas, logger)
		if err != nil {
			estimator.Stop()
			return nil, nil, err
		}
		loans = provider
	} else {
		logger.Warn("No arbitrage executor configured, direct path only")
	}

	preparer := swap.NewPreparer(lifiClient, w, w.Address(), logger)
	swapMetrics := metrics.NewSwapMetrics("arbswap", prometheus.DefaultRegisterer)

	return swap.NewOrchestrator(
		sources, preparer, w, loans, aave.EncodeArbitrageParams,
		swapMetrics, chain.SwapGas, logger,
	), estimator, nil
}

func serveMetrics(endpoint string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics", zap.String("endpoint", endpoint))
	if err := http.ListenAndServe(endpoint, mux); err != nil {
		logger.Error("Metrics server stopped", zap.Error(err))
	}
}
