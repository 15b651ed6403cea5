// Package main is the entry point for the DEX quote aggregation engine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/zook8/DEX-quotes/business/quoting"
	quotingDI "github.com/zook8/DEX-quotes/business/quoting/di"
	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/apm"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/config"
	"github.com/zook8/DEX-quotes/internal/health"
	"github.com/zook8/DEX-quotes/internal/logger"
	"github.com/zook8/DEX-quotes/internal/metrics"
	"github.com/zook8/DEX-quotes/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	pairID := flag.String("pair", "USDe-USDT", "Pair to quote, as BASE-QUOTE symbols")
	amountStr := flag.String("amount", "10000", "Input amount in human units of the base token")
	interval := flag.Duration("interval", 0, "Re-quote every interval (0 = run once)")
	jsonOut := flag.Bool("json", false, "Emit results as JSON instead of a table")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dex-quotes %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *pairID, *amountStr, *interval, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, pairID, amountStr string, interval time.Duration, jsonOut bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}
	log := logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
	log.Info(ctx, "starting DEX quote engine",
		"version", version,
		"environment", cfg.App.Environment,
	)

	// Observability is opt-in; quoting works without it.
	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin")

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)
		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthServer := health.NewServer(8081, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", 8081)
	}
	defer healthServer.Stop(ctx)

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	healthServer.RegisterCheck("node", func(ctx context.Context) (bool, string) {
		block, err := mono.EthClient().BlockNumber(ctx)
		if err != nil {
			return false, err.Error()
		}
		return true, fmt.Sprintf("block %d", block)
	})

	modules := []monolith.Module{
		&quoting.Module{},
	}
	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	amountIn, err := parseAmount(mono.AssetRegistry(), cfg.Node.ChainID, pairID, amountStr)
	if err != nil {
		return err
	}

	simulator := quotingDI.GetSimulator(mono.Services())
	reg := quotingDI.GetPoolRegistry(mono.Services())

	runOnce := func() error {
		pools, err := reg.GetPoolsForPair(ctx, pairID)
		if err != nil {
			return fmt.Errorf("failed to load pools for %s: %w", pairID, err)
		}
		sim, err := simulator.Simulate(ctx, pools, amountIn)
		if err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}
		if jsonOut {
			return printJSON(sim)
		}
		printTable(pairID, amountIn, sim)
		return nil
	}

	if err := runOnce(); err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "shutting down")
			return nil
		case <-ticker.C:
			if err := runOnce(); err != nil {
				log.Error(ctx, "periodic simulation failed", "error", err)
			}
		}
	}
}

// parseAmount converts the human amount string into the base token's
// smallest unit.
func parseAmount(assets *asset.Registry, chainID uint64, pairID, amountStr string) (asset.Amount, error) {
	parts := strings.SplitN(pairID, "-", 2)
	if len(parts) != 2 {
		return asset.Amount{}, fmt.Errorf("malformed pair id %q, want BASE-QUOTE", pairID)
	}
	base, ok := assets.GetBySymbolAndChain(parts[0], chainID)
	if !ok {
		for _, a := range assets.All() {
			if a.ChainID() == chainID && strings.EqualFold(a.Symbol(), parts[0]) {
				base, ok = a, true
				break
			}
		}
	}
	if !ok {
		return asset.Amount{}, fmt.Errorf("unknown base token %q", parts[0])
	}

	value, err := decimal.NewFromString(amountStr)
	if err != nil || value.Sign() <= 0 {
		return asset.Amount{}, fmt.Errorf("invalid amount %q", amountStr)
	}
	return asset.NewAmountFromDecimal(base, value), nil
}

func printTable(pairID string, amountIn asset.Amount, sim domain.SwapSimulation) {
	fmt.Printf("\n%s: quoting %s %s across %d pools (%d succeeded)\n\n",
		pairID, amountIn.String(), amountIn.Asset().Symbol(), len(sim.Quotes), sim.SuccessCount())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPOOL\tPROTOCOL\tAMOUNT OUT\tRATE\tADVANTAGE\tEXEC PRICE\tNOTE")
	for _, r := range sim.Rankings {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%+.4f%%\t%.6f\t%s\n",
			r.Rank,
			r.Pool.DisplayName(),
			r.Pool.Protocol,
			r.Quote.AmountOut.String(),
			r.Quote.RealizedPrice().Rate().StringFixed(6),
			r.PriceAdvantagePct,
			r.Quote.ExecPriceUSD,
			r.Quote.ProtocolNote,
		)
	}
	w.Flush()

	failed := 0
	for _, q := range sim.Quotes {
		if !q.Success {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("\nfailed pools:\n")
		for _, q := range sim.Quotes {
			if !q.Success {
				fmt.Printf("  %s: %s\n", q.Pool.DisplayName(), q.Err)
			}
		}
	}
	fmt.Println()
}

type jsonRanking struct {
	Rank         int     `json:"rank"`
	Pool         string  `json:"pool"`
	Protocol     string  `json:"protocol"`
	AmountOut    string  `json:"amount_out"`
	RealizedRate string  `json:"realized_rate"`
	AdvantagePct float64 `json:"advantage_pct"`
	ExecPriceUSD float64 `json:"exec_price_usd"`
	Note         string  `json:"note,omitempty"`
}

type jsonOutput struct {
	Rankings []jsonRanking `json:"rankings"`
	Failed   []jsonFailure `json:"failed,omitempty"`
}

type jsonFailure struct {
	Pool  string `json:"pool"`
	Error string `json:"error"`
}

func printJSON(sim domain.SwapSimulation) error {
	out := jsonOutput{}
	for _, r := range sim.Rankings {
		out.Rankings = append(out.Rankings, jsonRanking{
			Rank:         r.Rank,
			Pool:         r.Pool.DisplayName(),
			Protocol:     string(r.Pool.Protocol),
			AmountOut:    r.Quote.AmountOut.String(),
			RealizedRate: r.Quote.RealizedPrice().Rate().StringFixed(6),
			AdvantagePct: r.PriceAdvantagePct,
			ExecPriceUSD: r.Quote.ExecPriceUSD,
			Note:         r.Quote.ProtocolNote,
		})
	}
	for _, q := range sim.Quotes {
		if !q.Success {
			out.Failed = append(out.Failed, jsonFailure{
				Pool:  q.Pool.DisplayName(),
				Error: q.Err,
			})
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
