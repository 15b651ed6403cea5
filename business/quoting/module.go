// Package quoting implements the quoting bounded context: quoting a token
// pair across AMM protocol families, normalizing the results, and ranking
// them by output amount.
package quoting

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/zook8/DEX-quotes/business/quoting/app"
	quotingDI "github.com/zook8/DEX-quotes/business/quoting/di"
	"github.com/zook8/DEX-quotes/business/quoting/infra/attemptlog"
	"github.com/zook8/DEX-quotes/business/quoting/infra/balancer"
	"github.com/zook8/DEX-quotes/business/quoting/infra/curve"
	"github.com/zook8/DEX-quotes/business/quoting/infra/fluid"
	"github.com/zook8/DEX-quotes/business/quoting/infra/nodecaller"
	"github.com/zook8/DEX-quotes/business/quoting/infra/oneinch"
	"github.com/zook8/DEX-quotes/business/quoting/infra/priceref"
	"github.com/zook8/DEX-quotes/business/quoting/infra/registry"
	"github.com/zook8/DEX-quotes/business/quoting/infra/uniswapv2"
	"github.com/zook8/DEX-quotes/business/quoting/infra/uniswapv3"
	"github.com/zook8/DEX-quotes/business/quoting/infra/uniswapv4"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/config"
	"github.com/zook8/DEX-quotes/internal/di"
	"github.com/zook8/DEX-quotes/internal/logger"
	"github.com/zook8/DEX-quotes/internal/monolith"
)

// Module implements the quoting bounded context.
type Module struct{}

// RegisterServices registers all quoting services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Rate-limited node caller - the single funnel for RPC traffic
	di.RegisterToken(c, quotingDI.NodeCaller, func(sr di.ServiceRegistry) nodecaller.ContractCaller {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		ethClient := sr.Get("ethClient").(*ethclient.Client)

		caller, err := nodecaller.New(ethClient, nodecaller.Config{
			CallsPerSecond: cfg.Node.CallsPerSecond,
			CallTimeout:    cfg.Node.CallTimeout,
			RetryCeiling:   cfg.Node.RetryCeiling,
			InitialBackoff: cfg.Node.InitialBackoff,
			MaxBackoff:     cfg.Node.MaxBackoff,
		}, log)
		if err != nil {
			panic("failed to create node caller: " + err.Error())
		}
		return caller
	})

	// Attempt sink - audit trail for multi-tier quoters
	di.RegisterToken(c, quotingDI.AttemptSink, func(sr di.ServiceRegistry) app.AttemptSink {
		log := sr.Get("logger").(logger.LoggerInterface)
		return attemptlog.NewSink(log)
	})

	// Reference price table (public - display-layer collaborator)
	di.RegisterToken(c, quotingDI.PriceTable, func(sr di.ServiceRegistry) app.PriceTable {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		table, err := priceref.NewTable(priceref.TableConfig{
			BaseURL:  cfg.PriceRef.LiveURL,
			CacheTTL: cfg.PriceRef.MaxAge,
			Fallback: cfg.PriceRef.Fallback,
			Offline:  cfg.PriceRef.Offline,
		}, log)
		if err != nil {
			panic("failed to create price table: " + err.Error())
		}
		return table
	})

	// Pool registry (public - supplies quoting targets)
	di.RegisterToken(c, quotingDI.PoolRegistry, func(sr di.ServiceRegistry) app.PoolRegistry {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		assets := sr.Get("assetRegistry").(*asset.Registry)

		reg, err := registry.NewStaticRegistry(cfg.Registry.File, assets, log)
		if err != nil {
			panic("failed to load pool registry: " + err.Error())
		}
		return reg
	})

	// Simulator (public - primary entry point)
	di.RegisterToken(c, quotingDI.Simulator, func(sr di.ServiceRegistry) *app.Simulator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		caller := quotingDI.GetNodeCaller(sr)
		sink := quotingDI.GetAttemptSink(sr)
		prices := quotingDI.GetPriceTable(sr)

		quoters := buildQuoters(cfg, caller, sink, prices, log)

		normalizer := app.NewNormalizer(prices, log)
		ranker := app.NewRanker(app.RankerPolicy{
			AdvantageClampPct: cfg.Impact.AdvantageClampPct,
			AdvantageNoisePct: cfg.Impact.AdvantageNoisePct,
		})
		return app.NewSimulator(quoters, normalizer, ranker, sink, log)
	})

	return nil
}

// buildQuoters wires one quoter per supported protocol.
func buildQuoters(cfg *config.Config, caller nodecaller.ContractCaller, sink app.AttemptSink, prices app.PriceTable, log logger.LoggerInterface) []app.Quoter {
	v2, err := uniswapv2.New(caller, cfg.Contracts.UniswapV2RouterHex(), log)
	if err != nil {
		panic("failed to create v2 quoter: " + err.Error())
	}
	v3, err := uniswapv3.New(caller, cfg.Contracts.UniswapV3FactoryHex(), cfg.Contracts.UniswapV3QuoterHex(), sink, log)
	if err != nil {
		panic("failed to create v3 quoter: " + err.Error())
	}
	v4, err := uniswapv4.New(caller, cfg.Contracts.UniswapV4QuoterHex(), prices, log)
	if err != nil {
		panic("failed to create v4 quoter: " + err.Error())
	}
	stable, err := curve.New(caller, log)
	if err != nil {
		panic("failed to create stable-swap quoter: " + err.Error())
	}
	weighted := balancer.New(log)

	fluidQuoter, err := fluid.New(caller, sink, prices, fluid.ImpactPolicy{
		LinearBoundary: cfg.Impact.LinearBoundaryPct / 100,
		MaxImpact:      cfg.Impact.MaxImpactPct / 100,
	}, int(cfg.Impact.StableFallbackFeeBps), log)
	if err != nil {
		panic("failed to create fluid quoter: " + err.Error())
	}

	aggregator, err := oneinch.New(oneinch.ClientConfig{
		BaseURL: cfg.Aggregator.BaseURL,
		APIKey:  cfg.Aggregator.APIKey,
		Timeout: cfg.Aggregator.Timeout,
		FeeBps:  cfg.Aggregator.FeeBps,
	}, log)
	if err != nil {
		panic("failed to create aggregator quoter: " + err.Error())
	}

	return []app.Quoter{v2, v3, v4, stable, weighted, fluidQuoter, aggregator}
}

// Startup initializes the quoting module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	// Force registry load so a missing pool file fails at startup, not on
	// the first simulation.
	reg := quotingDI.GetPoolRegistry(mono.Services())
	if lister, ok := reg.(interface{ Pairs() []string }); ok {
		log.Info(ctx, "pool registry loaded", "pairs", len(lister.Pairs()))
	}

	return nil
}
