package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

// Simulator iterates a pool list, dispatches each pool to its protocol's
// quoter, and assembles a ranked SwapSimulation. Pools are processed
// sequentially: the shared call executor already throttles RPC traffic, so
// parallel dispatch here would only add queueing pressure.
type Simulator struct {
	quoters    map[domain.Protocol]Quoter
	normalizer *Normalizer
	ranker     *Ranker
	sink       AttemptSink
	log        logger.LoggerInterface
	tracer     trace.Tracer
}

// NewSimulator builds the dispatch table from the given quoters. Duplicate
// protocol registrations indicate a wiring bug and panic.
func NewSimulator(quoters []Quoter, normalizer *Normalizer, ranker *Ranker, sink AttemptSink, log logger.LoggerInterface) *Simulator {
	table := make(map[domain.Protocol]Quoter, len(quoters))
	for _, q := range quoters {
		if _, dup := table[q.Protocol()]; dup {
			panic(fmt.Sprintf("quoting: duplicate quoter for protocol %q", q.Protocol()))
		}
		table[q.Protocol()] = q
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Simulator{
		quoters:    table,
		normalizer: normalizer,
		ranker:     ranker,
		sink:       sink,
		log:        log,
		tracer:     otel.Tracer("quoting"),
	}
}

// Simulate obtains a quote from every pool in the list for the given exact
// input amount and ranks the survivors. A single pool's failure never aborts
// the batch; an empty or all-failed list yields an empty (valid) simulation.
func (s *Simulator) Simulate(ctx context.Context, pools []domain.PoolInfo, amountIn asset.Amount) (domain.SwapSimulation, error) {
	ctx, span := s.tracer.Start(ctx, "quoting.simulate",
		trace.WithAttributes(
			attribute.Int("pool_count", len(pools)),
			attribute.String("amount_in", amountIn.String()),
		),
	)
	defer span.End()

	sim := domain.SwapSimulation{
		Quotes: make([]domain.Quote, 0, len(pools)),
	}

	for _, pool := range pools {
		quote := s.quotePool(ctx, pool, amountIn)
		sim.Quotes = append(sim.Quotes, quote)
	}

	sim.Rankings = s.ranker.Rank(sim.Quotes)
	if len(sim.Rankings) > 0 {
		best := sim.Rankings[0].Quote
		sim.BestQuote = &best
	}

	span.SetAttributes(attribute.Int("successful_quotes", len(sim.Rankings)))
	s.log.Info(ctx, "simulation complete",
		"pools", len(pools),
		"successful", len(sim.Rankings),
	)
	return sim, nil
}

func (s *Simulator) quotePool(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount) domain.Quote {
	quoter, ok := s.quoters[pool.Protocol]
	if !ok {
		// Not a panic: an unknown tag from the registry is data, not a
		// dispatch bug. A quoter receiving the wrong tag is the bug.
		err := fmt.Errorf("no quoter registered for protocol %q", pool.Protocol)
		s.log.Warn(ctx, "skipping pool", "pool", pool.DisplayName(), "error", err)
		return domain.NewFailedQuote(pool, amountIn, err)
	}

	// Multi-tier quoters log each tier themselves through the same sink.
	_, selfReporting := quoter.(AttemptReporter)

	start := time.Now()
	result, err := quoter.Quote(ctx, pool, amountIn)
	elapsed := time.Since(start)

	if err != nil {
		s.log.Warn(ctx, "pool quote failed",
			"pool", pool.DisplayName(),
			"duration", elapsed,
			"error", err,
		)
		if !selfReporting {
			s.sink.LogQuoteAttempt(ctx, domain.QuoteAttempt{
				Pool:     pool,
				Tier:     domain.TierPrimary,
				AmountIn: amountIn,
				Duration: elapsed,
				Err:      err.Error(),
			})
		}
		return s.normalizer.Normalize(ctx, pool, amountIn, asset.Amount{}, "", err)
	}

	if !selfReporting {
		rate := 0.0
		if in := amountIn.ToFloat64(); in > 0 {
			rate = result.AmountOut.ToFloat64() / in
		}
		s.sink.LogQuoteAttempt(ctx, domain.QuoteAttempt{
			Pool:      pool,
			Tier:      domain.TierPrimary,
			AmountIn:  amountIn,
			AmountOut: result.AmountOut,
			Rate:      rate,
			Duration:  elapsed,
		})
	}

	s.log.Debug(ctx, "pool quote ok",
		"pool", pool.DisplayName(),
		"amount_in", amountIn.String(),
		"amount_out", result.AmountOut.String(),
		"duration", elapsed,
	)
	return s.normalizer.Normalize(ctx, pool, amountIn, result.AmountOut, result.Note, nil)
}
