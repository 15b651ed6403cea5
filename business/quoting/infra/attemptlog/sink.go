// Package attemptlog implements the quote-attempt sink. Attempts are
// written to the structured log for accuracy auditing and counted in
// metrics so tier usage is visible on dashboards.
package attemptlog

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zook8/DEX-quotes/business/quoting/app"
	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/logger"
)

const meterName = "quoting.attempts"

var _ app.AttemptSink = (*Sink)(nil)

// Sink records every quoting attempt.
type Sink struct {
	log      logger.LoggerInterface
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

// NewSink creates an attempt sink.
func NewSink(log logger.LoggerInterface) *Sink {
	meter := otel.Meter(meterName)
	attempts, _ := meter.Int64Counter("quote_attempts_total",
		metric.WithDescription("Quote attempts by protocol, tier, and outcome"))
	duration, _ := meter.Float64Histogram("quote_attempt_duration_seconds",
		metric.WithDescription("Wall-clock duration of quote attempts"))
	return &Sink{
		log:      log,
		attempts: attempts,
		duration: duration,
	}
}

// LogQuoteAttempt implements app.AttemptSink.
func (s *Sink) LogQuoteAttempt(ctx context.Context, attempt domain.QuoteAttempt) {
	outcome := "success"
	if attempt.Err != "" {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("protocol", string(attempt.Pool.Protocol)),
		attribute.String("tier", string(attempt.Tier)),
		attribute.String("outcome", outcome),
	)
	s.attempts.Add(ctx, 1, attrs)
	s.duration.Record(ctx, attempt.Duration.Seconds(), attrs)

	fields := []any{
		"pool", attempt.Pool.DisplayName(),
		"protocol", string(attempt.Pool.Protocol),
		"tier", string(attempt.Tier),
		"amount_in", attempt.AmountIn.String(),
		"duration", attempt.Duration.String(),
	}
	if attempt.Err != "" {
		fields = append(fields, "error", attempt.Err)
		s.log.Debug(ctx, "quote attempt failed", fields...)
		return
	}

	fields = append(fields,
		"amount_out", attempt.AmountOut.String(),
		"rate", attempt.Rate,
	)
	if attempt.CenterPrice != 0 || attempt.ReserveQuote != 0 {
		fields = append(fields,
			"center_price", attempt.CenterPrice,
			"upper_range", attempt.UpperRange,
			"lower_range", attempt.LowerRange,
			"reserve_base", attempt.ReserveBase,
			"reserve_quote", attempt.ReserveQuote,
			"impact", attempt.ImpactApplied,
		)
	}
	s.log.Info(ctx, "quote attempt", fields...)
}
