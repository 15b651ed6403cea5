// Package oneinch implements the Quoter interface as a pass-through to an
// external aggregation API. The engine does no routing of its own here; it
// nets the aggregator's fee out of the headline amount so the quote is
// comparable to single-pool quotes, and extracts a route breakdown string
// for display.
package oneinch

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zook8/DEX-quotes/business/quoting/app"
	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/apperror"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/httpclient"
	"github.com/zook8/DEX-quotes/internal/logger"
)

const (
	tracerName = "oneinch"

	// BaseAPIURL is the aggregation API host. The chain id is appended to
	// the quote path per request.
	BaseAPIURL = "https://api.1inch.dev"

	quoteEndpoint = "/swap/v6.0/%d/quote"

	httpTimeout = 10 * time.Second
)

// ClientConfig holds configuration for the aggregator client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// FeeBps is the integrator fee in basis points, netted out of the
	// headline amount when the API response carries no fee field.
	FeeBps float64
}

var _ app.Quoter = (*Quoter)(nil)

// Quoter delegates quoting to the aggregation API.
type Quoter struct {
	client httpclient.Client
	feeBps float64
	log    logger.LoggerInterface
	tracer trace.Tracer
}

// New creates an aggregator pass-through quoter.
func New(cfg ClientConfig, log logger.LoggerInterface) (*Quoter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseAPIURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}

	tracer := otel.Tracer(tracerName)

	headers := map[string]string{"Accept": "application/json"}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("oneinch"),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Quoter{
		client: client,
		feeBps: cfg.FeeBps,
		log:    log,
		tracer: tracer,
	}, nil
}

// Protocol implements app.Quoter.
func (q *Quoter) Protocol() domain.Protocol {
	return domain.ProtocolAggregator
}

// routeHop is one venue in the aggregator's routing breakdown.
type routeHop struct {
	Name string  `json:"name"`
	Part float64 `json:"part"`
}

// quoteResponse is the aggregation API quote payload. Amounts are decimal
// strings in the destination token's smallest unit.
type quoteResponse struct {
	DstAmount string         `json:"dstAmount"`
	FeeAmount string         `json:"feeAmount"`
	Protocols [][][]routeHop `json:"protocols"`
	Gas       int64          `json:"gas"`
}

// Quote fetches an aggregated quote, nets out the aggregator fee, and
// carries the route breakdown in the note.
func (q *Quoter) Quote(ctx context.Context, pool domain.PoolInfo, amountIn asset.Amount) (app.QuoteResult, error) {
	if pool.Protocol != domain.ProtocolAggregator {
		panic(fmt.Sprintf("oneinch: dispatched pool with protocol %q", pool.Protocol))
	}

	ctx, span := q.tracer.Start(ctx, "oneinch.quote",
		trace.WithAttributes(
			attribute.String("pair", pool.Pair.String()),
			attribute.String("amount_in", amountIn.Raw().String()),
		),
	)
	defer span.End()

	var result quoteResponse
	resp, err := q.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("endpoint", "quote"),
			httpclient.NewLabel("pair", pool.Pair.String()),
		),
	).
		SetQueryParam("src", pool.Pair.Base.Address().Hex()).
		SetQueryParam("dst", pool.Pair.Quote.Address().Hex()).
		SetQueryParam("amount", amountIn.Raw().String()).
		SetQueryParam("includeProtocols", "true").
		SetResult(&result).
		Get(ctx, fmt.Sprintf(quoteEndpoint, pool.ChainID))

	if err != nil {
		span.RecordError(err)
		return app.QuoteResult{}, apperror.New(apperror.CodeAggregatorAPIError,
			apperror.WithCause(err),
			apperror.WithContext("aggregator quote request failed"))
	}
	if resp.IsError() {
		return app.QuoteResult{}, apperror.New(apperror.CodeAggregatorAPIError,
			apperror.WithContext(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.String())))
	}

	gross, ok := new(big.Int).SetString(result.DstAmount, 10)
	if !ok {
		return app.QuoteResult{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("unparseable output amount %q", result.DstAmount)))
	}

	net := gross
	switch {
	case result.FeeAmount != "":
		fee, ok := new(big.Int).SetString(result.FeeAmount, 10)
		if !ok {
			return app.QuoteResult{}, apperror.New(apperror.CodeInvalidQuote,
				apperror.WithContext(fmt.Sprintf("unparseable fee amount %q", result.FeeAmount)))
		}
		net = new(big.Int).Sub(gross, fee)
		if net.Sign() < 0 {
			net = big.NewInt(0)
		}
	case q.feeBps > 0:
		// Response carried no fee field: net out the configured integrator
		// fee instead. Basis points scale by 10,000.
		fee := new(big.Int).Mul(gross, big.NewInt(int64(q.feeBps*100)))
		fee.Div(fee, big.NewInt(1_000_000))
		net = new(big.Int).Sub(gross, fee)
		if net.Sign() < 0 {
			net = big.NewInt(0)
		}
	}

	breakdown := routeBreakdown(result.Protocols)
	q.log.Debug(ctx, "aggregated quote",
		"pair", pool.Pair.String(),
		"gross", gross.String(),
		"net", net.String(),
		"route", breakdown,
	)

	return app.QuoteResult{
		AmountOut: asset.NewAmount(pool.Pair.Quote, net),
		Note:      breakdown,
	}, nil
}

// routeBreakdown flattens the aggregator's nested route structure into a
// display string like "UNISWAP_V3 60% + CURVE 40%". Hops within one route
// segment are joined by "+", consecutive segments by ">".
func routeBreakdown(protocols [][][]routeHop) string {
	if len(protocols) == 0 {
		return ""
	}

	var segments []string
	for _, segment := range protocols[0] {
		var parts []string
		for _, hop := range segment {
			parts = append(parts, fmt.Sprintf("%s %.0f%%", hop.Name, hop.Part))
		}
		if len(parts) > 0 {
			segments = append(segments, strings.Join(parts, " + "))
		}
	}
	return strings.Join(segments, " > ")
}
