// Package priceref supplies the reference USD price table. Prices feed the
// display-layer execution price and the estimation fallbacks; they never
// participate in ranking. A live HTTP source is consulted first with a
// short cache, and a static table answers when the source is down so
// quoting keeps working offline.
package priceref

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zook8/DEX-quotes/business/quoting/app"
	"github.com/zook8/DEX-quotes/internal/apperror"
	"github.com/zook8/DEX-quotes/internal/httpclient"
	"github.com/zook8/DEX-quotes/internal/logger"
)

const (
	tracerName = "priceref"

	// BaseAPIURL is the public price API host.
	BaseAPIURL = "https://api.coingecko.com"

	priceEndpoint = "/api/v3/simple/price"

	httpTimeout = 10 * time.Second
	cacheTTL    = 30 * time.Second
)

// coinIDs maps token symbols to the price API's coin identifiers.
var coinIDs = map[string]string{
	"ETH":   "ethereum",
	"WETH":  "weth",
	"WBTC":  "wrapped-bitcoin",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"DAI":   "dai",
	"USDe":  "ethena-usde",
	"sUSDe": "ethena-staked-usde",
}

// fallbackUSD answers when the live source is unreachable. Stables at par,
// volatile tokens at coarse reference levels refreshed with releases.
var fallbackUSD = map[string]float64{
	"ETH":   3400,
	"WETH":  3400,
	"WBTC":  98000,
	"USDC":  1.0,
	"USDT":  1.0,
	"DAI":   1.0,
	"USDe":  0.999,
	"sUSDe": 1.15,
	"USD":   1.0,
}

var _ app.PriceTable = (*Table)(nil)

// TableConfig holds configuration for the price table.
type TableConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	// Fallback overlays the built-in static table, adding symbols or
	// replacing the shipped reference levels.
	Fallback map[string]float64
	// Offline disables the live source entirely; every lookup answers from
	// the static table.
	Offline bool
}

type cachedPrice struct {
	point app.PricePoint
	at    time.Time
}

// Table implements app.PriceTable.
type Table struct {
	client httpclient.Client
	cfg    TableConfig
	log    logger.LoggerInterface
	tracer trace.Tracer

	fallback map[string]float64

	mu    sync.Mutex
	cache map[string]cachedPrice
}

// NewTable creates a price table.
func NewTable(cfg TableConfig, log logger.LoggerInterface) (*Table, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = httpTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = cacheTTL
	}

	tracer := otel.Tracer(tracerName)

	fallback := make(map[string]float64, len(fallbackUSD)+len(cfg.Fallback))
	for symbol, usd := range fallbackUSD {
		fallback[symbol] = usd
	}
	for symbol, usd := range cfg.Fallback {
		fallback[symbol] = usd
	}

	t := &Table{
		cfg:      cfg,
		log:      log,
		tracer:   tracer,
		fallback: fallback,
		cache:    make(map[string]cachedPrice),
	}

	if !cfg.Offline {
		client, err := httpclient.NewInstrumentedClient(
			httpclient.WithProviderName("priceref"),
			httpclient.WithBaseURL(cfg.BaseURL),
			httpclient.WithRequestTimeout(cfg.Timeout),
			httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
			httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		t.client = client
	}
	return t, nil
}

// GetPrice implements app.PriceTable. The source field reports "live" when
// the price came from the HTTP source and "fallback" when the static table
// answered.
func (t *Table) GetPrice(ctx context.Context, tokenSymbol string) (app.PricePoint, error) {
	symbol := t.canonicalSymbol(tokenSymbol)

	t.mu.Lock()
	cached, ok := t.cache[symbol]
	t.mu.Unlock()
	if ok && time.Since(cached.at) < t.cfg.CacheTTL {
		return cached.point, nil
	}

	if t.client != nil {
		if point, err := t.fetchLive(ctx, symbol); err == nil {
			t.store(symbol, point)
			return point, nil
		} else {
			t.log.Warn(ctx, "live price fetch failed, using fallback",
				"symbol", symbol, "error", err)
		}
	}

	if usd, ok := t.fallback[symbol]; ok {
		point := app.PricePoint{USD: usd, Source: "fallback"}
		t.store(symbol, point)
		return point, nil
	}

	return app.PricePoint{}, apperror.New(apperror.CodePriceTableUnavailable,
		apperror.WithContext(fmt.Sprintf("no price available for %q", tokenSymbol)))
}

func (t *Table) fetchLive(ctx context.Context, symbol string) (app.PricePoint, error) {
	coinID, ok := coinIDs[symbol]
	if !ok {
		return app.PricePoint{}, fmt.Errorf("no coin id mapping for %q", symbol)
	}

	ctx, span := t.tracer.Start(ctx, "priceref.fetch",
		trace.WithAttributes(attribute.String("symbol", symbol)),
	)
	defer span.End()

	var result map[string]map[string]float64
	resp, err := t.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", "simple_price")),
	).
		SetQueryParam("ids", coinID).
		SetQueryParam("vs_currencies", "usd").
		SetResult(&result).
		Get(ctx, priceEndpoint)
	if err != nil {
		span.RecordError(err)
		return app.PricePoint{}, err
	}
	if resp.IsError() {
		return app.PricePoint{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.String())
	}

	usd, ok := result[coinID]["usd"]
	if !ok || usd <= 0 {
		return app.PricePoint{}, fmt.Errorf("price source returned no usd value for %q", coinID)
	}
	return app.PricePoint{USD: usd, Source: "live"}, nil
}

func (t *Table) store(symbol string, point app.PricePoint) {
	t.mu.Lock()
	t.cache[symbol] = cachedPrice{point: point, at: time.Now()}
	t.mu.Unlock()
}

// canonicalSymbol normalizes lookups to the casing the tables use.
func (t *Table) canonicalSymbol(symbol string) string {
	for known := range t.fallback {
		if strings.EqualFold(known, symbol) {
			return known
		}
	}
	return symbol
}
