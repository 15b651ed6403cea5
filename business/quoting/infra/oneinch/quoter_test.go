package oneinch

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/apperror"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func aggregatorPool(t *testing.T) domain.PoolInfo {
	t.Helper()
	pool, err := domain.NewPoolInfo(common.Address{}, domain.ProtocolAggregator, asset.ChainIDEthereum,
		domain.NewPair(asset.USDe, asset.USDT), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pool
}

func newServerQuoter(t *testing.T, handler http.HandlerFunc) *Quoter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	q, err := New(ClientConfig{BaseURL: server.URL, APIKey: "test-key"}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return q
}

func TestQuote_NetsFeeAndBuildsRouteNote(t *testing.T) {
	var gotReq *http.Request
	q := newServerQuoter(t, func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		json.NewEncoder(w).Encode(quoteResponse{
			DstAmount: "10000000000",
			FeeAmount: "5000000",
			Protocols: [][][]routeHop{{
				{{Name: "UNISWAP_V3", Part: 60}, {Name: "CURVE", Part: 40}},
			}},
			Gas: 250_000,
		})
	})

	amountIn := asset.NewAmount(asset.USDe, new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18)))
	result, err := q.Quote(context.Background(), aggregatorPool(t), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := big.NewInt(9_995_000_000)
	if result.AmountOut.Raw().Cmp(want) != 0 {
		t.Errorf("expected net %s, got %s", want, result.AmountOut.Raw())
	}
	if result.Note != "UNISWAP_V3 60% + CURVE 40%" {
		t.Errorf("unexpected route note %q", result.Note)
	}

	if gotReq == nil {
		t.Fatal("server received no request")
	}
	if gotReq.URL.Path != "/swap/v6.0/1/quote" {
		t.Errorf("unexpected path %q", gotReq.URL.Path)
	}
	query := gotReq.URL.Query()
	if query.Get("src") != asset.AddrUSDeEthereum.Hex() {
		t.Errorf("unexpected src %q", query.Get("src"))
	}
	if query.Get("dst") != asset.AddrUSDTEthereum.Hex() {
		t.Errorf("unexpected dst %q", query.Get("dst"))
	}
	if query.Get("amount") != amountIn.Raw().String() {
		t.Errorf("unexpected amount %q", query.Get("amount"))
	}
	if gotReq.Header.Get("Authorization") != "Bearer test-key" {
		t.Errorf("unexpected auth header %q", gotReq.Header.Get("Authorization"))
	}
}

func TestQuote_NoFeeFieldKeepsGrossAmount(t *testing.T) {
	q := newServerQuoter(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(quoteResponse{DstAmount: "9990000000"})
	})

	amountIn := asset.NewAmount(asset.USDe, big.NewInt(1e18))
	result, err := q.Quote(context.Background(), aggregatorPool(t), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := big.NewInt(9_990_000_000)
	if result.AmountOut.Raw().Cmp(want) != 0 {
		t.Errorf("expected gross %s, got %s", want, result.AmountOut.Raw())
	}
	if result.Note != "" {
		t.Errorf("expected empty note without protocols, got %q", result.Note)
	}
}

func TestQuote_ConfiguredFeeBpsNetsWhenResponseOmitsFee(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(quoteResponse{DstAmount: "10000000000"})
	}))
	t.Cleanup(server.Close)

	q, err := New(ClientConfig{BaseURL: server.URL, FeeBps: 3}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountIn := asset.NewAmount(asset.USDe, big.NewInt(1e18))
	result, err := q.Quote(context.Background(), aggregatorPool(t), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 3 bps of 10,000e6 is 3e6.
	want := big.NewInt(9_997_000_000)
	if result.AmountOut.Raw().Cmp(want) != 0 {
		t.Errorf("expected net %s, got %s", want, result.AmountOut.Raw())
	}
}

func TestQuote_ResponseFeeTakesPrecedenceOverConfiguredBps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(quoteResponse{DstAmount: "10000000000", FeeAmount: "5000000"})
	}))
	t.Cleanup(server.Close)

	q, err := New(ClientConfig{BaseURL: server.URL, FeeBps: 3}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountIn := asset.NewAmount(asset.USDe, big.NewInt(1e18))
	result, err := q.Quote(context.Background(), aggregatorPool(t), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := big.NewInt(9_995_000_000)
	if result.AmountOut.Raw().Cmp(want) != 0 {
		t.Errorf("expected net %s, got %s", want, result.AmountOut.Raw())
	}
}

func TestQuote_FeeExceedingOutputFloorsAtZeroAndFailsRanking(t *testing.T) {
	q := newServerQuoter(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(quoteResponse{DstAmount: "1000", FeeAmount: "2000"})
	})

	amountIn := asset.NewAmount(asset.USDe, big.NewInt(1e18))
	result, err := q.Quote(context.Background(), aggregatorPool(t), amountIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.AmountOut.IsZero() {
		t.Errorf("expected zero net output, got %s", result.AmountOut.Raw())
	}
}

func TestQuote_APIErrorStatus(t *testing.T) {
	q := newServerQuoter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"insufficient liquidity"}`, http.StatusBadRequest)
	})

	amountIn := asset.NewAmount(asset.USDe, big.NewInt(1e18))
	_, err := q.Quote(context.Background(), aggregatorPool(t), amountIn)
	if err == nil {
		t.Fatal("expected error on HTTP 400")
	}
	if apperror.GetCode(err) != apperror.CodeAggregatorAPIError {
		t.Errorf("expected CodeAggregatorAPIError, got %v", apperror.GetCode(err))
	}
}

func TestQuote_UnparseableAmount(t *testing.T) {
	q := newServerQuoter(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(quoteResponse{DstAmount: "not-a-number"})
	})

	amountIn := asset.NewAmount(asset.USDe, big.NewInt(1e18))
	_, err := q.Quote(context.Background(), aggregatorPool(t), amountIn)
	if err == nil {
		t.Fatal("expected error on unparseable amount")
	}
	if apperror.GetCode(err) != apperror.CodeInvalidQuote {
		t.Errorf("expected CodeInvalidQuote, got %v", apperror.GetCode(err))
	}
}

func TestRouteBreakdown(t *testing.T) {
	tests := []struct {
		name      string
		protocols [][][]routeHop
		want      string
	}{
		{"empty", nil, ""},
		{
			"single hop",
			[][][]routeHop{{{{Name: "UNISWAP_V3", Part: 100}}}},
			"UNISWAP_V3 100%",
		},
		{
			"split within segment",
			[][][]routeHop{{{{Name: "UNISWAP_V3", Part: 60}, {Name: "CURVE", Part: 40}}}},
			"UNISWAP_V3 60% + CURVE 40%",
		},
		{
			"multi-segment route",
			[][][]routeHop{{
				{{Name: "UNISWAP_V3", Part: 100}},
				{{Name: "CURVE", Part: 100}},
			}},
			"UNISWAP_V3 100% > CURVE 100%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := routeBreakdown(tt.protocols); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
