// Package nodecaller provides the rate-limited call executor all quoters
// share. It funnels every read call to the blockchain node through one token
// bucket, retries rate-limited calls with exponential backoff, and exposes a
// revert-payload helper for protocols that return data through reverts.
package nodecaller

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/zook8/DEX-quotes/internal/apperror"
	"github.com/zook8/DEX-quotes/internal/circuitbreaker"
	"github.com/zook8/DEX-quotes/internal/logger"
	"github.com/zook8/DEX-quotes/internal/ratelimit"
)

const meterName = "nodecaller"

// ContractCaller is the slice of Caller the quoters depend on. Tests inject
// fakes through it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Config holds throttling and retry policy for node calls.
type Config struct {
	CallsPerSecond int
	CallTimeout    time.Duration
	RetryCeiling   int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig is a conservative policy for shared public endpoints.
func DefaultConfig() Config {
	return Config{
		CallsPerSecond: 5,
		CallTimeout:    8 * time.Second,
		RetryCeiling:   5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     16 * time.Second,
	}
}

type callerMetrics struct {
	callsTotal   metric.Int64Counter
	retriesTotal metric.Int64Counter
	callLatency  metric.Float64Histogram
}

type callFunc func(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)

// Caller is the shared rate-limited executor. Its token bucket is the only
// cross-call mutable state in the engine.
type Caller struct {
	client  *ethclient.Client
	call    callFunc
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[[]byte]
	cfg     Config
	log     logger.LoggerInterface
	metrics *callerMetrics
}

// New creates a Caller around an ethclient.
func New(client *ethclient.Client, cfg Config, log logger.LoggerInterface) (*Caller, error) {
	if cfg.CallsPerSecond <= 0 {
		cfg.CallsPerSecond = DefaultConfig().CallsPerSecond
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}

	c := &Caller{
		client:  client,
		limiter: ratelimit.NewWithBurst(float64(cfg.CallsPerSecond), cfg.CallsPerSecond),
		cb:      circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("node-rpc")),
		cfg:     cfg,
		log:     log,
	}
	c.call = func(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
		return client.CallContract(ctx, msg, nil)
	}
	if err := c.initMetrics(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Caller) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &callerMetrics{}

	c.metrics.callsTotal, err = meter.Int64Counter(
		"node_calls_total",
		metric.WithDescription("Total node read calls dispatched"),
	)
	if err != nil {
		return err
	}

	c.metrics.retriesTotal, err = meter.Int64Counter(
		"node_call_retries_total",
		metric.WithDescription("Total rate-limit retries"),
	)
	if err != nil {
		return err
	}

	c.metrics.callLatency, err = meter.Float64Histogram(
		"node_call_latency_ms",
		metric.WithDescription("Node call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// CallContract executes a read-only contract call under the rate limit.
// Rate-limit signals from the node are retried with exponential backoff up
// to the retry ceiling; every other error propagates immediately, including
// reverts (the raw error is preserved so callers can decode revert payloads).
func (c *Caller) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	backoff := c.cfg.InitialBackoff

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		out, err := c.dispatch(ctx, msg)
		c.metrics.callsTotal.Add(ctx, 1)
		c.metrics.callLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

		if err == nil {
			return out, nil
		}
		if !IsRateLimited(err) {
			return nil, err
		}
		if attempt >= c.cfg.RetryCeiling {
			return nil, apperror.New(apperror.CodeRetryCeilingExceeded,
				apperror.WithCause(err),
				apperror.WithContext("node kept rate-limiting after retries"))
		}

		c.metrics.retriesTotal.Add(ctx, 1)
		c.log.Warn(ctx, "node rate limited, backing off",
			"attempt", attempt+1,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

func (c *Caller) dispatch(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	// Reverts are successful round-trips: some protocols return data only
	// through reverts, and those must not trip the breaker.
	var revertErr error
	out, err := c.cb.Execute(func() ([]byte, error) {
		out, callErr := c.call(callCtx, msg)
		if callErr != nil && isRevert(callErr) {
			revertErr = callErr
			return out, nil
		}
		return out, callErr
	})
	if revertErr != nil {
		return nil, revertErr
	}
	return out, err
}

func isRevert(err error) bool {
	if _, ok := RevertData(err); ok {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// Client exposes the underlying ethclient for operations that do not go
// through CallContract (health checks).
func (c *Caller) Client() *ethclient.Client {
	return c.client
}

// IsRateLimited reports whether err is a rate-limit signal from the node.
// Matches explicit HTTP 429 markers and the JSON-RPC limit codes common
// across hosted providers.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	type rpcError interface{ ErrorCode() int }
	if rpcErr, ok := err.(rpcError); ok {
		// -32005: infura/many providers, -32029: alchemy
		if code := rpcErr.ErrorCode(); code == -32005 || code == -32029 || code == 429 {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "request limit")
}

// RevertData extracts the raw revert payload from a failed call, for
// protocols that intentionally revert to return data. Returns false when the
// error carries no payload.
func RevertData(err error) ([]byte, bool) {
	if err == nil {
		return nil, false
	}

	type dataError interface{ ErrorData() interface{} }
	dataErr, ok := err.(dataError)
	if !ok {
		return nil, false
	}

	hexStr, ok := dataErr.ErrorData().(string)
	if !ok {
		return nil, false
	}
	hexStr = strings.TrimPrefix(hexStr, "0x")
	data, decodeErr := hex.DecodeString(hexStr)
	if decodeErr != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}
