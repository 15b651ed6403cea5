// Package registry supplies the pool lists the engine quotes against. The
// engine consumes pool descriptors, it never discovers pools itself; this
// implementation reads a curated YAML file and resolves token symbols
// against the asset registry.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/zook8/DEX-quotes/business/quoting/app"
	"github.com/zook8/DEX-quotes/business/quoting/domain"
	"github.com/zook8/DEX-quotes/internal/apperror"
	"github.com/zook8/DEX-quotes/internal/asset"
	"github.com/zook8/DEX-quotes/internal/logger"
)

var _ app.PoolRegistry = (*StaticRegistry)(nil)

// poolEntry is one pool record in the registry file.
type poolEntry struct {
	Address      string  `mapstructure:"address"`
	Protocol     string  `mapstructure:"protocol"`
	FeeTier      int     `mapstructure:"fee_tier"`
	Label        string  `mapstructure:"label"`
	LiquidityUSD float64 `mapstructure:"liquidity_usd"`
	Volume24hUSD float64 `mapstructure:"volume_24h_usd"`
}

// registryFile is the on-disk shape: pools grouped by pair id.
type registryFile struct {
	ChainID uint64                 `mapstructure:"chain_id"`
	Pairs   map[string][]poolEntry `mapstructure:"pairs"`
}

// StaticRegistry serves pool snapshots loaded from a curated YAML file.
type StaticRegistry struct {
	assets *asset.Registry
	log    logger.LoggerInterface

	mu    sync.RWMutex
	pools map[string][]domain.PoolInfo
}

// NewStaticRegistry loads the registry file at path. Pair ids are
// case-insensitive "BASE-QUOTE" symbol pairs.
func NewStaticRegistry(path string, assets *asset.Registry, log logger.LoggerInterface) (*StaticRegistry, error) {
	r := &StaticRegistry{
		assets: assets,
		log:    log,
		pools:  make(map[string][]domain.PoolInfo),
	}
	if err := r.Reload(path); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the registry file, replacing the pool set atomically.
func (r *StaticRegistry) Reload(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return apperror.New(apperror.CodeRegistryUnavailable,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("failed to read pool registry %s", path)))
	}

	var file registryFile
	if err := v.Unmarshal(&file); err != nil {
		return apperror.New(apperror.CodeRegistryUnavailable,
			apperror.WithCause(err),
			apperror.WithContext("failed to decode pool registry"))
	}
	if file.ChainID == 0 {
		file.ChainID = asset.ChainIDEthereum
	}

	pools := make(map[string][]domain.PoolInfo, len(file.Pairs))
	for pairID, entries := range file.Pairs {
		pair, err := r.resolvePair(pairID, file.ChainID)
		if err != nil {
			return err
		}
		list := make([]domain.PoolInfo, 0, len(entries))
		for _, e := range entries {
			info, err := buildPool(e, file.ChainID, pair)
			if err != nil {
				return apperror.New(apperror.CodeRegistryUnavailable,
					apperror.WithCause(err),
					apperror.WithContext(fmt.Sprintf("invalid pool entry for %s", pairID)))
			}
			list = append(list, info)
		}
		pools[normalizePairID(pairID)] = list
	}

	r.mu.Lock()
	r.pools = pools
	r.mu.Unlock()
	return nil
}

// GetPoolsForPair implements app.PoolRegistry. The returned slice is a
// snapshot; callers may not mutate it.
func (r *StaticRegistry) GetPoolsForPair(ctx context.Context, pairID string) ([]domain.PoolInfo, error) {
	r.mu.RLock()
	list, ok := r.pools[normalizePairID(pairID)]
	r.mu.RUnlock()
	if !ok {
		return nil, apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext(fmt.Sprintf("no pools registered for pair %s", pairID)))
	}
	r.log.Debug(ctx, "registry snapshot served", "pair", pairID, "pools", len(list))
	return list, nil
}

// Pairs lists the registered pair ids.
func (r *StaticRegistry) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pools))
	for id := range r.pools {
		out = append(out, id)
	}
	return out
}

func (r *StaticRegistry) resolvePair(pairID string, chainID uint64) (domain.Pair, error) {
	base, quote, ok := splitPairID(pairID)
	if !ok {
		return domain.Pair{}, apperror.New(apperror.CodeRegistryUnavailable,
			apperror.WithContext(fmt.Sprintf("malformed pair id %q", pairID)))
	}
	baseAsset, ok := r.lookupSymbol(base, chainID)
	if !ok {
		return domain.Pair{}, apperror.New(apperror.CodeRegistryUnavailable,
			apperror.WithContext(fmt.Sprintf("unknown token symbol %q", base)))
	}
	quoteAsset, ok := r.lookupSymbol(quote, chainID)
	if !ok {
		return domain.Pair{}, apperror.New(apperror.CodeRegistryUnavailable,
			apperror.WithContext(fmt.Sprintf("unknown token symbol %q", quote)))
	}
	return domain.NewPair(baseAsset, quoteAsset), nil
}

// lookupSymbol resolves a token symbol, tolerating casing differences
// between the registry file and the asset catalog (e.g. "USDE" vs "USDe").
func (r *StaticRegistry) lookupSymbol(symbol string, chainID uint64) (*asset.Asset, bool) {
	if a, ok := r.assets.GetBySymbolAndChain(symbol, chainID); ok {
		return a, true
	}
	for _, a := range r.assets.All() {
		if a.ChainID() == chainID && strings.EqualFold(a.Symbol(), symbol) {
			return a, true
		}
	}
	return nil, false
}

func buildPool(e poolEntry, chainID uint64, pair domain.Pair) (domain.PoolInfo, error) {
	protocol := domain.Protocol(e.Protocol)
	info, err := domain.NewPoolInfo(common.HexToAddress(e.Address), protocol, chainID, pair, e.FeeTier)
	if err != nil {
		return domain.PoolInfo{}, err
	}
	info.Label = e.Label
	info.LiquidityUSD = decimal.NewFromFloat(e.LiquidityUSD)
	info.Volume24hUSD = decimal.NewFromFloat(e.Volume24hUSD)
	return info, nil
}

func splitPairID(pairID string) (string, string, bool) {
	parts := strings.Split(pairID, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func normalizePairID(pairID string) string {
	return strings.ToUpper(strings.TrimSpace(pairID))
}
