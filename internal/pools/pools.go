// Package pools tracks Uniswap pools that trade the watched token.
package pools

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethspider/eth-spider/internal/events"
	"github.com/ethspider/eth-spider/internal/storage"
)

// Mainnet Uniswap factory deployments.
var (
	DefaultV2Factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	DefaultV3Factory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
)

const (
	VersionV2 = "v2"
	VersionV3 = "v3"
)

// SubstantialLiquidityTokens is the token-units floor above which a mint
// counts as meaningful initial liquidity rather than dust.
const SubstantialLiquidityTokens = 100_000

// Grade labels a liquidity amount, in token units.
func Grade(tokens float64) string {
	if tokens >= SubstantialLiquidityTokens {
		return "substantial"
	}
	return "minimal"
}

// Tracker keeps the set of known pools in memory, persisting through the
// store so restarts keep watching pools discovered earlier. The address
// set is read from other goroutines (the log streamer), hence the lock.
type Tracker struct {
	token     common.Address
	v2Factory common.Address
	v3Factory common.Address
	store     *storage.Store
	log       *slog.Logger

	mu    sync.RWMutex
	pools map[common.Address]storage.Pool
}

func NewTracker(store *storage.Store, log *slog.Logger, token, v2Factory, v3Factory common.Address) *Tracker {
	if v2Factory == (common.Address{}) {
		v2Factory = DefaultV2Factory
	}
	if v3Factory == (common.Address{}) {
		v3Factory = DefaultV3Factory
	}
	return &Tracker{
		token:     token,
		v2Factory: v2Factory,
		v3Factory: v3Factory,
		store:     store,
		log:       log,
		pools:     map[common.Address]storage.Pool{},
	}
}

// Load hydrates the in-memory set from the store.
func (t *Tracker) Load(ctx context.Context) error {
	stored, err := t.store.ListPools(ctx)
	if err != nil {
		return fmt.Errorf("load pools: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range stored {
		t.pools[common.HexToAddress(p.Address)] = p
	}
	return nil
}

func (t *Tracker) V2Factory() common.Address { return t.v2Factory }
func (t *Tracker) V3Factory() common.Address { return t.v3Factory }

// Has reports whether addr is a known pool.
func (t *Tracker) Has(addr common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pools[addr]
	return ok
}

// PoolState reports whether addr is a known pool and whether it has
// received liquidity yet. Feeds transfer classification.
func (t *Tracker) PoolState(addr common.Address) (hasLiquidity, known bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.pools[addr]
	return ok && p.HasLiquidity, ok
}

// Get returns a known pool.
func (t *Tracker) Get(addr common.Address) (storage.Pool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.pools[addr]
	return p, ok
}

// Count returns the number of known pools.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pools)
}

// Addresses returns the known pool addresses for log filtering.
func (t *Tracker) Addresses() []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]common.Address, 0, len(t.pools))
	for a := range t.pools {
		out = append(out, a)
	}
	return out
}

// HandlePairCreated records a V2 pair if it trades the token.
// The returned bool is false for pairs of other tokens and re-sightings.
func (t *Tracker) HandlePairCreated(ctx context.Context, ev *events.PairCreated) (storage.Pool, bool, error) {
	if ev.Token0 != t.token && ev.Token1 != t.token {
		return storage.Pool{}, false, nil
	}
	pool := storage.Pool{
		Address:    ev.Pair.Hex(),
		Token0:     ev.Token0.Hex(),
		Token1:     ev.Token1.Hex(),
		Version:    VersionV2,
		FirstBlock: ev.Raw.BlockNumber,
	}
	return t.add(ctx, ev.Pair, pool)
}

// HandlePoolCreated records a V3 pool if it trades the token.
func (t *Tracker) HandlePoolCreated(ctx context.Context, ev *events.PoolCreatedV3) (storage.Pool, bool, error) {
	if ev.Token0 != t.token && ev.Token1 != t.token {
		return storage.Pool{}, false, nil
	}
	pool := storage.Pool{
		Address:    ev.Pool.Hex(),
		Token0:     ev.Token0.Hex(),
		Token1:     ev.Token1.Hex(),
		Version:    VersionV3,
		Fee:        ev.Fee,
		FirstBlock: ev.Raw.BlockNumber,
	}
	return t.add(ctx, ev.Pool, pool)
}

func (t *Tracker) add(ctx context.Context, addr common.Address, pool storage.Pool) (storage.Pool, bool, error) {
	inserted, err := t.store.InsertPool(ctx, pool)
	if err != nil {
		return storage.Pool{}, false, err
	}

	t.mu.Lock()
	if _, known := t.pools[addr]; !known {
		t.pools[addr] = pool
	}
	t.mu.Unlock()

	if inserted {
		t.log.Info("pool discovered",
			"pool", pool.Address,
			"version", pool.Version,
			"token0", pool.Token0,
			"token1", pool.Token1)
	}
	return pool, inserted, nil
}

// MarkLiquidity flags a pool as funded. first is true only for the first
// mint ever seen on that pool; known is false for addresses we do not track.
func (t *Tracker) MarkLiquidity(ctx context.Context, addr common.Address) (first, known bool, err error) {
	if !t.Has(addr) {
		return false, false, nil
	}
	first, err = t.store.MarkPoolLiquidity(ctx, addr.Hex())
	if err != nil {
		return false, true, err
	}
	if first {
		t.setFlag(addr, func(p *storage.Pool) { p.HasLiquidity = true })
	}
	return first, true, nil
}

// MarkTraded flags a pool as traded; first is true only for the first swap.
func (t *Tracker) MarkTraded(ctx context.Context, addr common.Address) (first, known bool, err error) {
	if !t.Has(addr) {
		return false, false, nil
	}
	first, err = t.store.MarkPoolTraded(ctx, addr.Hex())
	if err != nil {
		return false, true, err
	}
	if first {
		t.setFlag(addr, func(p *storage.Pool) { p.HasTraded = true })
	}
	return first, true, nil
}

func (t *Tracker) setFlag(addr common.Address, mut func(*storage.Pool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pools[addr]; ok {
		mut(&p)
		t.pools[addr] = p
	}
}

// TokenAmount picks the watched-token side of a pool event's amount pair.
// Returns nil when the pool is unknown.
func (t *Tracker) TokenAmount(addr common.Address, amount0, amount1 *big.Int) *big.Int {
	p, ok := t.Get(addr)
	if !ok {
		return nil
	}
	if common.HexToAddress(p.Token0) == t.token {
		return amount0
	}
	if common.HexToAddress(p.Token1) == t.token {
		return amount1
	}
	return nil
}
