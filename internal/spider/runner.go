// Package spider drives the watch pipeline: scan confirmed blocks,
// decode the logs, track pools, classify transfers, and deliver reports.
package spider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/ethspider/eth-spider/internal/chain"
	"github.com/ethspider/eth-spider/internal/classify"
	"github.com/ethspider/eth-spider/internal/erc20"
	"github.com/ethspider/eth-spider/internal/events"
	"github.com/ethspider/eth-spider/internal/metrics"
	"github.com/ethspider/eth-spider/internal/notify"
	"github.com/ethspider/eth-spider/internal/pools"
	"github.com/ethspider/eth-spider/internal/storage"
)

// DetailClient fetches per-transaction detail for report enrichment.
// *chain.RPCClient satisfies it; nil disables enrichment.
type DetailClient interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Params collects the wiring for a Spider.
type Params struct {
	Store      *storage.Store
	Scanner    *chain.Scanner
	Details    DetailClient
	Token      notify.Token
	MinRaw     *big.Int
	Pools      *pools.Tracker
	Classifier *classify.Classifier
	Routes     []*notify.Route
	Metrics    *metrics.Metrics
	Log        *slog.Logger
	DryRun     bool
	DedupeTTL  time.Duration
	OnNewPool  func()
}

// Spider is the single-goroutine owner of one watch pass.
type Spider struct {
	store     *storage.Store
	scanner   *chain.Scanner
	details   DetailClient
	token     notify.Token
	tokenAddr common.Address
	minRaw    *big.Int
	pools     *pools.Tracker
	class     *classify.Classifier
	routes    []*notify.Route
	met       *metrics.Metrics
	log       *slog.Logger
	dryRun    bool
	dedupeTTL time.Duration
	onNewPool func()
	nowFunc   func() time.Time
}

func New(p Params) *Spider {
	if p.DedupeTTL <= 0 {
		p.DedupeTTL = 24 * time.Hour
	}
	return &Spider{
		store:     p.Store,
		scanner:   p.Scanner,
		details:   p.Details,
		token:     p.Token,
		tokenAddr: common.HexToAddress(p.Token.Address),
		minRaw:    p.MinRaw,
		pools:     p.Pools,
		class:     p.Classifier,
		routes:    p.Routes,
		met:       p.Metrics,
		log:       p.Log,
		dryRun:    p.DryRun,
		dedupeTTL: p.DedupeTTL,
		onNewPool: p.OnNewPool,
		nowFunc:   time.Now,
	}
}

// RunOnce scans the next eligible block range and works through its logs.
// Malformed entries are skipped individually; storage failures abort the
// pass and surface to the caller.
func (s *Spider) RunOnce(ctx context.Context) error {
	batch, err := s.scanner.ProcessNext(ctx)
	if err != nil {
		if errors.Is(err, chain.ErrReorgDetected) {
			s.log.Warn("reorg detected, cursor rewound one block")
			s.met.ReorgDetected()
			return nil
		}
		s.met.RPCError()
		return err
	}
	if batch == nil {
		return nil
	}

	s.met.BlocksScanned(batch.Blocks())
	s.met.SetCursorHeight(batch.To)
	s.met.SetChainHead(batch.Head)
	s.log.Debug("scanned range",
		"from", batch.From, "to", batch.To, "head", batch.Head, "logs", len(batch.Logs))

	for _, lg := range batch.Logs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.handleLog(ctx, lg); err != nil {
			return err
		}
	}
	return nil
}

// Notify sends a system notice to every sink, bypassing threshold and
// dedupe. Used for startup and stream-drop announcements.
func (s *Spider) Notify(ctx context.Context, title, detail string) {
	rep := notify.Report{Kind: "system", Title: title, Token: s.token, Detail: detail}
	if err := s.deliver(ctx, rep, false); err != nil {
		s.log.Error("record system notice", "error", err)
	}
}

func (s *Spider) handleLog(ctx context.Context, lg types.Log) error {
	if len(lg.Topics) == 0 {
		return nil
	}
	switch lg.Topics[0] {
	case events.TopicTransfer:
		if lg.Address != s.tokenAddr {
			return nil
		}
		return s.handleTransfer(ctx, lg)
	case events.TopicApproval:
		if lg.Address != s.tokenAddr {
			return nil
		}
		s.handleApproval(lg)
	case events.TopicPairCreated:
		if lg.Address != s.pools.V2Factory() {
			return nil
		}
		return s.handlePairCreated(ctx, lg)
	case events.TopicPoolCreatedV3:
		if lg.Address != s.pools.V3Factory() {
			return nil
		}
		return s.handlePoolCreated(ctx, lg)
	case events.TopicMintV2:
		if !s.pools.Has(lg.Address) {
			return nil
		}
		return s.handleMintV2(ctx, lg)
	case events.TopicMintV3:
		if !s.pools.Has(lg.Address) {
			return nil
		}
		return s.handleMintV3(ctx, lg)
	case events.TopicSwapV2:
		if !s.pools.Has(lg.Address) {
			return nil
		}
		return s.handleSwapV2(ctx, lg)
	case events.TopicSwapV3:
		if !s.pools.Has(lg.Address) {
			return nil
		}
		return s.handleSwapV3(ctx, lg)
	case events.TopicBurnV2:
		if !s.pools.Has(lg.Address) {
			return nil
		}
		return s.handleBurnV2(ctx, lg)
	case events.TopicSyncV2:
		if !s.pools.Has(lg.Address) {
			return nil
		}
		s.handleSyncV2(lg)
	}
	return nil
}

func (s *Spider) handleTransfer(ctx context.Context, lg types.Log) error {
	dec, err := events.DecodeTransfer(lg)
	if err != nil {
		s.skipMalformed("transfer", lg, err)
		return nil
	}
	kind := s.class.Classify(dec.From, dec.To)
	s.met.EventDecoded(string(kind))

	if s.minRaw != nil && s.minRaw.Sign() > 0 && dec.Value.Cmp(s.minRaw) < 0 {
		s.met.ReportDropped("below_threshold")
		return nil
	}

	amount, _ := erc20.Scale(dec.Value, uint8(s.token.Decimals)).Float64()
	tier := classify.TierFor(amount)
	rep := notify.Report{
		Kind:     string(kind),
		Title:    titleFor(kind, tier),
		Token:    s.token,
		Amount:   amount,
		RawValue: dec.Value.String(),
		From:     dec.From.Hex(),
		To:       dec.To.Hex(),
		Tier:     tier.Name,
		TxHash:   lg.TxHash.Hex(),
		Block:    lg.BlockNumber,
		LogIndex: lg.Index,
	}

	s.enrich(ctx, &rep)
	return s.deliver(ctx, rep, true)
}

func (s *Spider) handleApproval(lg types.Log) {
	dec, err := events.DecodeApproval(lg)
	if err != nil {
		s.skipMalformed("approval", lg, err)
		return
	}
	s.met.EventDecoded("approval")
	s.log.Debug("approval",
		"owner", dec.Owner.Hex(), "spender", dec.Spender.Hex(), "value", dec.Value.String())
}

func (s *Spider) handlePairCreated(ctx context.Context, lg types.Log) error {
	dec, err := events.DecodePairCreated(lg)
	if err != nil {
		s.skipMalformed("pair_created", lg, err)
		return nil
	}
	s.met.EventDecoded("pair_created")
	pool, isNew, err := s.pools.HandlePairCreated(ctx, dec)
	if err != nil {
		return err
	}
	if !isNew {
		return nil
	}
	return s.reportNewPool(ctx, pool, lg)
}

func (s *Spider) handlePoolCreated(ctx context.Context, lg types.Log) error {
	dec, err := events.DecodePoolCreatedV3(lg)
	if err != nil {
		s.skipMalformed("pool_created", lg, err)
		return nil
	}
	s.met.EventDecoded("pool_created")
	pool, isNew, err := s.pools.HandlePoolCreated(ctx, dec)
	if err != nil {
		return err
	}
	if !isNew {
		return nil
	}
	return s.reportNewPool(ctx, pool, lg)
}

func (s *Spider) reportNewPool(ctx context.Context, pool storage.Pool, lg types.Log) error {
	if s.onNewPool != nil {
		s.onNewPool()
	}
	paired := pool.Token0
	if strings.EqualFold(paired, s.token.Address) {
		paired = pool.Token1
	}
	rep := notify.Report{
		Kind:     "new_pool",
		Title:    "🆕 new pool",
		Token:    s.token,
		Pool:     pool.Address,
		TxHash:   lg.TxHash.Hex(),
		Block:    lg.BlockNumber,
		LogIndex: lg.Index,
		Detail:   fmt.Sprintf("uniswap %s, paired with %s", pool.Version, paired),
	}
	return s.deliver(ctx, rep, true)
}

func (s *Spider) handleMintV2(ctx context.Context, lg types.Log) error {
	dec, err := events.DecodeMintV2(lg)
	if err != nil {
		s.skipMalformed("mint_v2", lg, err)
		return nil
	}
	s.met.EventDecoded("mint_v2")
	return s.poolLiquidity(ctx, lg, dec.Amount0, dec.Amount1)
}

func (s *Spider) handleMintV3(ctx context.Context, lg types.Log) error {
	dec, err := events.DecodeMintV3(lg)
	if err != nil {
		s.skipMalformed("mint_v3", lg, err)
		return nil
	}
	s.met.EventDecoded("mint_v3")
	return s.poolLiquidity(ctx, lg, dec.Amount0, dec.Amount1)
}

func (s *Spider) handleSwapV2(ctx context.Context, lg types.Log) error {
	dec, err := events.DecodeSwapV2(lg)
	if err != nil {
		s.skipMalformed("swap_v2", lg, err)
		return nil
	}
	s.met.EventDecoded("swap_v2")
	amount0 := new(big.Int).Add(dec.Amount0In, dec.Amount0Out)
	amount1 := new(big.Int).Add(dec.Amount1In, dec.Amount1Out)
	return s.poolTraded(ctx, lg, amount0, amount1)
}

func (s *Spider) handleSwapV3(ctx context.Context, lg types.Log) error {
	dec, err := events.DecodeSwapV3(lg)
	if err != nil {
		s.skipMalformed("swap_v3", lg, err)
		return nil
	}
	s.met.EventDecoded("swap_v3")
	amount0 := new(big.Int).Abs(dec.Amount0)
	amount1 := new(big.Int).Abs(dec.Amount1)
	return s.poolTraded(ctx, lg, amount0, amount1)
}

// handleBurnV2 reports liquidity leaving a tracked pool.
func (s *Spider) handleBurnV2(ctx context.Context, lg types.Log) error {
	dec, err := events.DecodeBurnV2(lg)
	if err != nil {
		s.skipMalformed("burn_v2", lg, err)
		return nil
	}
	s.met.EventDecoded("burn_v2")
	raw := s.pools.TokenAmount(lg.Address, dec.Amount0, dec.Amount1)
	if raw == nil {
		return nil
	}
	amount, _ := erc20.Scale(raw, uint8(s.token.Decimals)).Float64()

	rep := notify.Report{
		Kind:     "liquidity_removed",
		Title:    "🔥 liquidity removed",
		Token:    s.token,
		Amount:   amount,
		RawValue: raw.String(),
		Pool:     lg.Address.Hex(),
		TxHash:   lg.TxHash.Hex(),
		Block:    lg.BlockNumber,
		LogIndex: lg.Index,
		Detail:   "liquidity decreased, possible price impact",
	}
	return s.deliver(ctx, rep, true)
}

func (s *Spider) handleSyncV2(lg types.Log) {
	dec, err := events.DecodeSyncV2(lg)
	if err != nil {
		s.skipMalformed("sync", lg, err)
		return
	}
	s.met.EventDecoded("sync")
	s.log.Debug("reserves updated",
		"pool", lg.Address.Hex(), "reserve0", dec.Reserve0.String(), "reserve1", dec.Reserve1.String())
}

// poolLiquidity reports the first mint into a pool; later mints only log.
func (s *Spider) poolLiquidity(ctx context.Context, lg types.Log, amount0, amount1 *big.Int) error {
	raw := s.pools.TokenAmount(lg.Address, amount0, amount1)
	if raw == nil {
		return nil
	}
	first, known, err := s.pools.MarkLiquidity(ctx, lg.Address)
	if err != nil {
		return err
	}
	amount, _ := erc20.Scale(raw, uint8(s.token.Decimals)).Float64()
	if !known || !first {
		s.log.Debug("liquidity added", "pool", lg.Address.Hex(), "amount", amount)
		return nil
	}

	rep := notify.Report{
		Kind:     "first_mint",
		Title:    "💧 first liquidity",
		Token:    s.token,
		Amount:   amount,
		RawValue: raw.String(),
		Pool:     lg.Address.Hex(),
		TxHash:   lg.TxHash.Hex(),
		Block:    lg.BlockNumber,
		LogIndex: lg.Index,
		Detail:   pools.Grade(amount) + " liquidity",
	}
	return s.deliver(ctx, rep, true)
}

// poolTraded reports the first swap through a pool; later swaps only log.
func (s *Spider) poolTraded(ctx context.Context, lg types.Log, amount0, amount1 *big.Int) error {
	raw := s.pools.TokenAmount(lg.Address, amount0, amount1)
	if raw == nil {
		return nil
	}
	first, known, err := s.pools.MarkTraded(ctx, lg.Address)
	if err != nil {
		return err
	}
	amount, _ := erc20.Scale(raw, uint8(s.token.Decimals)).Float64()
	if !known || !first {
		s.log.Debug("pool trade", "pool", lg.Address.Hex(), "amount", amount)
		return nil
	}

	rep := notify.Report{
		Kind:     "first_swap",
		Title:    "🚀 first trade",
		Token:    s.token,
		Amount:   amount,
		RawValue: raw.String(),
		Pool:     lg.Address.Hex(),
		TxHash:   lg.TxHash.Hex(),
		Block:    lg.BlockNumber,
		LogIndex: lg.Index,
	}
	return s.deliver(ctx, rep, true)
}

// enrich attaches the block timestamp and gas price when a detail client
// is wired. Best-effort: failures downgrade to a bare report.
func (s *Spider) enrich(ctx context.Context, rep *notify.Report) {
	if s.details == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	header, err := s.details.HeaderByNumber(ctx, new(big.Int).SetUint64(rep.Block))
	if err != nil {
		s.log.Debug("enrich header", "error", err)
	} else {
		rep.Time = time.Unix(int64(header.Time), 0).UTC()
	}

	tx, _, err := s.details.TransactionByHash(ctx, common.HexToHash(rep.TxHash))
	if err != nil {
		s.log.Debug("enrich transaction", "error", err)
	} else if tx != nil && tx.GasPrice() != nil {
		gwei, _ := new(big.Float).Quo(
			new(big.Float).SetInt(tx.GasPrice()), big.NewFloat(1e9)).Float64()
		rep.GasGwei = gwei
	}
}

// deliver fans a report out to every route and records one delivery row
// per sink. Deduped reports are checked against the store first, so a
// reorg rescan cannot re-send an event that already went out; the key is
// marked only when at least one sink took the report, so a fully failed
// fan-out can be retried on the next occurrence. Dry-run logs the report
// and touches nothing.
func (s *Spider) deliver(ctx context.Context, rep notify.Report, dedupe bool) error {
	if s.dryRun {
		s.log.Info("dry run, report suppressed",
			"kind", rep.Kind, "event", rep.EventKey(), "amount", rep.Amount)
		return nil
	}

	now := s.nowFunc()
	if dedupe {
		dup, err := s.store.IsDuplicate(ctx, rep.EventKey(), now)
		if err != nil {
			return fmt.Errorf("dedupe check: %w", err)
		}
		if dup {
			s.met.ReportDropped("duplicate")
			return nil
		}
	}
	recs := make([]storage.Delivery, 0, len(s.routes))
	sent := 0
	for _, rt := range s.routes {
		status, detail := "sent", ""
		if !rt.Allow(now) {
			status = "rate_limited"
			s.met.ReportDropped("rate_limited")
			s.log.Debug("sink rate limited", "sink", rt.ID, "event", rep.EventKey())
		} else if err := rt.Sender.Send(ctx, rep); err != nil {
			status, detail = "failed", err.Error()
			s.met.ReportDropped("send_failed")
			s.log.Warn("sink send failed", "sink", rt.ID, "error", err)
		} else {
			sent++
			s.met.ReportSent(rt.ID)
		}
		recs = append(recs, storage.Delivery{
			ID:       uuid.NewString(),
			EventKey: rep.EventKey(),
			Kind:     rep.Kind,
			SinkID:   rt.ID,
			Status:   status,
			Detail:   detail,
		})
	}

	key := ""
	if dedupe && sent > 0 {
		key = rep.EventKey()
	}
	if err := s.store.RecordReport(ctx, recs, key, now.Add(s.dedupeTTL)); err != nil {
		return fmt.Errorf("record report: %w", err)
	}
	return nil
}

func (s *Spider) skipMalformed(event string, lg types.Log, err error) {
	s.log.Warn("skipping malformed log entry",
		"event", event, "tx", lg.TxHash.Hex(), "index", lg.Index, "error", err)
	s.met.DecodeError()
}

// titleFor frames a transfer report. Pool counterparties get the pool
// framing; everything else leads with the holder tier.
func titleFor(kind classify.Kind, tier classify.Tier) string {
	switch kind {
	case classify.KindPoolActivity:
		return "🏊 pool activity"
	case classify.KindPoolSetup:
		return "🏖️ pool setup"
	default:
		return fmt.Sprintf("%s %s %s", tier.Emoji, tier.Name, verbFor(kind))
	}
}

func verbFor(kind classify.Kind) string {
	switch kind {
	case classify.KindDexBuy:
		return "bought"
	case classify.KindDexSell:
		return "sold"
	case classify.KindCexDeposit:
		return "moved to exchange"
	case classify.KindCexWithdrawal:
		return "withdrew from exchange"
	case classify.KindTokenMint:
		return "minted"
	case classify.KindTokenBurn:
		return "burned"
	default:
		return "transferred"
	}
}
