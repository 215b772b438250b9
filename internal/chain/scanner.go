package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethspider/eth-spider/internal/storage"
)

// ScannerConfig wires a Scanner. Addresses is a callback so the filter
// set can grow while running (newly discovered pools join immediately).
type ScannerConfig struct {
	SourceID      string
	StartBlock    string
	BatchSize     uint64
	Confirmations uint64
	// StopBlock, when nonzero, caps scanning at that height (inclusive)
	// so a bounded replay never reports past its target.
	StopBlock uint64
	Addresses func() []common.Address
	Topics    []common.Hash
}

// Scanner walks the chain in confirmed batches, advancing a persisted cursor.
type Scanner struct {
	client NodeClient
	store  *storage.Store
	cfg    ScannerConfig
}

// hashRetention bounds the observed block-hash history kept for reorg
// walkback. Deeper reorgs than this rescan from the oldest retained record.
const hashRetention = 128

func NewScanner(client NodeClient, store *storage.Store, cfg ScannerConfig) *Scanner {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1
	}
	if cfg.Addresses == nil {
		cfg.Addresses = func() []common.Address { return nil }
	}
	return &Scanner{client: client, store: store, cfg: cfg}
}

// ProcessNext scans the next eligible block range (respecting confirmations)
// and returns its logs ordered by block number, then log index. It advances
// the cursor on success and returns nil when the chain has nothing new.
// If a reorg is detected, ErrReorgDetected is returned after rewinding the
// cursor one block, adopting the hash observed at the lower height; repeated
// cycles walk back until the observed hash matches the canonical parent (the
// fork point), after which the replaced blocks are rescanned.
func (s *Scanner) ProcessNext(ctx context.Context) (*Batch, error) {
	curHeight, curHash, hasCursor, err := s.store.GetCursor(ctx, s.cfg.SourceID)
	if err != nil {
		return nil, err
	}

	latest, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	latestHeight := latest.Number.Uint64()

	safeHeight := latestHeight
	if s.cfg.Confirmations > 0 {
		if s.cfg.Confirmations > safeHeight {
			return nil, nil
		}
		safeHeight -= s.cfg.Confirmations
	}
	if s.cfg.StopBlock > 0 && safeHeight > s.cfg.StopBlock {
		safeHeight = s.cfg.StopBlock
	}

	from := curHeight + 1
	if !hasCursor {
		start, err := resolveStartHeight(s.cfg.StartBlock, safeHeight)
		if err != nil {
			return nil, err
		}
		from = start
	}
	if from > safeHeight {
		return nil, nil
	}

	to := from + s.cfg.BatchSize - 1
	if to > safeHeight {
		to = safeHeight
	}

	fromHeader, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(from))
	if err != nil {
		return nil, fmt.Errorf("header %d: %w", from, err)
	}

	// An empty cursor hash means the height below is unverifiable (walkback
	// ran out of observed history); accept it and rescan forward from there.
	if hasCursor && curHash != "" && fromHeader.ParentHash.Hex() != curHash {
		rewindTo := uint64(0)
		prevHash := ""
		if curHeight > 0 {
			rewindTo = curHeight - 1
			prevHash, _, err = s.store.GetBlockHash(ctx, s.cfg.SourceID, rewindTo)
			if err != nil {
				return nil, err
			}
		}
		if err := s.store.DeleteBlockHashesAbove(ctx, s.cfg.SourceID, rewindTo); err != nil {
			return nil, err
		}
		if err := s.store.UpsertCursor(ctx, s.cfg.SourceID, rewindTo, prevHash); err != nil {
			return nil, err
		}
		return nil, ErrReorgDetected
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: s.cfg.Addresses(),
	}
	if len(s.cfg.Topics) > 0 {
		query.Topics = [][]common.Hash{s.cfg.Topics}
	}

	logs, err := s.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	toHeader := fromHeader
	if to != from {
		toHeader, err = s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(to))
		if err != nil {
			return nil, fmt.Errorf("header %d: %w", to, err)
		}
	}

	// Only the range boundaries are recorded: a fork strictly inside a
	// wide batch bottoms the walkback out one step below the batch and
	// rescans unverified from there.
	hash := toHeader.Hash().Hex()
	if err := s.store.UpsertBlockHash(ctx, s.cfg.SourceID, from, fromHeader.Hash().Hex()); err != nil {
		return nil, err
	}
	if to != from {
		if err := s.store.UpsertBlockHash(ctx, s.cfg.SourceID, to, hash); err != nil {
			return nil, err
		}
	}
	if safeHeight > hashRetention {
		if err := s.store.PruneBlockHashes(ctx, s.cfg.SourceID, safeHeight-hashRetention); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpsertCursor(ctx, s.cfg.SourceID, to, hash); err != nil {
		return nil, err
	}

	return &Batch{From: from, To: to, Head: latestHeight, Hash: hash, Logs: logs}, nil
}

// resolveStartHeight maps the start_block config value onto a height.
// Empty and "latest" start at the safe head; "latest-N" backfills N blocks.
func resolveStartHeight(start string, safeHeight uint64) (uint64, error) {
	if start == "" || start == "latest" {
		return safeHeight, nil
	}
	if strings.HasPrefix(start, "latest-") {
		offsetStr := strings.TrimPrefix(start, "latest-")
		n, err := strconv.ParseUint(offsetStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse start_block %q: %w", start, err)
		}
		if n > safeHeight {
			return 0, nil
		}
		return safeHeight - n, nil
	}

	n, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse start_block %q: %w", start, err)
	}
	return n, nil
}
