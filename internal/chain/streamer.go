package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var errFilterChanged = errors.New("filter set changed")

// Streamer holds a websocket log subscription open and nudges the poll
// loop when matching activity lands, so confirmed batches get picked up
// without waiting for the next tick. Subscription payloads are treated as
// hints only: the scanner stays the single writer of cursor state, which
// keeps ordering and reorg handling in one code path.
type Streamer struct {
	client    SubscribeClient
	addresses func() []common.Address
	topics    []common.Hash
	delay     time.Duration
	log       *slog.Logger
	onDrop    func(err error)
	wake      chan struct{}
	bounce    chan struct{}
}

func NewStreamer(client SubscribeClient, log *slog.Logger, addresses func() []common.Address, topics []common.Hash, delay time.Duration, onDrop func(error)) *Streamer {
	if addresses == nil {
		addresses = func() []common.Address { return nil }
	}
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Streamer{
		client:    client,
		addresses: addresses,
		topics:    topics,
		delay:     delay,
		log:       log,
		onDrop:    onDrop,
		wake:      make(chan struct{}, 1),
		bounce:    make(chan struct{}, 1),
	}
}

// Wake signals when subscribed activity arrives. The channel carries at
// most one pending signal; coalescing is fine because a single scan pass
// drains everything up to the safe head anyway.
func (st *Streamer) Wake() <-chan struct{} {
	return st.wake
}

// Refresh tears down the current subscription so the next one picks up
// the latest address set. Called when a new pool joins the filter.
func (st *Streamer) Refresh() {
	select {
	case st.bounce <- struct{}{}:
	default:
	}
}

// maxResubscribeDelay caps the reconnect backoff so a long outage keeps
// probing at a steady rate.
const maxResubscribeDelay = time.Minute

// Run keeps the subscription alive until ctx is cancelled, resubscribing
// whenever the connection drops. The reconnect delay doubles per
// consecutive failure up to a cap and resets once a subscription is
// established. A Refresh resubscribes immediately.
func (st *Streamer) Run(ctx context.Context) error {
	attempt := 0
	for {
		established, err := st.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			attempt = 0
		}
		if errors.Is(err, errFilterChanged) {
			st.log.Info("resubscribing with updated filter set")
			continue
		}
		wait := backoff(st.delay, attempt)
		attempt++
		st.log.Warn("log subscription dropped", "error", err, "retry_in", wait)
		if st.onDrop != nil {
			st.onDrop(err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base >= maxResubscribeDelay {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxResubscribeDelay {
			return maxResubscribeDelay
		}
	}
	return d
}

func (st *Streamer) stream(ctx context.Context) (established bool, err error) {
	query := ethereum.FilterQuery{Addresses: st.addresses()}
	if len(st.topics) > 0 {
		query.Topics = [][]common.Hash{st.topics}
	}

	ch := make(chan types.Log, 128)
	sub, err := st.client.SubscribeFilterLogs(ctx, query, ch)
	if err != nil {
		return false, fmt.Errorf("subscribe logs: %w", err)
	}
	defer sub.Unsubscribe()
	st.log.Info("log subscription established", "addresses", len(st.addresses()))

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-st.bounce:
			return true, errFilterChanged
		case err := <-sub.Err():
			return true, fmt.Errorf("subscription: %w", err)
		case lg := <-ch:
			// Removed marks a log undone by a reorg; the confirmed
			// scan never saw it, so there is nothing to retract.
			if lg.Removed {
				continue
			}
			select {
			case st.wake <- struct{}{}:
			default:
			}
		}
	}
}
