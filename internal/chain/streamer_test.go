package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeSubscription struct {
	errc chan error
}

func (s *fakeSubscription) Err() <-chan error { return s.errc }
func (s *fakeSubscription) Unsubscribe()      {}

type fakeSubClient struct {
	mu    sync.Mutex
	sinks []chan<- types.Log
	subs  []*fakeSubscription
}

func (c *fakeSubClient) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &fakeSubscription{errc: make(chan error, 1)}
	c.sinks = append(c.sinks, ch)
	c.subs = append(c.subs, sub)
	return sub, nil
}

func (c *fakeSubClient) push(lg types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks[len(c.sinks)-1] <- lg
}

func (c *fakeSubClient) queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sinks[len(c.sinks)-1])
}

func (c *fakeSubClient) dropCurrent(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[len(c.subs)-1].errc <- err
}

func (c *fakeSubClient) connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestStreamerWakesOnLogSkipsRemoved(t *testing.T) {
	client := &fakeSubClient{}
	st := NewStreamer(client, discardLogger(), nil, nil, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()

	waitFor(t, func() bool { return client.connections() == 1 }, "subscription")

	client.push(types.Log{BlockNumber: 10, Removed: true})
	waitFor(t, func() bool { return client.queued() == 0 }, "removed log consumed")
	select {
	case <-st.Wake():
		t.Fatalf("removed log should not wake the poll loop")
	case <-time.After(50 * time.Millisecond):
	}

	client.push(types.Log{BlockNumber: 11})
	select {
	case <-st.Wake():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected wake signal after live log")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}
}

func TestStreamerCoalescesWakes(t *testing.T) {
	client := &fakeSubClient{}
	st := NewStreamer(client, discardLogger(), nil, nil, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = st.Run(ctx) }()

	waitFor(t, func() bool { return client.connections() == 1 }, "subscription")

	for i := 0; i < 3; i++ {
		client.push(types.Log{BlockNumber: uint64(20 + i)})
	}
	waitFor(t, func() bool { return client.queued() == 0 }, "logs consumed")

	select {
	case <-st.Wake():
	default:
		t.Fatalf("expected one pending wake signal")
	}
	select {
	case <-st.Wake():
		t.Fatalf("wake signals should coalesce into one")
	default:
	}
}

func TestStreamerRefreshResubscribesWithoutDropNotice(t *testing.T) {
	client := &fakeSubClient{}
	var drops atomic.Int32
	onDrop := func(error) { drops.Add(1) }
	st := NewStreamer(client, discardLogger(), nil, nil, time.Minute, onDrop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = st.Run(ctx) }()

	waitFor(t, func() bool { return client.connections() == 1 }, "first subscription")
	st.Refresh()
	// the long drop delay proves the refresh path skips the backoff
	waitFor(t, func() bool { return client.connections() == 2 }, "refreshed subscription")

	if got := drops.Load(); got != 0 {
		t.Fatalf("refresh should not report a drop, got %d", got)
	}
}

func TestBackoffDoublesToCap(t *testing.T) {
	base := 5 * time.Second
	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		time.Minute,
		time.Minute,
	}
	for attempt, d := range want {
		if got := backoff(base, attempt); got != d {
			t.Errorf("backoff(%v, %d) = %v, want %v", base, attempt, got, d)
		}
	}
	if got := backoff(2*time.Minute, 3); got != 2*time.Minute {
		t.Errorf("base above the cap should pass through, got %v", got)
	}
}

func TestStreamerResubscribesAfterDrop(t *testing.T) {
	client := &fakeSubClient{}
	var mu sync.Mutex
	var drops []error
	onDrop := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		drops = append(drops, err)
	}
	st := NewStreamer(client, discardLogger(), nil, nil, 10*time.Millisecond, onDrop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()

	waitFor(t, func() bool { return client.connections() == 1 }, "first subscription")
	client.dropCurrent(errors.New("connection reset"))
	waitFor(t, func() bool { return client.connections() == 2 }, "resubscription")

	mu.Lock()
	nDrops := len(drops)
	mu.Unlock()
	if nDrops != 1 {
		t.Fatalf("onDrop called %d times, want 1", nDrops)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}
}
