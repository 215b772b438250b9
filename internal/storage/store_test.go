package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCursorUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertCursor(ctx, "src1", 10, "hashA"); err != nil {
		t.Fatalf("upsert cursor: %v", err)
	}
	h, hash, ok, err := store.GetCursor(ctx, "src1")
	if err != nil || !ok {
		t.Fatalf("get cursor failed err=%v ok=%v", err, ok)
	}
	if h != 10 || hash != "hashA" {
		t.Fatalf("unexpected cursor: %d %s", h, hash)
	}

	if err := store.UpsertCursor(ctx, "src1", 20, "hashB"); err != nil {
		t.Fatalf("upsert cursor update: %v", err)
	}
	h, hash, ok, err = store.GetCursor(ctx, "src1")
	if err != nil || !ok || h != 20 || hash != "hashB" {
		t.Fatalf("cursor not updated: %d %s err=%v ok=%v", h, hash, err, ok)
	}

	cursors, err := store.ListCursors(ctx)
	if err != nil {
		t.Fatalf("list cursors: %v", err)
	}
	if len(cursors) != 1 || cursors[0].SourceID != "src1" || cursors[0].Height != 20 {
		t.Fatalf("unexpected cursors: %+v", cursors)
	}
}

func TestBlockHashHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for h, hash := range map[uint64]string{5: "h5", 6: "h6", 7: "h7", 8: "h8"} {
		if err := store.UpsertBlockHash(ctx, "src1", h, hash); err != nil {
			t.Fatalf("upsert block hash: %v", err)
		}
	}

	hash, ok, err := store.GetBlockHash(ctx, "src1", 6)
	if err != nil || !ok || hash != "h6" {
		t.Fatalf("get block hash: %q ok=%v err=%v", hash, ok, err)
	}
	if _, ok, _ := store.GetBlockHash(ctx, "src1", 99); ok {
		t.Fatalf("unrecorded height should not resolve")
	}
	if _, ok, _ := store.GetBlockHash(ctx, "other", 6); ok {
		t.Fatalf("histories must not leak across sources")
	}

	// re-upsert replaces the recorded hash
	if err := store.UpsertBlockHash(ctx, "src1", 6, "h6b"); err != nil {
		t.Fatalf("re-upsert block hash: %v", err)
	}
	if hash, _, _ := store.GetBlockHash(ctx, "src1", 6); hash != "h6b" {
		t.Fatalf("hash not replaced: %q", hash)
	}

	if err := store.DeleteBlockHashesAbove(ctx, "src1", 7); err != nil {
		t.Fatalf("delete above: %v", err)
	}
	if _, ok, _ := store.GetBlockHash(ctx, "src1", 8); ok {
		t.Fatalf("height 8 should be gone")
	}
	if _, ok, _ := store.GetBlockHash(ctx, "src1", 7); !ok {
		t.Fatalf("height 7 should survive delete-above")
	}

	if err := store.PruneBlockHashes(ctx, "src1", 6); err != nil {
		t.Fatalf("prune below: %v", err)
	}
	if _, ok, _ := store.GetBlockHash(ctx, "src1", 5); ok {
		t.Fatalf("height 5 should be pruned")
	}
	if _, ok, _ := store.GetBlockHash(ctx, "src1", 6); !ok {
		t.Fatalf("height 6 should survive pruning")
	}
}

func TestDedupeTTL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.MarkDedupe(ctx, "k1", now.Add(1*time.Second)); err != nil {
		t.Fatalf("mark dedupe: %v", err)
	}
	dup, err := store.IsDuplicate(ctx, "k1", now)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if !dup {
		t.Fatalf("expected duplicate before expiry")
	}

	later := now.Add(2 * time.Second)
	dup, err = store.IsDuplicate(ctx, "k1", later)
	if err != nil {
		t.Fatalf("is duplicate later: %v", err)
	}
	if dup {
		t.Fatalf("expected non-duplicate after expiry")
	}
}

func TestPoolLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pool := Pool{
		Address:    "0xpool",
		Token0:     "0xtoken",
		Token1:     "0xweth",
		Version:    "v2",
		FirstBlock: 100,
		CreatedAt:  time.Now(),
	}

	inserted, err := store.InsertPool(ctx, pool)
	if err != nil {
		t.Fatalf("insert pool: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to report true")
	}
	inserted, err = store.InsertPool(ctx, pool)
	if err != nil {
		t.Fatalf("reinsert pool: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate insert to report false")
	}

	first, err := store.MarkPoolLiquidity(ctx, "0xpool")
	if err != nil {
		t.Fatalf("mark liquidity: %v", err)
	}
	if !first {
		t.Fatalf("expected first mint to report true")
	}
	first, err = store.MarkPoolLiquidity(ctx, "0xpool")
	if err != nil {
		t.Fatalf("mark liquidity again: %v", err)
	}
	if first {
		t.Fatalf("expected second mint to report false")
	}

	got, ok, err := store.GetPool(ctx, "0xpool")
	if err != nil || !ok {
		t.Fatalf("get pool failed err=%v ok=%v", err, ok)
	}
	if !got.HasLiquidity || got.HasTraded {
		t.Fatalf("unexpected pool flags: %+v", got)
	}

	if _, err := store.MarkPoolTraded(ctx, "0xpool"); err != nil {
		t.Fatalf("mark traded: %v", err)
	}
	pools, err := store.ListPools(ctx)
	if err != nil {
		t.Fatalf("list pools: %v", err)
	}
	if len(pools) != 1 || !pools[0].HasTraded {
		t.Fatalf("unexpected pools: %+v", pools)
	}
}

func TestExactlyOnceDelivery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := Delivery{
		ID:        "d1",
		EventKey:  "0xabc:3",
		Kind:      "transfer",
		SinkID:    "tg",
		Status:    "sent",
		CreatedAt: time.Now(),
	}

	if err := store.InsertDelivery(ctx, d); err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	if err := store.InsertDelivery(ctx, d); err == nil {
		t.Fatalf("expected duplicate delivery insert to fail")
	}
}

func TestRecordReportMarksDedupe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	recs := []Delivery{
		{ID: "d1", EventKey: "0xabc:3", Kind: "transfer", SinkID: "tg", Status: "sent", CreatedAt: now},
		{ID: "d2", EventKey: "0xabc:3", Kind: "transfer", SinkID: "hook", Status: "failed", Detail: "503", CreatedAt: now},
	}
	if err := store.RecordReport(ctx, recs, "0xabc:3", now.Add(time.Hour)); err != nil {
		t.Fatalf("record report: %v", err)
	}

	dup, err := store.IsDuplicate(ctx, "0xabc:3", now)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if !dup {
		t.Fatalf("expected dedupe key to be marked")
	}

	got, err := store.ListDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
}

func TestRecordReportRollsBackOnBadRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	recs := []Delivery{
		{ID: "d1", EventKey: "0xabc:3", Kind: "transfer", SinkID: "tg", Status: "sent", CreatedAt: now},
		{ID: "", EventKey: "0xabc:3", Kind: "transfer", SinkID: "hook", Status: "sent", CreatedAt: now},
	}
	if err := store.RecordReport(ctx, recs, "0xabc:3", now.Add(time.Hour)); err == nil {
		t.Fatalf("expected record report to fail")
	}

	got, err := store.ListDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected rollback to leave no deliveries, got %d", len(got))
	}
	dup, err := store.IsDuplicate(ctx, "0xabc:3", now)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if dup {
		t.Fatalf("expected no dedupe mark after rollback")
	}
}

func TestPruneDeliveries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := Delivery{ID: "old", EventKey: "k", Kind: "transfer", SinkID: "tg", Status: "sent", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := Delivery{ID: "fresh", EventKey: "k2", Kind: "transfer", SinkID: "tg", Status: "sent", CreatedAt: now}
	if err := store.InsertDelivery(ctx, old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if err := store.InsertDelivery(ctx, fresh); err != nil {
		t.Fatalf("insert fresh: %v", err)
	}

	n, err := store.PruneDeliveries(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}

	got, err := store.ListDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("unexpected deliveries after prune: %+v", got)
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
