package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"swapledger/core/events"
	"swapledger/core/types"
)

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	store, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func swapEvent(seq uint64, identity, amount string) types.LoggedEvent {
	return types.LoggedEvent{
		Seq:        seq,
		Invocation: fmt.Sprintf("0x%02x", seq),
		Contract:   "swc1test",
		Event: types.Event{
			Type:       events.TypeSwap,
			Attributes: map[string]string{events.AttrIdentity: identity, events.AttrAmountOut: amount},
		},
	}
}

func TestRecordAndQuery(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	huge := "170141183460469231731687303715884105727"
	for _, evt := range []types.LoggedEvent{
		swapEvent(1, "alice", "120"),
		swapEvent(2, "bob", "-5"),
		swapEvent(3, "alice", huge),
	} {
		inserted, err := store.RecordEvent(ctx, evt, now)
		if err != nil || !inserted {
			t.Fatalf("record %d: inserted=%v err=%v", evt.Seq, inserted, err)
		}
	}

	inserted, err := store.RecordEvent(ctx, swapEvent(1, "alice", "120"), now)
	if err != nil || inserted {
		t.Fatalf("expected replay to be ignored, inserted=%v err=%v", inserted, err)
	}

	last, err := store.LastSeq(ctx)
	if err != nil || last != 3 {
		t.Fatalf("expected last seq 3, got %d (%v)", last, err)
	}

	history, err := store.History(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Seq != 3 || history[1].AmountOut != "120" {
		t.Fatalf("unexpected history: %+v", history)
	}
	if !history[0].RecordedAt.Equal(now) {
		t.Fatalf("unexpected recorded time %v", history[0].RecordedAt)
	}

	summary, err := store.Summarize(ctx, "alice")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Count != 2 || summary.TotalOut.String() != "170141183460469231731687303715884105847" {
		t.Fatalf("unexpected summary: count=%d total=%s", summary.Count, summary.TotalOut)
	}
}

func TestRecordRejectsMalformedEvents(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	other := swapEvent(1, "alice", "1")
	other.Type = "transfer"
	if _, err := store.RecordEvent(ctx, other, time.Now()); err != ErrNotSwapEvent {
		t.Fatalf("expected ErrNotSwapEvent, got %v", err)
	}
	if _, err := store.RecordEvent(ctx, swapEvent(2, "", "1"), time.Now()); err == nil {
		t.Fatalf("expected missing identity error")
	}
	if _, err := store.RecordEvent(ctx, swapEvent(3, "alice", "1.5"), time.Now()); err == nil {
		t.Fatalf("expected invalid amount error")
	}
}

func TestFileDSN(t *testing.T) {
	if _, err := FileDSN("  "); err != ErrPathRequired {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "idx.sqlite")
	dsn, err := FileDSN(path)
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	store, err := Open(dsn)
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	defer store.Close()
	if _, err := store.RecordEvent(context.Background(), swapEvent(1, "alice", "1"), time.Now()); err != nil {
		t.Fatalf("record: %v", err)
	}
}
