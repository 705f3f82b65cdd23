package alerts

import (
	"fmt"
	"sync"
	"testing"
)

func TestLedgerAdd(t *testing.T) {
	l := NewLedger()

	a := l.Add("tunnel died", LevelCritical)
	if a.ID != 1 {
		t.Fatalf("first alert id = %d, want 1", a.ID)
	}
	if a.Level != LevelCritical {
		t.Fatalf("level = %q, want %q", a.Level, LevelCritical)
	}
	if a.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}

	b := l.Add("door opened", LevelInfo)
	if b.ID != 2 {
		t.Fatalf("second alert id = %d, want 2", b.ID)
	}

	got := l.List(0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != 2 || got[1].ID != 1 {
		t.Fatalf("expected newest first, got ids %d, %d", got[0].ID, got[1].ID)
	}
}

func TestLedgerCapacity(t *testing.T) {
	l := NewLedger()

	for i := 1; i <= 150; i++ {
		l.Add(fmt.Sprintf("event %d", i), LevelInfo)
	}

	if l.Len() != Capacity {
		t.Fatalf("len = %d, want %d", l.Len(), Capacity)
	}

	got := l.List(0)
	if len(got) != Capacity {
		t.Fatalf("list len = %d, want %d", len(got), Capacity)
	}

	// Most recent 100 survive: ids 150 down to 51, newest first.
	for i, a := range got {
		want := uint64(150 - i)
		if a.ID != want {
			t.Fatalf("entry %d id = %d, want %d", i, a.ID, want)
		}
	}

	// IDs keep increasing after eviction, never reused.
	next := l.Add("one more", LevelWarning)
	if next.ID != 151 {
		t.Fatalf("id after eviction = %d, want 151", next.ID)
	}
}

func TestLedgerListLimit(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 10; i++ {
		l.Add(fmt.Sprintf("event %d", i), LevelInfo)
	}

	got := l.List(3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != 10 {
		t.Fatalf("first id = %d, want 10", got[0].ID)
	}

	if n := len(l.List(50)); n != 10 {
		t.Fatalf("limit beyond size returned %d entries, want 10", n)
	}
}

func TestLedgerListSnapshot(t *testing.T) {
	l := NewLedger()
	l.Add("original", LevelInfo)

	got := l.List(0)
	got[0].Message = "mutated"

	if l.List(0)[0].Message != "original" {
		t.Fatal("List must return a copy, not the backing slice")
	}
}

func TestLedgerConcurrentAdd(t *testing.T) {
	l := NewLedger()

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				l.Add(fmt.Sprintf("worker %d event %d", w, i), LevelInfo)
			}
		}(w)
	}
	wg.Wait()

	if l.Len() != Capacity {
		t.Fatalf("len = %d, want %d", l.Len(), Capacity)
	}

	seen := make(map[uint64]bool)
	for _, a := range l.List(0) {
		if seen[a.ID] {
			t.Fatalf("duplicate id %d", a.ID)
		}
		seen[a.ID] = true
	}
}
