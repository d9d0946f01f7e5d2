package store

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/vending-kiosk/internal/model"
)

func snapshotWithBalance(b int64) model.Snapshot {
	return model.Snapshot{
		Loaded:   true,
		Products: []model.ProductOffering{{Product: model.Product{ID: 1, Name: "Soda", Price: decimal.RequireFromString("3.5")}}},
		Session:  model.SessionState{CurrentBalance: decimal.NewFromInt(b)},
	}
}

func TestStoreReplaceWholesale(t *testing.T) {
	s := New()
	if s.Current().Loaded {
		t.Fatalf("expected empty snapshot")
	}
	if !s.Replace(snapshotWithBalance(3), 1) {
		t.Fatalf("replace rejected")
	}
	next := model.Snapshot{Loaded: true}
	s.Replace(next, 2)
	got := s.Current()
	if len(got.Products) != 0 || !got.Session.CurrentBalance.IsZero() {
		t.Fatalf("fields from the previous snapshot survived: %+v", got)
	}
	if got.Sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", got.Sequence)
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	s := New()
	s.Replace(snapshotWithBalance(5), 2)
	if s.Replace(snapshotWithBalance(9), 1) {
		t.Fatalf("stale snapshot accepted")
	}
	if s.Replace(snapshotWithBalance(9), 2) {
		t.Fatalf("duplicate sequence accepted")
	}
	got := s.Current()
	if !got.Session.CurrentBalance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5, got %v", got.Session.CurrentBalance)
	}
	if s.Version() != 1 {
		t.Fatalf("expected version 1, got %d", s.Version())
	}
}

func TestStoreCurrentIsACopy(t *testing.T) {
	s := New()
	s.Replace(snapshotWithBalance(1), 1)
	got := s.Current()
	got.Products[0].Name = "mutated"
	if s.Current().Products[0].Name != "Soda" {
		t.Fatalf("cached snapshot was mutated through Current")
	}
}

func TestStoreOnChange(t *testing.T) {
	s := New()
	var seen []uint64
	s.OnChange(func(v uint64) { seen = append(seen, v) })
	s.Replace(snapshotWithBalance(1), 1)
	s.Replace(snapshotWithBalance(1), 1)
	s.Replace(snapshotWithBalance(2), 3)
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("unexpected notifications: %v", seen)
	}
}

func TestStoreConcurrentReplace(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		seq := uint64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Replace(snapshotWithBalance(int64(seq)), seq)
		}()
	}
	wg.Wait()
	got := s.Current()
	if !got.Session.CurrentBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100, got %v", got.Session.CurrentBalance)
	}
}
