package recon

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/dvloznov/expensebot/internal/domain"
	"github.com/dvloznov/expensebot/internal/infra/sqlite"
	"github.com/rs/zerolog"
)

// stubJudge is a deterministic SimilarityJudge for tests.
type stubJudge struct {
	answer bool
	err    error
	calls  int
}

func (j *stubJudge) SimilarityCheck(ctx context.Context, a, b string) (bool, error) {
	j.calls++
	return j.answer, j.err
}

func testStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedLedger(t *testing.T, s *sqlite.Store, tx *domain.LedgerTransaction) {
	t.Helper()
	if _, err := s.SaveLedgerTransaction(context.Background(), tx); err != nil {
		t.Fatalf("seed ledger %s: %v", tx.ExternalID, err)
	}
}

func seedExpense(t *testing.T, s *sqlite.Store, e *domain.Expense) {
	t.Helper()
	if err := s.SaveExpense(context.Background(), e); err != nil {
		t.Fatalf("seed expense: %v", err)
	}
}

func TestReconcileCertainAutoMatch(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	seedLedger(t, store, &domain.LedgerTransaction{
		ExternalID:          "TX1",
		Date:                "2024-03-10",
		Description:         "Coffee Shop",
		Amount:              -500,
		IsCalculationTarget: true,
	})
	exp := &domain.Expense{Date: "2024-03-10", StoreName: "Coffee Shop", Amount: 500}
	seedExpense(t, store, exp)

	judge := &stubJudge{}
	engine := NewEngine(store, judge, zerolog.New(io.Discard))

	results, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(results) != 0 {
		t.Errorf("certain match must be silent, got results: %+v", results)
	}
	if judge.calls != 0 {
		t.Errorf("substring overlap should short-circuit the judge, got %d calls", judge.calls)
	}

	tx, err := store.GetLedgerTransaction(ctx, "TX1")
	if err != nil {
		t.Fatalf("GetLedgerTransaction: %v", err)
	}
	if tx.MatchedExpenseID == nil || *tx.MatchedExpenseID != exp.ID {
		t.Errorf("ledger matched_expense_id = %v, want %s", tx.MatchedExpenseID, exp.ID)
	}

	got, err := store.GetExpense(ctx, exp.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if !got.Matched || got.MatchedLedgerID == nil || *got.MatchedLedgerID != "TX1" {
		t.Errorf("expense not linked: %+v", got)
	}
}

func TestReconcileFiveDayGapIsUncertain(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	seedLedger(t, store, &domain.LedgerTransaction{
		ExternalID:          "TX1",
		Date:                "2024-03-05",
		Description:         "Coffee Shop",
		Amount:              -500,
		IsCalculationTarget: true,
	})
	seedExpense(t, store, &domain.Expense{Date: "2024-03-10", StoreName: "Coffee Shop", Amount: 500})

	engine := NewEngine(store, &stubJudge{}, zerolog.New(io.Discard))
	results, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	cands := results[0].Candidates
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Confidence != Uncertain {
		t.Errorf("confidence = %q, want uncertain (outside ±2-day window)", cands[0].Confidence)
	}
	if cands[0].Tx.ExternalID != "TX1" {
		t.Errorf("candidate = %s, want TX1", cands[0].Tx.ExternalID)
	}

	tx, err := store.GetLedgerTransaction(ctx, "TX1")
	if err != nil {
		t.Fatalf("GetLedgerTransaction: %v", err)
	}
	if tx.MatchedExpenseID != nil {
		t.Error("5-day gap must not auto-match")
	}
}

func TestReconcileTwoDayGapIsLikely(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	seedLedger(t, store, &domain.LedgerTransaction{
		ExternalID:          "TX1",
		Date:                "2024-03-08",
		Description:         "Coffee Shop",
		Amount:              -500,
		IsCalculationTarget: true,
	})
	seedExpense(t, store, &domain.Expense{Date: "2024-03-10", StoreName: "Coffee Shop", Amount: 500})

	engine := NewEngine(store, &stubJudge{}, zerolog.New(io.Discard))
	results, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(results) != 1 || len(results[0].Candidates) != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Candidates[0].Confidence != Likely {
		t.Errorf("confidence = %q, want likely (2-day gap)", results[0].Candidates[0].Confidence)
	}
}

func TestReconcileTransfersNeverMatch(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	transfer := &domain.LedgerTransaction{
		ExternalID:          "TRANSFER",
		Date:                "2024-03-10",
		Description:         "Coffee Shop",
		Amount:              -500,
		IsTransfer:          true,
		IsCalculationTarget: true,
	}
	if _, err := store.SaveLedgerTransaction(ctx, transfer); err != nil {
		t.Fatalf("seed: %v", err)
	}
	seedExpense(t, store, &domain.Expense{Date: "2024-03-10", StoreName: "Coffee Shop", Amount: 500})

	engine := NewEngine(store, &stubJudge{answer: true}, zerolog.New(io.Discard))
	results, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if len(results[0].Candidates) != 0 {
		t.Errorf("transfer surfaced as candidate: %+v", results[0].Candidates)
	}

	tx, err := store.GetLedgerTransaction(ctx, "TRANSFER")
	if err != nil {
		t.Fatalf("GetLedgerTransaction: %v", err)
	}
	if tx.MatchedExpenseID != nil {
		t.Error("transfer must never be auto-matched")
	}
}

func TestReconcileJudgeFallback(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	// Names do not overlap; the judge says yes, so the ±1-day candidate
	// is a certain match.
	seedLedger(t, store, &domain.LedgerTransaction{
		ExternalID:          "TX1",
		Date:                "2024-03-09",
		Description:         "SB COFFEE TOKYO",
		Amount:              -680,
		IsCalculationTarget: true,
	})
	seedExpense(t, store, &domain.Expense{Date: "2024-03-10", StoreName: "スターバックス", Amount: 680})

	judge := &stubJudge{answer: true}
	engine := NewEngine(store, judge, zerolog.New(io.Discard))

	results, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if judge.calls != 1 {
		t.Errorf("judge calls = %d, want 1", judge.calls)
	}
	if len(results) != 0 {
		t.Errorf("expected certain auto-match, got %+v", results)
	}
}

func TestReconcileJudgeErrorDegrades(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	seedLedger(t, store, &domain.LedgerTransaction{
		ExternalID:          "TX1",
		Date:                "2024-03-10",
		Description:         "SB COFFEE TOKYO",
		Amount:              -680,
		IsCalculationTarget: true,
	})
	seedExpense(t, store, &domain.Expense{Date: "2024-03-10", StoreName: "スターバックス", Amount: 680})

	judge := &stubJudge{err: errors.New("model unavailable")}
	engine := NewEngine(store, judge, zerolog.New(io.Discard))

	results, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile must not fail on judge errors: %v", err)
	}

	// Degraded to "not similar": no auto-match, candidate stays likely.
	if len(results) != 1 || len(results[0].Candidates) != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Candidates[0].Confidence != Likely {
		t.Errorf("confidence = %q, want likely", results[0].Candidates[0].Confidence)
	}
}

// commitFailStore wraps a Store and fails every match commit.
type commitFailStore struct {
	Store
}

func (s *commitFailStore) MatchExpenseToLedger(ctx context.Context, expenseID, externalID string) error {
	return errors.New("disk full")
}

func TestReconcileCommitFailureDemotesToLikely(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	seedLedger(t, store, &domain.LedgerTransaction{
		ExternalID:          "TX1",
		Date:                "2024-03-10",
		Description:         "Coffee Shop",
		Amount:              -500,
		IsCalculationTarget: true,
	})
	seedExpense(t, store, &domain.Expense{Date: "2024-03-10", StoreName: "Coffee Shop", Amount: 500})

	engine := NewEngine(&commitFailStore{Store: store}, &stubJudge{}, zerolog.New(io.Discard))
	results, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile must not fail when a commit fails: %v", err)
	}

	if len(results) != 1 || len(results[0].Candidates) != 1 {
		t.Fatalf("demoted candidate missing: %+v", results)
	}
	if results[0].Candidates[0].Confidence != Likely {
		t.Errorf("confidence = %q, want likely after failed commit", results[0].Candidates[0].Confidence)
	}
}

func TestReconcileDemotedCandidateRanksFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	// Scanned first (newest date), name does not match: plain likely.
	seedLedger(t, store, &domain.LedgerTransaction{
		ExternalID:          "WEAK",
		Date:                "2024-03-12",
		Description:         "Book Store",
		Amount:              -500,
		IsCalculationTarget: true,
	})
	// Would be certain, but the commit fails.
	seedLedger(t, store, &domain.LedgerTransaction{
		ExternalID:          "STRONG",
		Date:                "2024-03-10",
		Description:         "Coffee Shop",
		Amount:              -500,
		IsCalculationTarget: true,
	})
	seedExpense(t, store, &domain.Expense{Date: "2024-03-10", StoreName: "Coffee Shop", Amount: 500})

	engine := NewEngine(&commitFailStore{Store: store}, &stubJudge{}, zerolog.New(io.Discard))
	results, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(results) != 1 || len(results[0].Candidates) != 2 {
		t.Fatalf("unexpected results: %+v", results)
	}
	cands := results[0].Candidates
	if cands[0].Tx.ExternalID != "STRONG" {
		t.Errorf("first candidate = %s, want STRONG ranked ahead of weaker window candidates", cands[0].Tx.ExternalID)
	}
	if cands[0].Confidence != Likely || cands[1].Confidence != Likely {
		t.Errorf("window candidates must both be likely: %+v", cands)
	}
}

func TestReconcileNoCandidates(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	seedExpense(t, store, &domain.Expense{Date: "2024-03-10", StoreName: "Coffee Shop", Amount: 500})

	engine := NewEngine(store, &stubJudge{}, zerolog.New(io.Discard))
	results, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if len(results[0].Candidates) != 0 {
		t.Errorf("expected empty candidate list, got %+v", results[0].Candidates)
	}
}

func TestDayDelta(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2024-03-10", "2024-03-10", 0},
		{"2024-03-10", "2024-03-09", 1},
		{"2024-03-05", "2024-03-10", 5},
		{"2024-03-10", "garbage", badDelta},
		{"", "2024-03-10", badDelta},
	}
	for _, tt := range tests {
		if got := dayDelta(tt.a, tt.b); got != tt.want {
			t.Errorf("dayDelta(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNamesOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Coffee Shop", "Coffee Shop", true},
		{"coffee shop", "COFFEESHOP TOKYO", true},
		{"スタバ　渋谷", "スタバ", true},
		{"Coffee Shop", "Book Store", false},
		{"", "Coffee Shop", false},
		{"Coffee Shop", "", false},
	}
	for _, tt := range tests {
		if got := namesOverlap(tt.a, tt.b); got != tt.want {
			t.Errorf("namesOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
