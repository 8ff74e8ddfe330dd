package recon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expensebot/internal/domain"
	"github.com/rs/zerolog"
)

// Confidence grades how strongly a ledger transaction matches an expense.
type Confidence string

const (
	// Certain matches (±1 day, exact amount, similar name) are committed
	// automatically and never surface in Reconcile results.
	Certain Confidence = "certain"
	// Likely matches share the exact amount within ±2 days but missed the
	// certain bar; a human confirms them.
	Likely Confidence = "likely"
	// Uncertain matches align on amount only, outside the date window.
	Uncertain Confidence = "uncertain"
)

const (
	windowDays      = 2
	certainMaxDelta = 1
	amountOnlyLimit = 10

	// badDelta stands in for an unparsable date so the candidate can never
	// clear the certain bar.
	badDelta = 99
)

// Candidate is one ledger transaction proposed for an expense.
type Candidate struct {
	Tx         domain.LedgerTransaction
	Confidence Confidence
}

// Result pairs an unmatched expense with its proposed candidates.
// Expenses resolved automatically during the pass do not appear.
type Result struct {
	Expense    domain.Expense
	Candidates []Candidate
}

// Store is the persistence surface the engine needs.
type Store interface {
	UnmatchedExpenses(ctx context.Context) ([]domain.Expense, error)
	LedgerCandidatesInWindow(ctx context.Context, date string, absAmount int64, days int) ([]domain.LedgerTransaction, error)
	LedgerCandidatesByAmount(ctx context.Context, absAmount int64, limit int) ([]domain.LedgerTransaction, error)
	MatchExpenseToLedger(ctx context.Context, expenseID, externalID string) error
}

// SimilarityJudge decides whether two store names / descriptions refer to
// the same transaction. It is consulted only when the substring heuristic
// fails; an error degrades that one candidate to "not similar".
type SimilarityJudge interface {
	SimilarityCheck(ctx context.Context, a, b string) (bool, error)
}

// Engine reconciles unmatched expenses against imported ledger transactions.
type Engine struct {
	store Store
	judge SimilarityJudge
	log   zerolog.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(store Store, judge SimilarityJudge, log zerolog.Logger) *Engine {
	return &Engine{store: store, judge: judge, log: log}
}

// Reconcile runs one matching pass over all unmatched expenses.
//
// Per expense: exact-amount ledger rows within ±2 days are fetched first.
// A candidate within ±1 day whose name is similar is committed as a certain
// match on the spot; once one commits, the expense is resolved and dropped
// from the results. Remaining window candidates come back as likely, and
// exact-amount rows outside the window as uncertain. An expense with no
// candidates at all still appears, with an empty candidate list.
func (e *Engine) Reconcile(ctx context.Context) ([]Result, error) {
	expenses, err := e.store.UnmatchedExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: fetch unmatched expenses: %w", err)
	}

	var results []Result

	for _, expense := range expenses {
		absAmount := expense.Amount
		if absAmount < 0 {
			absAmount = -absAmount
		}

		window, err := e.store.LedgerCandidatesInWindow(ctx, expense.Date, absAmount, windowDays)
		if err != nil {
			e.log.Error().Err(err).Str("expense_id", expense.ID).Msg("window candidate fetch failed")
			window = nil
		}

		seen := make(map[string]bool, len(window))
		certainMatched := false
		var likely []Candidate

		for _, tx := range window {
			seen[tx.ExternalID] = true

			delta := dayDelta(expense.Date, tx.Date)
			similar := namesOverlap(expense.StoreName, tx.Description)
			if !similar && e.judge != nil {
				similar, err = e.judge.SimilarityCheck(ctx, expense.StoreName, tx.Description)
				if err != nil {
					e.log.Warn().Err(err).
						Str("expense_id", expense.ID).
						Str("ledger_id", tx.ExternalID).
						Msg("similarity check skipped")
					similar = false
				}
			}

			if delta <= certainMaxDelta && similar {
				if err := e.store.MatchExpenseToLedger(ctx, expense.ID, tx.ExternalID); err != nil {
					// The match is not lost: surface it for human review
					// instead of retrying within this pass. It goes to the
					// front of the list, ahead of weaker window candidates.
					e.log.Error().Err(err).
						Str("expense_id", expense.ID).
						Str("ledger_id", tx.ExternalID).
						Msg("auto-match commit failed; demoting to likely")
					likely = append([]Candidate{{Tx: tx, Confidence: Likely}}, likely...)
					continue
				}
				certainMatched = true
				e.log.Info().
					Str("expense_id", expense.ID).
					Str("ledger_id", tx.ExternalID).
					Msg("auto-matched expense to ledger transaction")
				break
			}

			likely = append(likely, Candidate{Tx: tx, Confidence: Likely})
		}

		if certainMatched {
			// Resolved; any likely candidates gathered before the commit
			// are discarded rather than surfaced alongside a done match.
			continue
		}

		candidates := likely
		amountOnly, err := e.store.LedgerCandidatesByAmount(ctx, absAmount, amountOnlyLimit)
		if err != nil {
			e.log.Error().Err(err).Str("expense_id", expense.ID).Msg("amount-only candidate fetch failed")
			amountOnly = nil
		}
		for _, tx := range amountOnly {
			if seen[tx.ExternalID] {
				continue
			}
			candidates = append(candidates, Candidate{Tx: tx, Confidence: Uncertain})
		}

		results = append(results, Result{Expense: expense, Candidates: candidates})
	}

	return results, nil
}

// dayDelta is the absolute calendar-day distance between two ISO dates.
// Unparsable dates yield badDelta.
func dayDelta(a, b string) int {
	ta, errA := time.Parse(domain.DateLayout, clipDate(a))
	tb, errB := time.Parse(domain.DateLayout, clipDate(b))
	if errA != nil || errB != nil {
		return badDelta
	}
	d := int(ta.Sub(tb).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

func clipDate(s string) string {
	if len(s) > len(domain.DateLayout) {
		return s[:len(domain.DateLayout)]
	}
	return s
}

// namesOverlap reports whether one name is a substring of the other after
// removing ASCII and full-width spaces and case-folding. Empty names never
// overlap.
func namesOverlap(a, b string) bool {
	normalize := func(s string) string {
		s = strings.TrimSpace(s)
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, "　", "")
		return strings.ToLower(s)
	}
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
