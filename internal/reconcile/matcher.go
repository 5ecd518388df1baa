package reconcile

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/obs"
)

// ErrTooManyRows is returned when a batch exceeds the configured row limit.
var ErrTooManyRows = errors.New("reconcile: too many rows")

// Matcher maps customer rows onto catalog products.
type Matcher struct {
	catalog catalog.Provider
	workers int
	maxRows int
	logger  zerolog.Logger
}

// MatcherConfig groups Matcher dependencies.
type MatcherConfig struct {
	Catalog catalog.Provider
	Workers int
	MaxRows int
	Logger  zerolog.Logger
}

// NewMatcher constructs a Matcher. Workers defaults to GOMAXPROCS.
func NewMatcher(cfg MatcherConfig) (*Matcher, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("reconcile: catalog provider is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Matcher{catalog: cfg.Catalog, workers: workers, maxRows: cfg.MaxRows, logger: cfg.Logger}, nil
}

// Match resolves every row against one catalog snapshot. The output has one
// entry per input row in input order. Row-level failures are recorded on the
// row; only an unavailable catalog fails the call. When ctx is cancelled the
// rows not yet processed stay pending and the set is marked incomplete.
func (m *Matcher) Match(ctx context.Context, rows []InputRow) (MatchSet, error) {
	if m.maxRows > 0 && len(rows) > m.maxRows {
		return MatchSet{}, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(rows), m.maxRows)
	}
	start := time.Now()
	snap, err := m.catalog.Acquire(ctx)
	if err != nil {
		obs.ObserveReconcileMatch("unavailable", msSince(start))
		return MatchSet{}, err
	}

	out := make([]Match, len(rows))
	for i, r := range rows {
		out[i] = pendingMatch(i, r)
	}

	workers := m.workers
	if workers > len(rows) {
		workers = len(rows)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out[idx] = matchRow(snap, idx, rows[idx])
			}
		}()
	}

feed:
	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	set := MatchSet{Rows: out}
	counts := make(map[Status]int, 3)
	for _, r := range out {
		counts[r.Status]++
	}
	set.Incomplete = counts[StatusPending] > 0
	for status, n := range counts {
		obs.ObserveReconcileRows(string(status), n)
	}
	result := "ok"
	if set.Incomplete {
		result = "incomplete"
	}
	obs.ObserveReconcileMatch(result, msSince(start))
	m.logger.Info().
		Int("rows", len(rows)).
		Int("matched", counts[StatusMatched]).
		Int("unmatched", counts[StatusUnmatched]).
		Int("pending", counts[StatusPending]).
		Dur("duration", time.Since(start)).
		Msg("reconcile_match")
	return set, nil
}

func pendingMatch(ordinal int, r InputRow) Match {
	rowIndex := r.RowIndex
	if rowIndex <= 0 {
		rowIndex = ordinal + 1
	}
	return Match{
		Ordinal:          ordinal,
		RowIndex:         rowIndex,
		Reference:        r.Reference,
		CustomerPriceRaw: r.CustomerPriceRaw,
		Quantity:         r.Quantity,
		Status:           StatusPending,
	}
}

func matchRow(snap *catalog.Snapshot, ordinal int, r InputRow) Match {
	m := pendingMatch(ordinal, r)
	m.NormalizedReference = catalog.NormalizeReference(r.Reference)

	price, priceErr := ParsePrice(r.CustomerPriceRaw)
	if priceErr == nil {
		m.CustomerPrice = &price
	}

	candidates, err := snap.Resolve(r.Reference)
	if err != nil {
		m.Status = StatusUnmatched
		m.Reason = ReasonNotFound
		return m
	}
	chosen := candidates[0]
	m.Product = &chosen
	m.CandidateCount = len(candidates)
	if len(candidates) > 1 {
		m.TieBreak = tieBreakRule(candidates[0], candidates[1])
		m.Alternatives = make([]string, 0, len(candidates)-1)
		for _, c := range candidates[1:] {
			m.Alternatives = append(m.Alternatives, c.ID)
		}
	}
	if priceErr != nil {
		m.Status = StatusUnmatched
		m.Reason = ReasonUnparsablePrice
		return m
	}
	m.Status = StatusMatched
	return m
}

// tieBreakRule names the ordering key that separated the first two candidates.
func tieBreakRule(first, second catalog.Product) string {
	if first.BrandCode != second.BrandCode {
		return TieBreakBrandCode
	}
	if first.Band.Completeness() != second.Band.Completeness() {
		return TieBreakCompleteness
	}
	return TieBreakProductID
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
