package services

import (
	"fmt"
	"slices"
	"sync"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

// rowOps are the writes of one row. They are never split across batches.
type rowOps struct {
	slot int
	ops  []domain.Operation
	// deps are the slots of earlier rows creating entities this row builds on.
	deps []int
}

type batch struct {
	index int
	rows  []rowOps
}

func (b batch) operations() []domain.Operation {
	var out []domain.Operation
	for _, r := range b.rows {
		out = append(out, r.ops...)
	}
	return out
}

func (b batch) size() int {
	n := 0
	for _, r := range b.rows {
		n += len(r.ops)
	}
	return n
}

// packBatches groups rows in order into batches of at most maxOps operations.
// A row with more operations than maxOps gets a batch of its own.
func packBatches(rows []rowOps, maxOps int) []batch {
	var (
		batches []batch
		cur     batch
		curOps  int
	)
	flush := func() {
		if len(cur.rows) == 0 {
			return
		}
		cur.index = len(batches)
		batches = append(batches, cur)
		cur = batch{}
		curOps = 0
	}
	for _, r := range rows {
		if curOps > 0 && curOps+len(r.ops) > maxOps {
			flush()
		}
		cur.rows = append(cur.rows, r)
		curOps += len(r.ops)
	}
	flush()
	return batches
}

// commitTracker orders batches whose rows build on entities created by rows of
// earlier batches. A row whose creating row failed is failed as well, so no
// write ever points at an entity that was not stored.
type commitTracker struct {
	done    []chan struct{}
	waitFor [][]int

	mu     sync.Mutex
	failed map[int]struct{}
}

func newCommitTracker(batches []batch) *commitTracker {
	owner := make(map[int]int)
	for _, b := range batches {
		for _, r := range b.rows {
			owner[r.slot] = b.index
		}
	}
	t := &commitTracker{
		done:    make([]chan struct{}, len(batches)),
		waitFor: make([][]int, len(batches)),
		failed:  make(map[int]struct{}),
	}
	for _, b := range batches {
		t.done[b.index] = make(chan struct{})
		for _, r := range b.rows {
			for _, dep := range r.deps {
				bi, ok := owner[dep]
				if !ok || bi == b.index || slices.Contains(t.waitFor[b.index], bi) {
					continue
				}
				t.waitFor[b.index] = append(t.waitFor[b.index], bi)
			}
		}
	}
	return t
}

// wait blocks until every batch b depends on has been settled. Dependencies
// always have a lower index and are dispatched first.
func (t *commitTracker) wait(b int) {
	for _, dep := range t.waitFor[b] {
		<-t.done[dep]
	}
}

// prune fails the rows of b whose creating rows failed and returns the batch
// holding the remaining rows.
func (t *commitTracker) prune(b batch, results []domain.RowResult) batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := batch{index: b.index, rows: make([]rowOps, 0, len(b.rows))}
	for _, r := range b.rows {
		if dep, ok := t.failedDep(r); ok {
			res := results[dep]
			markBatch(results, batch{rows: []rowOps{r}}, domain.OutcomeFailed,
				fmt.Sprintf("depends on %s line %d which failed", res.SourceFile, res.Line))
			t.failed[r.slot] = struct{}{}
			continue
		}
		kept.rows = append(kept.rows, r)
	}
	return kept
}

func (t *commitTracker) failedDep(r rowOps) (int, bool) {
	for _, dep := range r.deps {
		if _, ok := t.failed[dep]; ok {
			return dep, true
		}
	}
	return 0, false
}

// release records the failed rows of b and unblocks its dependents.
func (t *commitTracker) release(b batch, results []domain.RowResult) {
	t.mu.Lock()
	for _, r := range b.rows {
		if results[r.slot].Outcome == domain.OutcomeFailed {
			t.failed[r.slot] = struct{}{}
		}
	}
	t.mu.Unlock()
	close(t.done[b.index])
}
