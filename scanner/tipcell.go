// Package scanner implements the per-filter CellScanner and the single
// HeaderScanner: the long-running tasks that paginate the indexer,
// group matching activity into per-block batches, and advance their
// TipCell only once a window has been fully submitted downstream.
package scanner

import (
	"sync/atomic"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
)

// TipCell is a concurrently-shared, atomically-updatable scan tip.
// Loads and updates never tear and never block each other; the stored
// number only ever increases, except through ForceSet which exists
// solely for the operator-initiated header rewind (spec §4.G
// header_sync_start is the one legal non-monotonic update).
type TipCell struct {
	ptr atomic.Pointer[ckbmodel.BlockIdentifier]
}

// NewTipCell seeds a TipCell at the given block.
func NewTipCell(at ckbmodel.BlockIdentifier) *TipCell {
	t := &TipCell{}
	t.ptr.Store(&at)
	return t
}

// Load returns the current snapshot.
func (t *TipCell) Load() ckbmodel.BlockIdentifier {
	return *t.ptr.Load()
}

// Update replaces the stored snapshot with next only if next.Number is
// strictly greater than the current one; otherwise next is discarded.
// Safe for concurrent callers: the compare-and-swap loop means a racing
// updater never clobbers a larger value that landed in between the
// load and the store.
func (t *TipCell) Update(next ckbmodel.BlockIdentifier) {
	for {
		cur := t.ptr.Load()
		if next.Number <= cur.Number {
			return
		}
		if t.ptr.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// ForceSet replaces the snapshot unconditionally, bypassing the
// monotonic-update rule. Only header_sync_start may call this.
func (t *TipCell) ForceSet(next ckbmodel.BlockIdentifier) {
	t.ptr.Store(&next)
}
