package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/axonweb3/ckb-emitter/cache"
	"github.com/axonweb3/ckb-emitter/chainclient"
	"github.com/axonweb3/ckb-emitter/ckbhash"
	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/axonweb3/ckb-emitter/metrics"
	"github.com/axonweb3/ckb-emitter/submit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Tunables fixed by design, not configuration: changing them changes
// the shape of emitted batches, so they are constants rather than
// flags.
const (
	SafetyOffset = 24
	PageLimit    = 32
	FlushSize    = 1 << 20 // 1 MiB
	IdleTick     = 8 * time.Second

	outpointSize = 36
	cellOverhead = 8
)

// ProtocolViolation is raised when the upstream indexer contradicts
// its own contract: an out-of-range grouped cell index, or a
// get_transaction miss for a hash the indexer just listed. It aborts
// the owning scanner task; it never reaches ChainClient's
// process-fatal path because the transport itself is healthy.
type ProtocolViolation struct{ msg string }

func (e *ProtocolViolation) Error() string { return "scanner: protocol violation: " + e.msg }

func violation(format string, args ...interface{}) error {
	return &ProtocolViolation{msg: fmt.Sprintf(format, args...)}
}

// CellScanner is the per-filter long-running task described in detail
// by the component design: paginated indexer queries grouped into
// per-block CellDiffs, sized flushing, and tip advance gated on every
// batch in the window being accepted downstream.
type CellScanner struct {
	filterKey ckbmodel.FilterKey
	tip       *TipCell
	client    chainclient.ChainClient
	submitter submit.Submitter
	cache     *cache.Scan

	stopped atomic.Bool
}

func NewCellScanner(key ckbmodel.FilterKey, tip *TipCell, client chainclient.ChainClient, submitter submit.Submitter) *CellScanner {
	return &CellScanner{
		filterKey: key,
		tip:       tip,
		client:    client,
		submitter: submitter,
		cache:     cache.NewScan(4 * PageLimit),
	}
}

// Stop requests the scanner exit at its next suspension point.
func (s *CellScanner) Stop() { s.stopped.Store(true) }

// Run drives the outer loop until stopped, the submitter closes, or
// ctx is cancelled.
func (s *CellScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(IdleTick)
	defer ticker.Stop()

	metrics.ActiveScanners.Inc()
	defer metrics.ActiveScanners.Dec()

	for {
		if s.stopped.Load() || s.submitter.IsClosed() || ctx.Err() != nil {
			return
		}

		worked, err := s.scanOnce(ctx)
		if err != nil {
			log.Error("cell scanner: aborting task", "filter", s.filterKey.ID(), "err", err)
			return
		}
		if s.stopped.Load() {
			return
		}
		if worked {
			continue
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// scanOnce runs one scan iteration. worked reports whether it found
// a non-idle window (used only to decide whether to skip the idle
// tick before retrying).
func (s *CellScanner) scanOnce(ctx context.Context) (worked bool, err error) {
	chainTip, err := s.client.GetTip(ctx)
	if err != nil {
		return false, nil // transport errors are handled by the retrying ChainClient layer
	}
	oldTip := s.tip.Load()

	if chainTip.Number < SafetyOffset || chainTip.Number-SafetyOffset <= oldTip.Number {
		return false, nil
	}
	newTipNumber := chainTip.Number - SafetyOffset

	newHeader, err := s.client.GetHeaderByNumber(ctx, newTipNumber)
	if err != nil {
		return false, nil
	}
	newTip := newHeader.BlockIdentifier()

	// lookups are memoized within this iteration only
	s.cache = cache.NewScan(4 * PageLimit)

	searchKey := ckbmodel.Project(s.filterKey, oldTip.Number, newTip.Number)

	accumulator := make(map[common.Hash]*ckbmodel.CellDiff)
	totalSize := 0
	var cursor []byte

	for {
		page, err := s.client.GetTransactions(ctx, searchKey, ckbmodel.OrderAsc, PageLimit, cursor)
		if err != nil {
			return false, nil
		}

		for _, grouped := range page.Objects {
			if err := s.absorb(ctx, grouped, accumulator, &totalSize); err != nil {
				return true, err
			}
			if totalSize > FlushSize {
				if ok := s.flush(ctx, accumulator); !ok {
					s.stopped.Store(true)
					return true, nil
				}
				accumulator = make(map[common.Hash]*ckbmodel.CellDiff)
				totalSize = 0
			}
		}

		if len(accumulator) > 0 {
			if ok := s.flush(ctx, accumulator); !ok {
				s.stopped.Store(true)
				return true, nil
			}
			accumulator = make(map[common.Hash]*ckbmodel.CellDiff)
			totalSize = 0
		}

		if len(page.Objects) == PageLimit {
			cursor = page.LastCursor
			continue
		}
		break
	}

	s.tip.Update(newTip)
	metrics.CellScanTip.WithLabelValues(s.filterKey.ID()).Set(float64(newTip.Number))
	return true, nil
}

// absorb folds one grouped transaction's matching cell positions into
// the per-block accumulator, charging totalSize as it goes.
func (s *CellScanner) absorb(ctx context.Context, grouped ckbmodel.GroupedTx, accumulator map[common.Hash]*ckbmodel.CellDiff, totalSize *int) error {
	tx, err := s.resolveTransaction(ctx, grouped.TxHash)
	if err != nil {
		return err
	}
	if tx == nil {
		return violation("get_transaction(%s) returned nothing for an indexed hash", grouped.TxHash)
	}

	header, err := s.resolveHeader(ctx, grouped.BlockNumber)
	if err != nil {
		return err
	}

	diff, ok := accumulator[header.Hash]
	if !ok {
		diff = &ckbmodel.CellDiff{Header: header}
		accumulator[header.Hash] = diff
	}

	for _, cell := range grouped.Cells {
		switch cell.Type {
		case ckbmodel.CellTypeInput:
			idx := int(cell.Index)
			if idx < 0 || idx >= len(tx.Inputs) {
				return violation("input index %d out of range for tx %s (%d inputs)", idx, tx.Hash, len(tx.Inputs))
			}
			diff.Inputs = append(diff.Inputs, tx.Inputs[idx].PreviousOutput)
			*totalSize += cellOverhead + outpointSize

		case ckbmodel.CellTypeOutput:
			idx := int(cell.Index)
			if idx < 0 || idx >= len(tx.Outputs) {
				return violation("output index %d out of range for tx %s (%d outputs)", idx, tx.Hash, len(tx.Outputs))
			}
			output := tx.Outputs[idx]
			var data *ckbmodel.CellData
			if idx < len(tx.OutputsData) && len(tx.OutputsData[idx]) > 0 {
				content := tx.OutputsData[idx]
				data = &ckbmodel.CellData{Hash: ckbhash.Data(content), Content: content}
			}
			diff.Outputs = append(diff.Outputs, ckbmodel.OutputWithCellInfo{
				OutPoint: ckbmodel.OutPoint{TxHash: grouped.TxHash, Index: cell.Index},
				CellInfo: ckbmodel.CellInfo{Output: output, Data: data},
			})
			*totalSize += cellOverhead + outpointSize + output.EstimatedMoleculeSize()
			if data != nil {
				*totalSize += len(data.Content)
			}

		default:
			return violation("unrecognized grouped cell type %q", cell.Type)
		}
	}
	return nil
}

func (s *CellScanner) resolveTransaction(ctx context.Context, hash common.Hash) (*ckbmodel.Transaction, error) {
	if tx, ok := s.cache.GetTransaction(hash); ok {
		return tx, nil
	}
	tx, err := s.client.GetTransaction(ctx, hash)
	if err != nil {
		return nil, nil
	}
	if tx != nil {
		s.cache.AddTransaction(hash, tx)
	}
	return tx, nil
}

func (s *CellScanner) resolveHeader(ctx context.Context, number uint64) (ckbmodel.Header, error) {
	if h, ok := s.cache.GetHeader(number); ok {
		return h, nil
	}
	h, err := s.client.GetHeaderByNumber(ctx, number)
	if err != nil {
		return ckbmodel.Header{}, nil
	}
	s.cache.AddHeader(number, h)
	return h, nil
}

// flush copies accumulator's entries into a block-number-ascending
// slice and submits it. The caller must replace accumulator with a
// fresh map afterward; flush does not clear it itself.
func (s *CellScanner) flush(ctx context.Context, accumulator map[common.Hash]*ckbmodel.CellDiff) bool {
	batch := make([]ckbmodel.CellDiff, 0, len(accumulator))
	for _, diff := range accumulator {
		batch = append(batch, *diff)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Header.Number < batch[j].Header.Number })
	ok := s.submitter.SubmitCells(ctx, batch)
	if ok {
		metrics.CellDiffsSubmitted.WithLabelValues(s.filterKey.ID()).Add(float64(len(batch)))
	} else {
		metrics.SubmitFailures.WithLabelValues("cells").Inc()
	}
	return ok
}
