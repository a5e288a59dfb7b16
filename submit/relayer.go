package submit

import (
	"context"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/ethereum/go-ethereum/log"
)

// Backend is the relayer's view of the downstream chain: encode and
// send one batch, nothing more. relay.Client implements this; keeping
// the interface here (rather than importing the relay package) lets
// submit stay the narrow, dependency-free layer the scanner depends
// on; relay.Client satisfies it structurally, so neither package
// imports the other.
type Backend interface {
	SendCellUpdate(ctx context.Context, batch []ckbmodel.CellDiff) error
	SendHeaderUpdate(ctx context.Context, batch []ckbmodel.Header) error
}

// RelayerSubmitter forwards batches to an external EVM-compatible
// chain. Per spec §4.C a relayer never demands scanner shutdown on its
// own failures: a stuck downstream chain is the relayer's problem to
// retry into, not a reason to stop tracking the upstream tip. It logs
// and reports success regardless of the send outcome.
type RelayerSubmitter struct {
	backend Backend
}

func NewRelayerSubmitter(backend Backend) *RelayerSubmitter {
	return &RelayerSubmitter{backend: backend}
}

func (r *RelayerSubmitter) SubmitCells(ctx context.Context, batch []ckbmodel.CellDiff) bool {
	if len(batch) == 0 {
		return true
	}
	if err := r.backend.SendCellUpdate(ctx, batch); err != nil {
		log.Error("relayer: submit cells failed", "batches", len(batch), "err", err)
	}
	return true
}

func (r *RelayerSubmitter) SubmitHeaders(ctx context.Context, batch []ckbmodel.Header) bool {
	if len(batch) == 0 {
		return true
	}
	if err := r.backend.SendHeaderUpdate(ctx, batch); err != nil {
		log.Error("relayer: submit headers failed", "batches", len(batch), "err", err)
	}
	return true
}

// IsClosed is always false: a relayer has no notion of a closed
// channel, it is simply retried against forever from the outside.
func (r *RelayerSubmitter) IsClosed() bool { return false }

var _ Submitter = (*RelayerSubmitter)(nil)
