// Package submit defines the downstream sink a scanner drains batches
// into, and the two concrete sinks spec §4.C names: a relayer that
// ABI-encodes and signs a transaction per batch, and a subscription
// sink that pushes JSON notifications to a live websocket client.
package submit

import (
	"context"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
)

// Submitter is the scanner's only view of "downstream". Both methods
// report success/failure as a plain bool, not an error: a submitter
// failing is an ordinary, expected event (backpressure, a closed
// subscriber) that the scanner reacts to by stopping cleanly, not a
// bug to propagate up the call stack.
type Submitter interface {
	// SubmitCells delivers one ordered batch of per-block cell diffs.
	// Returning false tells the caller to stop scanning; the tip is
	// not advanced for this batch.
	SubmitCells(ctx context.Context, batch []ckbmodel.CellDiff) bool

	// SubmitHeaders delivers one ordered batch of headers. Same
	// shutdown semantics as SubmitCells.
	SubmitHeaders(ctx context.Context, batch []ckbmodel.Header) bool

	// IsClosed reports whether this submitter has already given up;
	// the scanner's outer loop checks this even between iterations.
	IsClosed() bool
}
