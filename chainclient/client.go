// Package chainclient abstracts the upstream operations the scan engine
// needs (spec §4.A): fetching the indexer tip, headers, full
// transactions, and paginated grouped-cell transactions. The scan
// engine is written against the ChainClient interface only; RPCClient
// is the concrete implementation that actually talks to a CKB node.
package chainclient

import (
	"context"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/ethereum/go-ethereum/common"
)

// ChainClient is the set of upstream operations spec §4.A and §6
// require. Every method may block indefinitely: the retry policy lives
// one layer up, wrapping each call with rpcerr.RetryForever.
type ChainClient interface {
	// GetTip returns the indexer's current tip (get_indexer_tip).
	GetTip(ctx context.Context) (ckbmodel.BlockIdentifier, error)

	// GetHeaderByNumber returns the full header at number.
	GetHeaderByNumber(ctx context.Context, number uint64) (ckbmodel.Header, error)

	// GetTransaction returns the full transaction for hash, or nil if
	// the node does not have it.
	GetTransaction(ctx context.Context, hash common.Hash) (*ckbmodel.Transaction, error)

	// GetTransactions returns one page of grouped cell-transaction
	// records matching key, in order, starting after cursor.
	GetTransactions(ctx context.Context, key ckbmodel.SearchKey, order ckbmodel.Order, limit uint32, cursor []byte) (ckbmodel.Pagination, error)

	// GetBlockByNumber is offered for the control plane, not required
	// by the scan engine.
	GetBlockByNumber(ctx context.Context, number uint64) (ckbmodel.Header, error)

	// GetCells is offered for the control plane.
	GetCells(ctx context.Context, key ckbmodel.SearchKey, order ckbmodel.Order, limit uint32, cursor []byte) (ckbmodel.CellPagination, error)

	// GetCellsCapacity is offered for the control plane.
	GetCellsCapacity(ctx context.Context, key ckbmodel.SearchKey) (*ckbmodel.CellsCapacity, error)
}
