package chainclient

import (
	"context"
	"fmt"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/axonweb3/ckb-emitter/rpcerr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// RPCClient is the default ChainClient, a thin JSON-RPC 2.0 client over
// a CKB node, built on go-ethereum's rpc.Client transport (the real
// JSON-RPC-over-HTTP client the corpus standardizes on; CKB's RPC is
// plain JSON-RPC 2.0, so the same client type applies unmodified).
type RPCClient struct {
	raw *gethrpc.Client
}

// Dial connects to a CKB node's JSON-RPC endpoint (http:// or ws://).
func Dial(ctx context.Context, uri string) (*RPCClient, error) {
	raw, err := gethrpc.DialContext(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("chainclient: dial %s: %w", uri, err)
	}
	return &RPCClient{raw: raw}, nil
}

// NewRPCClient wraps an already-constructed rpc.Client, used by tests
// to attach an in-process server.
func NewRPCClient(raw *gethrpc.Client) *RPCClient {
	return &RPCClient{raw: raw}
}

func (c *RPCClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	err := c.raw.CallContext(ctx, result, method, args...)
	if err != nil {
		if _, ok := err.(gethrpc.Error); ok {
			return rpcerr.NewRemoteError(err)
		}
		return err
	}
	return nil
}

func (c *RPCClient) GetTip(ctx context.Context) (ckbmodel.BlockIdentifier, error) {
	var tip struct {
		BlockHash   common.Hash    `json:"block_hash"`
		BlockNumber hexutil.Uint64 `json:"block_number"`
	}
	if err := c.call(ctx, &tip, "get_indexer_tip"); err != nil {
		return ckbmodel.BlockIdentifier{}, err
	}
	return ckbmodel.BlockIdentifier{Number: uint64(tip.BlockNumber), Hash: tip.BlockHash}, nil
}

func (c *RPCClient) GetHeaderByNumber(ctx context.Context, number uint64) (ckbmodel.Header, error) {
	var h ckbmodel.Header
	if err := c.call(ctx, &h, "get_header_by_number", hexutil.Uint64(number)); err != nil {
		return ckbmodel.Header{}, err
	}
	return h, nil
}

func (c *RPCClient) GetBlockByNumber(ctx context.Context, number uint64) (ckbmodel.Header, error) {
	var block struct {
		Header ckbmodel.Header `json:"header"`
	}
	if err := c.call(ctx, &block, "get_block_by_number", hexutil.Uint64(number)); err != nil {
		return ckbmodel.Header{}, err
	}
	return block.Header, nil
}

func (c *RPCClient) GetTransaction(ctx context.Context, hash common.Hash) (*ckbmodel.Transaction, error) {
	var resp struct {
		Transaction *ckbmodel.Transaction `json:"transaction"`
	}
	if err := c.call(ctx, &resp, "get_transaction", hash); err != nil {
		return nil, err
	}
	return resp.Transaction, nil
}

func (c *RPCClient) GetTransactions(ctx context.Context, key ckbmodel.SearchKey, order ckbmodel.Order, limit uint32, cursor []byte) (ckbmodel.Pagination, error) {
	var page ckbmodel.Pagination
	var after *hexutil.Bytes
	if cursor != nil {
		b := hexutil.Bytes(cursor)
		after = &b
	}
	if err := c.call(ctx, &page, "get_transactions", key, order, hexutil.Uint64(limit), after); err != nil {
		return ckbmodel.Pagination{}, err
	}
	return page, nil
}

func (c *RPCClient) GetCells(ctx context.Context, key ckbmodel.SearchKey, order ckbmodel.Order, limit uint32, cursor []byte) (ckbmodel.CellPagination, error) {
	var page ckbmodel.CellPagination
	var after *hexutil.Bytes
	if cursor != nil {
		b := hexutil.Bytes(cursor)
		after = &b
	}
	if err := c.call(ctx, &page, "get_cells", key, order, hexutil.Uint64(limit), after); err != nil {
		return ckbmodel.CellPagination{}, err
	}
	return page, nil
}

func (c *RPCClient) GetCellsCapacity(ctx context.Context, key ckbmodel.SearchKey) (*ckbmodel.CellsCapacity, error) {
	var capacity *ckbmodel.CellsCapacity
	if err := c.call(ctx, &capacity, "get_cells_capacity", key); err != nil {
		return nil, err
	}
	return capacity, nil
}

// Retrying wraps a ChainClient so every call retries transient errors
// forever and routes fatal ones to fatal, per spec §4.A.
type Retrying struct {
	inner ChainClient
	fatal rpcerr.FatalHandler
}

func NewRetrying(inner ChainClient, fatal rpcerr.FatalHandler) *Retrying {
	return &Retrying{inner: inner, fatal: fatal}
}

func (r *Retrying) GetTip(ctx context.Context) (ckbmodel.BlockIdentifier, error) {
	v := rpcerr.RetryForever(ctx, r.fatal, r.inner.GetTip)
	return v, ctx.Err()
}

func (r *Retrying) GetHeaderByNumber(ctx context.Context, number uint64) (ckbmodel.Header, error) {
	v := rpcerr.RetryForever(ctx, r.fatal, func(ctx context.Context) (ckbmodel.Header, error) {
		return r.inner.GetHeaderByNumber(ctx, number)
	})
	return v, ctx.Err()
}

func (r *Retrying) GetBlockByNumber(ctx context.Context, number uint64) (ckbmodel.Header, error) {
	v := rpcerr.RetryForever(ctx, r.fatal, func(ctx context.Context) (ckbmodel.Header, error) {
		return r.inner.GetBlockByNumber(ctx, number)
	})
	return v, ctx.Err()
}

func (r *Retrying) GetTransaction(ctx context.Context, hash common.Hash) (*ckbmodel.Transaction, error) {
	v := rpcerr.RetryForever(ctx, r.fatal, func(ctx context.Context) (*ckbmodel.Transaction, error) {
		return r.inner.GetTransaction(ctx, hash)
	})
	return v, ctx.Err()
}

func (r *Retrying) GetTransactions(ctx context.Context, key ckbmodel.SearchKey, order ckbmodel.Order, limit uint32, cursor []byte) (ckbmodel.Pagination, error) {
	v := rpcerr.RetryForever(ctx, r.fatal, func(ctx context.Context) (ckbmodel.Pagination, error) {
		return r.inner.GetTransactions(ctx, key, order, limit, cursor)
	})
	return v, ctx.Err()
}

func (r *Retrying) GetCells(ctx context.Context, key ckbmodel.SearchKey, order ckbmodel.Order, limit uint32, cursor []byte) (ckbmodel.CellPagination, error) {
	v := rpcerr.RetryForever(ctx, r.fatal, func(ctx context.Context) (ckbmodel.CellPagination, error) {
		return r.inner.GetCells(ctx, key, order, limit, cursor)
	})
	return v, ctx.Err()
}

func (r *Retrying) GetCellsCapacity(ctx context.Context, key ckbmodel.SearchKey) (*ckbmodel.CellsCapacity, error) {
	v := rpcerr.RetryForever(ctx, r.fatal, func(ctx context.Context) (*ckbmodel.CellsCapacity, error) {
		return r.inner.GetCellsCapacity(ctx, key)
	})
	return v, ctx.Err()
}

var _ ChainClient = (*RPCClient)(nil)
var _ ChainClient = (*Retrying)(nil)
