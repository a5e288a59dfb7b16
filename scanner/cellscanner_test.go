package scanner

import (
	"context"
	"math/big"
	"testing"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a minimal chainclient.ChainClient backed by in-memory
// fixtures, enough to drive one CellScanner.scanOnce.
type fakeClient struct {
	tip    ckbmodel.BlockIdentifier
	txs    map[common.Hash]*ckbmodel.Transaction
	pages  []ckbmodel.Pagination // consumed in order, one per GetTransactions call
	pageAt int
}

func headerAt(n uint64) ckbmodel.Header {
	return ckbmodel.Header{Number: n, Hash: common.BigToHash(big.NewInt(int64(n)))}
}

func (f *fakeClient) GetTip(ctx context.Context) (ckbmodel.BlockIdentifier, error) { return f.tip, nil }

func (f *fakeClient) GetHeaderByNumber(ctx context.Context, number uint64) (ckbmodel.Header, error) {
	return headerAt(number), nil
}

func (f *fakeClient) GetBlockByNumber(ctx context.Context, number uint64) (ckbmodel.Header, error) {
	return headerAt(number), nil
}

func (f *fakeClient) GetTransaction(ctx context.Context, hash common.Hash) (*ckbmodel.Transaction, error) {
	return f.txs[hash], nil
}

func (f *fakeClient) GetTransactions(ctx context.Context, key ckbmodel.SearchKey, order ckbmodel.Order, limit uint32, cursor []byte) (ckbmodel.Pagination, error) {
	if f.pageAt >= len(f.pages) {
		return ckbmodel.Pagination{}, nil
	}
	p := f.pages[f.pageAt]
	f.pageAt++
	return p, nil
}

func (f *fakeClient) GetCells(ctx context.Context, key ckbmodel.SearchKey, order ckbmodel.Order, limit uint32, cursor []byte) (ckbmodel.CellPagination, error) {
	return ckbmodel.CellPagination{}, nil
}

func (f *fakeClient) GetCellsCapacity(ctx context.Context, key ckbmodel.SearchKey) (*ckbmodel.CellsCapacity, error) {
	return nil, nil
}

type fakeSubmitter struct {
	cellBatches [][]ckbmodel.CellDiff
	refuseAfter int // -1 means never refuse
	closed      bool
}

func (f *fakeSubmitter) SubmitCells(ctx context.Context, batch []ckbmodel.CellDiff) bool {
	f.cellBatches = append(f.cellBatches, batch)
	if f.refuseAfter >= 0 && len(f.cellBatches) > f.refuseAfter {
		return false
	}
	return true
}

func (f *fakeSubmitter) SubmitHeaders(ctx context.Context, batch []ckbmodel.Header) bool { return true }
func (f *fakeSubmitter) IsClosed() bool                                                 { return f.closed }

func oneOutputTxFixture(txHash common.Hash, blockNumber uint64) (*ckbmodel.Transaction, ckbmodel.GroupedTx) {
	tx := &ckbmodel.Transaction{
		Hash:        txHash,
		Outputs:     []ckbmodel.CellOutput{{Capacity: hexutil.Uint64(100)}},
		OutputsData: []hexutil.Bytes{{0xde, 0xad}},
	}
	grouped := ckbmodel.GroupedTx{
		TxHash:      txHash,
		BlockNumber: blockNumber,
		Cells:       []ckbmodel.GroupedCell{{Type: ckbmodel.CellTypeOutput, Index: 0}},
	}
	return tx, grouped
}

func TestCellScannerEmitsOneBatchAndAdvancesTip(t *testing.T) {
	txHash := common.HexToHash("0xaa")
	tx, grouped := oneOutputTxFixture(txHash, 50)

	client := &fakeClient{
		tip: ckbmodel.BlockIdentifier{Number: 100},
		txs: map[common.Hash]*ckbmodel.Transaction{txHash: tx},
		pages: []ckbmodel.Pagination{
			{Objects: []ckbmodel.GroupedTx{grouped}},
		},
	}
	submitter := &fakeSubmitter{refuseAfter: -1}
	tip := NewTipCell(ckbmodel.BlockIdentifier{Number: 10})
	s := NewCellScanner(ckbmodel.FilterKey{}, tip, client, submitter)

	worked, err := s.scanOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	require.Len(t, submitter.cellBatches, 1)
	batch := submitter.cellBatches[0]
	require.Len(t, batch, 1)
	assert.Equal(t, uint64(50), batch[0].Header.Number)
	require.Len(t, batch[0].Outputs, 1)
	assert.Equal(t, txHash, batch[0].Outputs[0].OutPoint.TxHash)

	assert.Equal(t, uint64(76), tip.Load().Number, "tip advances to chain_tip - SAFETY_OFFSET")
}

func TestCellScannerIdlesWithinSafetyOffset(t *testing.T) {
	client := &fakeClient{tip: ckbmodel.BlockIdentifier{Number: 20}}
	submitter := &fakeSubmitter{refuseAfter: -1}
	tip := NewTipCell(ckbmodel.BlockIdentifier{Number: 10})
	s := NewCellScanner(ckbmodel.FilterKey{}, tip, client, submitter)

	worked, err := s.scanOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, worked, "chain_tip - SAFETY_OFFSET <= old_tip must idle")
	assert.Equal(t, uint64(10), tip.Load().Number)
}

func TestCellScannerBackpressureLeavesTipUnchanged(t *testing.T) {
	txHash := common.HexToHash("0xbb")
	tx, grouped := oneOutputTxFixture(txHash, 50)

	client := &fakeClient{
		tip: ckbmodel.BlockIdentifier{Number: 100},
		txs: map[common.Hash]*ckbmodel.Transaction{txHash: tx},
		pages: []ckbmodel.Pagination{
			{Objects: []ckbmodel.GroupedTx{grouped}},
		},
	}
	submitter := &fakeSubmitter{refuseAfter: 0} // refuse the very first call
	tip := NewTipCell(ckbmodel.BlockIdentifier{Number: 10})
	s := NewCellScanner(ckbmodel.FilterKey{}, tip, client, submitter)

	worked, err := s.scanOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.True(t, s.stopped.Load())
	assert.Equal(t, uint64(10), tip.Load().Number, "refused batch must not advance the tip")
}

func TestCellScannerMissingTransactionIsFatal(t *testing.T) {
	txHash := common.HexToHash("0xcc")
	_, grouped := oneOutputTxFixture(txHash, 50)

	client := &fakeClient{
		tip:   ckbmodel.BlockIdentifier{Number: 100},
		txs:   map[common.Hash]*ckbmodel.Transaction{}, // indexer reported it, but get_transaction misses
		pages: []ckbmodel.Pagination{{Objects: []ckbmodel.GroupedTx{grouped}}},
	}
	submitter := &fakeSubmitter{refuseAfter: -1}
	tip := NewTipCell(ckbmodel.BlockIdentifier{Number: 10})
	s := NewCellScanner(ckbmodel.FilterKey{}, tip, client, submitter)

	_, err := s.scanOnce(context.Background())
	require.Error(t, err)
	var violation *ProtocolViolation
	assert.ErrorAs(t, err, &violation)
}
