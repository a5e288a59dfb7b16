package scanner

import (
	"context"
	"testing"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerCollectingSubmitter struct {
	batches [][]ckbmodel.Header
	refuse  bool
}

func (h *headerCollectingSubmitter) SubmitCells(ctx context.Context, batch []ckbmodel.CellDiff) bool {
	return true
}

func (h *headerCollectingSubmitter) SubmitHeaders(ctx context.Context, batch []ckbmodel.Header) bool {
	h.batches = append(h.batches, batch)
	return !h.refuse
}

func (h *headerCollectingSubmitter) IsClosed() bool { return false }

func TestHeaderScannerFetchesHalfOpenRangeAndAdvances(t *testing.T) {
	client := &fakeClient{tip: ckbmodel.BlockIdentifier{Number: 100}}
	submitter := &headerCollectingSubmitter{}
	tip := NewTipCell(ckbmodel.BlockIdentifier{Number: 10})
	s := NewHeaderScanner(tip, client, submitter)

	worked, err := s.scanOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	require.Len(t, submitter.batches, 1)
	batch := submitter.batches[0]
	// target = min(100-24, 10+256) = 76; range is [10, 76) per the
	// canonical half-open choice, so the batch holds numbers 10..75.
	assert.Len(t, batch, 66)
	assert.Equal(t, uint64(10), batch[0].Number)
	assert.Equal(t, uint64(75), batch[len(batch)-1].Number)
	assert.Equal(t, uint64(76), tip.Load().Number)
}

func TestHeaderScannerStepBoundsAdvance(t *testing.T) {
	client := &fakeClient{tip: ckbmodel.BlockIdentifier{Number: 100000}}
	submitter := &headerCollectingSubmitter{}
	tip := NewTipCell(ckbmodel.BlockIdentifier{Number: 0})
	s := NewHeaderScanner(tip, client, submitter)

	_, err := s.scanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(HeaderStep), tip.Load().Number, "one iteration never advances past STEP")
}

func TestHeaderScannerRefusalLeavesTipUnchanged(t *testing.T) {
	client := &fakeClient{tip: ckbmodel.BlockIdentifier{Number: 100}}
	submitter := &headerCollectingSubmitter{refuse: true}
	tip := NewTipCell(ckbmodel.BlockIdentifier{Number: 10})
	s := NewHeaderScanner(tip, client, submitter)

	_, err := s.scanOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, s.stopped.Load())
	assert.Equal(t, uint64(10), tip.Load().Number)
}
