package submit

import (
	"context"
	"errors"
	"testing"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/stretchr/testify/assert"
)

type fakeBackend struct {
	cellCalls, headerCalls int
	err                    error
}

func (f *fakeBackend) SendCellUpdate(ctx context.Context, batch []ckbmodel.CellDiff) error {
	f.cellCalls++
	return f.err
}

func (f *fakeBackend) SendHeaderUpdate(ctx context.Context, batch []ckbmodel.Header) error {
	f.headerCalls++
	return f.err
}

func TestRelayerSubmitterNeverDemandsShutdown(t *testing.T) {
	backend := &fakeBackend{err: errors.New("downstream unreachable")}
	r := NewRelayerSubmitter(backend)

	ok := r.SubmitCells(context.Background(), []ckbmodel.CellDiff{{}})
	assert.True(t, ok, "relayer failures must not stop the scanner")
	assert.Equal(t, 1, backend.cellCalls)
	assert.False(t, r.IsClosed())
}

func TestRelayerSubmitterSkipsEmptyBatch(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRelayerSubmitter(backend)

	assert.True(t, r.SubmitCells(context.Background(), nil))
	assert.True(t, r.SubmitHeaders(context.Background(), nil))
	assert.Zero(t, backend.cellCalls)
	assert.Zero(t, backend.headerCalls)
}
