package store

import (
	"os"
	"testing"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/axonweb3/ckb-emitter/scanner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genesis() ckbmodel.Header {
	return ckbmodel.Header{Number: 0, Hash: common.HexToHash("0x00")}
}

func TestStateStoreLoadMissingYieldsDefault(t *testing.T) {
	dir, err := os.MkdirTemp("", "ckb-emitter-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	st := NewStateStore(dir)
	state := st.Load(genesis())

	assert.Empty(t, state.Filters)
	assert.Equal(t, uint64(0), state.HeaderTip.Load().Number)
}

func TestStateStoreLoadCorruptYieldsDefault(t *testing.T) {
	dir, err := os.MkdirTemp("", "ckb-emitter-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	require.NoError(t, os.WriteFile(dir+"/scan_state", []byte("not json"), 0o644))

	st := NewStateStore(dir)
	state := st.Load(genesis())
	assert.Empty(t, state.Filters)
}

func TestStateStoreDumpLoadRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "ckb-emitter-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	st := NewStateStore(dir)
	state := st.Load(genesis())

	filter := ckbmodel.FilterKey{
		Script:     ckbmodel.Script{CodeHash: common.HexToHash("0x01"), HashType: ckbmodel.HashTypeType},
		ScriptType: ckbmodel.ScriptTypeLock,
	}
	id := filter.ID()
	state.Filters[id] = filter
	state.CellTips[id] = scanner.NewTipCell(ckbmodel.BlockIdentifier{Number: 42, Hash: common.HexToHash("0x42")})
	state.HeaderTip.ForceSet(ckbmodel.BlockIdentifier{Number: 7, Hash: common.HexToHash("0x07")})

	require.NoError(t, st.Dump(state))

	reloaded := st.Load(genesis())
	require.Contains(t, reloaded.Filters, id)
	assert.Equal(t, uint64(42), reloaded.CellTips[id].Load().Number)
	assert.Equal(t, uint64(7), reloaded.HeaderTip.Load().Number)

	_, err = os.Stat(dir + "/tmp/scan_state")
	assert.True(t, os.IsNotExist(err), "tmp file is moved onto scan_state by the dump")
}

func TestStateStoreDumpIsAtomic(t *testing.T) {
	dir, err := os.MkdirTemp("", "ckb-emitter-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	st := NewStateStore(dir)
	state := st.Load(genesis())
	require.NoError(t, st.Dump(state))

	before, err := os.ReadFile(dir + "/scan_state")
	require.NoError(t, err)

	// Simulate a crash mid-dump: only the tmp file is written, the
	// committed file must remain untouched until the rename happens.
	require.NoError(t, os.WriteFile(dir+"/tmp/scan_state", []byte("partial"), 0o644))

	after, err := os.ReadFile(dir + "/scan_state")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
