package ckbmodel

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
)

func sampleFilter() FilterKey {
	return FilterKey{
		Script: Script{
			CodeHash: common.HexToHash("0xaa"),
			HashType: HashTypeType,
			Args:     hexutil.Bytes{0x01, 0x02},
		},
		ScriptType: ScriptTypeLock,
	}
}

func TestFilterKeyIDStableAndDistinct(t *testing.T) {
	a := sampleFilter()
	b := sampleFilter()
	assert.Equal(t, a.ID(), b.ID(), "identical filters must hash identically")

	c := sampleFilter()
	c.ScriptType = ScriptTypeType
	assert.NotEqual(t, a.ID(), c.ID(), "differing script_type must change identity")
}

func TestFilterKeyIDDefaultsSearchMode(t *testing.T) {
	withDefault := sampleFilter()
	withExplicitPrefix := sampleFilter()
	withExplicitPrefix.ScriptSearchMode = SearchModePrefix

	assert.Equal(t, withDefault.ID(), withExplicitPrefix.ID(),
		"unset search mode must hash the same as an explicit default")
}

func TestProjectInjectsBlockRangeAndGroupByTransaction(t *testing.T) {
	key := sampleFilter()
	sk := Project(key, 10, 76)

	assert.Equal(t, key.Script, sk.Script)
	assert.Equal(t, SearchModePrefix, sk.ScriptSearchMode)
	assert.NotNil(t, sk.GroupByTransaction)
	assert.True(t, *sk.GroupByTransaction)
	assert.Nil(t, sk.WithData)
	assert.Equal(t, Range{hexutil.Uint64(10), hexutil.Uint64(76)}, *sk.Filter.BlockRange)
}
