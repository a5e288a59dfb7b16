package scanner

import (
	"math/big"
	"sync"
	"testing"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func block(n uint64) ckbmodel.BlockIdentifier {
	return ckbmodel.BlockIdentifier{Number: n, Hash: common.BigToHash(big.NewInt(int64(n)))}
}

func TestTipCellMonotonicUpdate(t *testing.T) {
	tip := NewTipCell(block(10))

	tip.Update(block(5))
	assert.Equal(t, uint64(10), tip.Load().Number, "lower update must be discarded")

	tip.Update(block(10))
	assert.Equal(t, uint64(10), tip.Load().Number, "equal update must be discarded")

	tip.Update(block(20))
	assert.Equal(t, uint64(20), tip.Load().Number, "strictly greater update must win")
}

func TestTipCellForceSetBypassesMonotonic(t *testing.T) {
	tip := NewTipCell(block(5000))
	tip.ForceSet(block(100))
	assert.Equal(t, uint64(100), tip.Load().Number)
}

func TestTipCellConcurrentUpdatesConverge(t *testing.T) {
	tip := NewTipCell(block(0))

	var wg sync.WaitGroup
	for i := uint64(1); i <= 100; i++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			tip.Update(block(n))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(100), tip.Load().Number)
}
