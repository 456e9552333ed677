package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func uint64Less(a, b uint64) bool { return a < b }

func TestLookupCache_StoreLoad(t *testing.T) {
	c := newLookupCache[uint64, entry](8, uint64Less)

	c.store(1, entry{Key: 1, Amount: 10})
	c.store(1, entry{Key: 1, Amount: 11})

	got, ok := c.load(1)
	assert.True(t, ok)
	assert.EqualValues(t, 11, got.Amount)

	_, ok = c.load(2)
	assert.False(t, ok)
}

func TestLookupCache_ResetOnOverflow(t *testing.T) {
	c := newLookupCache[uint64, entry](4, uint64Less)

	for i := uint64(0); i < 4; i++ {
		assert.Zero(t, c.store(i, entry{Key: i}))
	}

	// The fifth distinct key trips the reset; only it survives.
	evicted := c.store(99, entry{Key: 99})
	assert.Equal(t, 4, evicted)

	_, ok := c.load(0)
	assert.False(t, ok)
	_, ok = c.load(99)
	assert.True(t, ok)
}

func TestLookupCache_Disabled(t *testing.T) {
	c := newLookupCache[uint64, entry](0, uint64Less)
	assert.Nil(t, c)

	// A nil cache is inert.
	assert.Zero(t, c.store(1, entry{Key: 1}))
	_, ok := c.load(1)
	assert.False(t, ok)
}
