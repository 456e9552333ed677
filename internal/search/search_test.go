package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func upperBoundInts(s []int, probe int) int {
	return UpperBound(len(s), func(i int) bool { return s[i] > probe })
}

func TestUpperBound(t *testing.T) {
	s := []int{1, 3, 3, 3, 7, 9}

	assert.Equal(t, 0, upperBoundInts(s, 0))
	assert.Equal(t, 1, upperBoundInts(s, 1))
	assert.Equal(t, 1, upperBoundInts(s, 2))
	assert.Equal(t, 4, upperBoundInts(s, 3)) // past the last duplicate
	assert.Equal(t, 5, upperBoundInts(s, 7))
	assert.Equal(t, 6, upperBoundInts(s, 9))
	assert.Equal(t, 6, upperBoundInts(s, 100))
}

func TestUpperBound_Empty(t *testing.T) {
	assert.Equal(t, 0, upperBoundInts(nil, 5))
}

func TestUpperBound_LastAmongEquals(t *testing.T) {
	// The element just below the bound is the rightmost equal one.
	s := []int{5, 5, 5}
	i := upperBoundInts(s, 5)
	assert.Equal(t, 3, i)
	assert.Equal(t, 5, s[i-1])
}
