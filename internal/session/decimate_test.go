package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimateShortInputUnchanged(t *testing.T) {
	in := []int{1, 2, 3}
	out := Decimate(in, 10)
	assert.Equal(t, in, out)

	// The result must not alias the input.
	out[0] = 99
	assert.Equal(t, 1, in[0])
}

func TestDecimateDisabledWhenMaxNonPositive(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	assert.Equal(t, in, Decimate(in, 0))
	assert.Equal(t, in, Decimate(in, -1))
}

func TestDecimateBoundsAndEndpoints(t *testing.T) {
	in := make([]int, 3000)
	for i := range in {
		in[i] = i
	}

	out := Decimate(in, 1000)
	require.NotEmpty(t, out)
	assert.LessOrEqual(t, len(out), 1000)
	assert.Equal(t, 0, out[0])
	assert.Equal(t, 2999, out[len(out)-1])
}

func TestDecimateIsOrderedSubsequence(t *testing.T) {
	in := make([]int, 137)
	for i := range in {
		in[i] = i
	}

	out := Decimate(in, 25)
	require.LessOrEqual(t, len(out), 25)
	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i-1], out[i])
	}
	assert.Equal(t, 136, out[len(out)-1])
}

func TestDecimateDeterministic(t *testing.T) {
	in := make([]int, 500)
	for i := range in {
		in[i] = i * 7
	}
	assert.Equal(t, Decimate(in, 64), Decimate(in, 64))
}
