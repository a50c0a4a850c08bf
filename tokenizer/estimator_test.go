package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestByteSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ByteSize(""))
	assert.Equal(t, 5, ByteSize("hello"))
	assert.Equal(t, 3, ByteSize("•"))
	assert.Equal(t, 6, ByteSize("日本"))
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
		{strings.Repeat("x", 2048), 512},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EstimateTokens(tc.in), "input len %d", len(tc.in))
	}
}

func TestProperty_EstimateTokens_RoundsUp(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "s")
		n := EstimateTokens(s)
		b := ByteSize(s)
		if b == 0 {
			assert.Equal(rt, 0, n)
			return
		}
		assert.GreaterOrEqual(rt, n*BytesPerToken, b)
		assert.Less(rt, (n-1)*BytesPerToken, b)
	})
}

func TestByteEstimator_Counter(t *testing.T) {
	t.Parallel()

	var c Counter = NewByteEstimator()
	assert.Equal(t, 0, c.CountTokens(""))
	assert.Equal(t, 2, c.CountTokens("12345678"))
	assert.Equal(t, "bytes/4", c.Name())
}
