package morton_test

import (
	"testing"
	"testing/quick"

	"github.com/sfcdb/sfcdb/internal/apperr"
	"github.com/sfcdb/sfcdb/internal/morton"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KnownValues(t *testing.T) {
	cases := []struct {
		x, y int64
		want uint64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{0, 1, 2},
		{1, 1, 3},
		{morton.MaxCoord, morton.MaxCoord, 1<<62 - 1},
	}

	for _, c := range cases {
		got, err := morton.Encode(c.x, c.y)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "encode(%d, %d)", c.x, c.y)

		x, y := morton.Decode(got)
		assert.Equal(t, c.x, x)
		assert.Equal(t, c.y, y)
	}
}

func TestEncode_RejectsOutOfRange(t *testing.T) {
	_, err := morton.Encode(-1, 0)
	assert.True(t, apperr.Is(err, apperr.CodeDomain))

	_, err = morton.Encode(0, morton.MaxCoord+1)
	assert.True(t, apperr.Is(err, apperr.CodeDomain))
}

func TestCodecRoundTrip_Property(t *testing.T) {
	f := func(x, y uint32) bool {
		xc := int64(x & morton.MaxCoord)
		yc := int64(y & morton.MaxCoord)
		key, err := morton.Encode(xc, yc)
		if err != nil {
			return false
		}
		dx, dy := morton.Decode(key)
		return dx == xc && dy == yc
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 2000}))
}

func TestSplitJoin_Property(t *testing.T) {
	f := func(key uint64, tailLenRaw uint8) bool {
		tailLen := uint(tailLenRaw) % 63
		head, tail := morton.Split(key, tailLen)
		return morton.Join(head, tail, tailLen) == key
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 2000}))
}

func TestHeadLen_EvenAndSumsToBitLength(t *testing.T) {
	headLen, tailLen, err := morton.HeadLen(1000, 1000, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, headLen%2, "head_len must be even")

	key, err := morton.Encode(1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, morton.BitLength(key), headLen+tailLen)
}

func TestHeadLen_RejectsOverflow(t *testing.T) {
	_, _, err := morton.HeadLen(morton.MaxCoord, morton.MaxCoord, 0.9)
	assert.True(t, apperr.Is(err, apperr.CodeConfig))
}

func TestHeadLen_TinyDataset(t *testing.T) {
	// S2 scenario: a 2x2 grid of points, ratio 0.5.
	headLen, tailLen, err := morton.HeadLen(1, 1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, headLen)
	assert.Equal(t, 2, tailLen)
}
