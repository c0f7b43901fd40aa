package quantize_test

import (
	"testing"

	"github.com/sfcdb/sfcdb/internal/apperr"
	"github.com/sfcdb/sfcdb/internal/quantize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantize_S2Scenario(t *testing.T) {
	q, err := quantize.New([3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	cases := []struct {
		x, y, z float64
		want    quantize.Point
	}{
		{0, 0, 1.00, quantize.Point{X: 0, Y: 0, Z: 1.00}},
		{1, 0, 2.00, quantize.Point{X: 1, Y: 0, Z: 2.00}},
		{0, 1, 3.00, quantize.Point{X: 0, Y: 1, Z: 3.00}},
		{1, 1, 4.00, quantize.Point{X: 1, Y: 1, Z: 4.00}},
	}
	for _, c := range cases {
		got, err := q.Quantize(c.x, c.y, c.z)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestQuantize_RejectsNegativeCoordinate(t *testing.T) {
	q, err := quantize.New([3]float64{1, 1, 1}, [3]float64{10, 10, 0})
	require.NoError(t, err)

	_, err = q.Quantize(0, 0, 0)
	assert.True(t, apperr.Is(err, apperr.CodeQuantization))
}

func TestQuantize_RoundsZToTwoDecimals(t *testing.T) {
	q, err := quantize.New([3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	p, err := q.Quantize(0, 0, 1.006)
	require.NoError(t, err)
	assert.InDelta(t, 1.01, p.Z, 1e-9)
}

func TestNew_RejectsZeroScale(t *testing.T) {
	_, err := quantize.New([3]float64{0, 1, 1}, [3]float64{0, 0, 0})
	assert.True(t, apperr.Is(err, apperr.CodeConfig))
}

func TestDequantize_InvertsQuantize(t *testing.T) {
	q, err := quantize.New([3]float64{0.01, 0.01, 1}, [3]float64{100, 200, 0})
	require.NoError(t, err)

	p, err := q.Quantize(105.5, 201.2, 3.14)
	require.NoError(t, err)

	x, y, _ := q.Dequantize(p.X, p.Y, p.Z)
	assert.InDelta(t, 105.5, x, 0.01)
	assert.InDelta(t, 201.2, y, 0.01)
}

func TestQuantizeBoxOutward_RoundsAway(t *testing.T) {
	q, err := quantize.New([3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	box := q.QuantizeBoxOutward(0.2, 1.8, -0.1, 2.01)
	assert.Equal(t, int64(0), box.XMin)
	assert.Equal(t, int64(2), box.XMax)
	assert.Equal(t, int64(-1), box.YMin)
	assert.Equal(t, int64(3), box.YMax)
}
