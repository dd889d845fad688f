package liquidity

import (
	"errors"
	"math"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCandles_Clean(t *testing.T) {
	assert.NoError(t, ValidateCandles(stairCandles(30)))
	assert.NoError(t, ValidateCandles(nil))
}

func TestValidateCandles_ReportsEveryOffender(t *testing.T) {
	candles := stairCandles(10)
	candles[2].Volume = -1
	candles[4].Close = math.NaN()
	candles[6].Low = candles[6].High + 1
	candles[8].Time = candles[7].Time

	err := ValidateCandles(candles)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCandle))

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))

	indices := make([]int, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		var ce *CandleError
		require.True(t, errors.As(e, &ce))
		indices = append(indices, ce.Index)
	}
	assert.Equal(t, []int{2, 4, 6, 8}, indices)
}

func TestPoolTypeSide(t *testing.T) {
	for _, pt := range AllPoolTypes {
		assert.True(t, pt.Valid())
		assert.NotPanics(t, func() { pt.Side() })
	}
	assert.False(t, PoolType("bogus").Valid())
	assert.Panics(t, func() { PoolType("bogus").Side() })
}
