package liquidity

import (
	"errors"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrInvalidCandle is wrapped by every CandleError
	ErrInvalidCandle = errors.New("invalid candle")

	// ErrInsufficientData is returned when fewer candles than required are supplied
	ErrInsufficientData = errors.New("insufficient data")
)

// CandleError describes why the candle at Index was rejected
type CandleError struct {
	Index  int
	Reason string
}

func (e *CandleError) Error() string {
	return fmt.Sprintf("candle %d: %s", e.Index, e.Reason)
}

func (e *CandleError) Unwrap() error {
	return ErrInvalidCandle
}

// ValidateCandles is the opt-in bulk check the detectors never run themselves.
// Every offending candle is reported; the result is nil when all candles are sound.
func ValidateCandles(candles []Candle) error {
	var result *multierror.Error

	for i, c := range candles {
		if !c.IsFinite() {
			result = multierror.Append(result, &CandleError{Index: i, Reason: "non-finite OHLCV value"})
			continue
		}
		if c.Volume < 0 {
			result = multierror.Append(result, &CandleError{Index: i, Reason: fmt.Sprintf("negative volume %g", c.Volume)})
		}
		if c.Low > math.Min(c.Open, c.Close) || c.High < math.Max(c.Open, c.Close) || c.Low > c.High {
			result = multierror.Append(result, &CandleError{
				Index:  i,
				Reason: fmt.Sprintf("OHLC out of order (o=%g h=%g l=%g c=%g)", c.Open, c.High, c.Low, c.Close),
			})
		}
		if i > 0 && !c.Time.After(candles[i-1].Time) {
			result = multierror.Append(result, &CandleError{Index: i, Reason: "timestamp not after previous candle"})
		}
	}

	return result.ErrorOrNil()
}
