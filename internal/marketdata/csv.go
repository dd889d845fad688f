// Package marketdata turns candle files into liquidity.Candle slices. The
// engine never fetches data itself; this package is what the CLI and the
// monitor feed it with.
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"liquidity-hunter/internal/liquidity"
)

// msThreshold separates unix seconds from unix milliseconds
const msThreshold = 1_000_000_000_000

// ParseCSV reads time,open,high,low,close,volume rows. A header row is
// skipped when its first field is not a timestamp. Times are RFC3339, unix
// seconds or unix milliseconds. The result is validated before it is returned.
func ParseCSV(r io.Reader) ([]liquidity.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var candles []liquidity.Candle
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("marketdata: line %d: %w", line, err)
		}

		if line == 1 {
			if _, err := ParseTime(record[0]); err != nil {
				continue // header
			}
		}
		if len(record) < 6 {
			return nil, fmt.Errorf("marketdata: line %d: want 6 fields, got %d", line, len(record))
		}

		c, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("marketdata: line %d: %w", line, err)
		}
		candles = append(candles, c)
	}

	if err := liquidity.ValidateCandles(candles); err != nil {
		return nil, fmt.Errorf("marketdata: %w", err)
	}
	return candles, nil
}

// LoadCSV parses the candle file at path
func LoadCSV(path string) ([]liquidity.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f)
}

func parseRecord(record []string) (liquidity.Candle, error) {
	t, err := ParseTime(record[0])
	if err != nil {
		return liquidity.Candle{}, err
	}

	var values [5]float64
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return liquidity.Candle{}, fmt.Errorf("field %d: %w", i+2, err)
		}
		values[i] = v
	}

	return liquidity.Candle{
		Time:   t,
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// ParseTime accepts RFC3339, unix seconds or unix milliseconds and returns UTC
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= msThreshold {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	return t.UTC(), nil
}

// WriteCSV writes candles with a header in the format ParseCSV reads
func WriteCSV(w io.Writer, candles []liquidity.Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		record := []string{
			c.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
