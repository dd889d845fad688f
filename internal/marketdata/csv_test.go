package marketdata

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-hunter/internal/liquidity"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 1, 8, 14, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   string
	}{
		{"rfc3339", "2026-01-08T14:00:00Z"},
		{"rfc3339 offset", "2026-01-08T15:00:00+01:00"},
		{"unix seconds", "1767880800"},
		{"unix millis", "1767880800000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}

func TestParseCSV(t *testing.T) {
	in := `time,open,high,low,close,volume
# comment
2026-01-08T14:00:00Z,100,101,99.5,100.5,10
1767881700,100.5,102,100,101.5,12.5
`
	candles, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 101.5, candles[1].Close)
	assert.Equal(t, 15*time.Minute, candles[1].Time.Sub(candles[0].Time))
}

func TestParseCSV_WithoutHeader(t *testing.T) {
	candles, err := ParseCSV(strings.NewReader("1767880800,1,2,0.5,1.5,3\n"))
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"short row", "1767880800,1,2,0.5\n", "want 6 fields"},
		{"bad number", "1767880800,1,x,0.5,1,1\n", "field 3"},
		{"bad time", "time,o,h,l,c,v\nsoon,1,2,0.5,1,1\n", "line 2"},
		{"out of order OHLC", "1767880800,1,0.5,2,1,1\n", "OHLC out of order"},
		{"time not increasing", "1767880800,1,2,0.5,1,1\n1767880800,1,2,0.5,1,1\n", "timestamp not after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteCSV_ReadsBack(t *testing.T) {
	base := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	candles := []liquidity.Candle{
		{Time: base, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3},
		{Time: base.Add(time.Hour), Open: 1.5, High: 2.25, Low: 1.25, Close: 2, Volume: 4.125},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, candles))

	got, err := ParseCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range candles {
		assert.True(t, candles[i].Time.Equal(got[i].Time))
		assert.Equal(t, candles[i].Volume, got[i].Volume)
	}
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BTCUSDT.csv"), []byte(
		"time,open,high,low,close,volume\n1767880800,1,2,0.5,1.5,3\n1767881700,1.5,2,1,1.8,3\n1767882600,1.8,2.2,1.6,2,3\n"), 0644))

	src := DirectorySource{Dir: dir, Limit: 2}
	candles, err := src.Candles(context.Background(), "btcusdt")
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 2.0, candles[1].Close)

	_, err = src.Candles(context.Background(), "ETHUSDT")
	assert.True(t, errors.Is(err, ErrUnknownSymbol))

	symbols, err := src.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, symbols)
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource()
	base := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	src.Set("X", []liquidity.Candle{{Time: base, Open: 1, High: 1, Low: 1, Close: 1}})
	src.Append("X", liquidity.Candle{Time: base.Add(time.Minute), Open: 1, High: 1, Low: 1, Close: 1})

	got, err := src.Candles(context.Background(), "X")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got[0].Close = 99
	again, _ := src.Candles(context.Background(), "X")
	assert.Equal(t, 1.0, again[0].Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Candles(ctx, "X")
	assert.ErrorIs(t, err, context.Canceled)
}
