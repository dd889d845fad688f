package notification

import "liquidity-hunter/internal/liquidity"

const (
	colorGreen  = 0x26A69A
	colorRed    = 0xEF5350
	colorBlue   = 0x42A5F5
	colorOrange = 0xFFA726
	colorPurple = 0xAB47BC
	colorGray   = 0x9E9E9E
)

// Style is how a pool, sweep, structure change or signal is presented
type Style struct {
	Color int    `json:"color"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// PoolStyle maps a pool type to its presentation
func PoolStyle(t liquidity.PoolType) Style {
	switch t {
	case liquidity.PoolEqualHighs:
		return Style{Color: colorRed, Label: "Equal Highs", Icon: "═"}
	case liquidity.PoolEqualLows:
		return Style{Color: colorGreen, Label: "Equal Lows", Icon: "═"}
	case liquidity.PoolPrevDayHigh:
		return Style{Color: colorOrange, Label: "Previous Day High", Icon: "▲"}
	case liquidity.PoolPrevDayLow:
		return Style{Color: colorOrange, Label: "Previous Day Low", Icon: "▼"}
	case liquidity.PoolAsianHigh:
		return Style{Color: colorPurple, Label: "Asian High", Icon: "▲"}
	case liquidity.PoolAsianLow:
		return Style{Color: colorPurple, Label: "Asian Low", Icon: "▼"}
	case liquidity.PoolRangeHigh:
		return Style{Color: colorBlue, Label: "Range High", Icon: "┬"}
	case liquidity.PoolRangeLow:
		return Style{Color: colorBlue, Label: "Range Low", Icon: "┴"}
	case liquidity.PoolTrendlineHigh:
		return Style{Color: colorRed, Label: "Trendline High", Icon: "╱"}
	case liquidity.PoolTrendlineLow:
		return Style{Color: colorGreen, Label: "Trendline Low", Icon: "╲"}
	case liquidity.PoolTriangleUpper:
		return Style{Color: colorGray, Label: "Triangle Upper", Icon: "◸"}
	case liquidity.PoolTriangleLower:
		return Style{Color: colorGray, Label: "Triangle Lower", Icon: "◺"}
	default:
		return Style{Color: colorGray, Label: string(t), Icon: "•"}
	}
}

// SweepStyle maps a sweep direction to its presentation
func SweepStyle(d liquidity.Direction) Style {
	if d == liquidity.DirectionUp {
		return Style{Color: colorRed, Label: "Buy-side Liquidity Swept", Icon: "🧹"}
	}
	return Style{Color: colorGreen, Label: "Sell-side Liquidity Swept", Icon: "🧹"}
}

// StructureStyle maps a structure change to its presentation
func StructureStyle(kind liquidity.StructureKind, d liquidity.Direction) Style {
	color := colorGreen
	if d == liquidity.DirectionDown {
		color = colorRed
	}
	if kind == liquidity.CHOCH {
		return Style{Color: color, Label: "CHOCH " + string(d), Icon: "🔄"}
	}
	return Style{Color: color, Label: "BOS " + string(d), Icon: "➡️"}
}

// SignalStyle maps a signal direction to its presentation
func SignalStyle(d liquidity.SignalDirection) Style {
	if d == liquidity.Bullish {
		return Style{Color: colorGreen, Label: "Bullish Signal", Icon: "🟢"}
	}
	return Style{Color: colorRed, Label: "Bearish Signal", Icon: "🔴"}
}
