package liquidity

import "time"

// Session is the trading session a UTC wall-clock hour belongs to
type Session string

const (
	SessionAsian    Session = "asian"
	SessionLondon   Session = "london"
	SessionOverlap  Session = "overlap" // London / New York overlap
	SessionNewYork  Session = "new_york"
	SessionOffHours Session = "off_hours"
)

// SessionAt classifies t by its UTC hour:
// Asian 00-08, London 08-13, overlap 13-16, New York 16-21, off-hours 21-24.
func SessionAt(t time.Time) Session {
	h := t.UTC().Hour()
	switch {
	case h < 8:
		return SessionAsian
	case h < 13:
		return SessionLondon
	case h < 16:
		return SessionOverlap
	case h < 21:
		return SessionNewYork
	default:
		return SessionOffHours
	}
}

// IsAsianHour reports whether t falls in the 00:00-08:00 UTC window
func IsAsianHour(t time.Time) bool {
	return t.UTC().Hour() < 8
}
