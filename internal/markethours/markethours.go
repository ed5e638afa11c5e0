// Package markethours defines the trading day of a 24/7 crypto venue. There
// is no open or close; the day boundary only matters for daily risk limits.
package markethours

import (
	"fmt"
	"time"
)

// Session fixes when a trading day starts.
type Session struct {
	Location  *time.Location // nil means UTC
	ResetHour int            // hour of day (0-23) the daily counters reset
}

// DefaultSession resets at 00:00 UTC, matching Binance's daily statistics.
func DefaultSession() Session {
	return Session{Location: time.UTC}
}

func (s Session) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// DayStart returns the start of the trading day containing t.
func (s Session) DayStart(t time.Time) time.Time {
	lt := t.In(s.loc())
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), s.ResetHour, 0, 0, 0, s.loc())
	if lt.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// NextReset returns the start of the trading day after the one containing t.
func (s Session) NextReset(t time.Time) time.Time {
	return s.DayStart(t).AddDate(0, 0, 1)
}

// TimeUntilReset returns the duration until the next daily reset.
func (s Session) TimeUntilReset(t time.Time) time.Duration {
	return s.NextReset(t).Sub(t)
}

// StatusString returns a human-readable session status.
func (s Session) StatusString(t time.Time) string {
	return fmt.Sprintf("Market open 24/7, daily reset in %s", fmtDur(s.TimeUntilReset(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
