package markethours

import "time"

// DayRoller watches tick times and reports when they cross into a new
// trading day. It follows tick time, not wall time, so replays roll too.
// Not safe for concurrent use.
type DayRoller struct {
	session Session
	day     time.Time
}

// NewDayRoller creates a roller for session.
func NewDayRoller(session Session) *DayRoller {
	return &DayRoller{session: session}
}

// Observe records t and returns true when t starts a later trading day than
// the previous observation. The first observation never rolls; ticks that
// arrive late from an earlier day are ignored.
func (r *DayRoller) Observe(t time.Time) bool {
	day := r.session.DayStart(t)
	if r.day.IsZero() {
		r.day = day
		return false
	}
	if !day.After(r.day) {
		return false
	}
	r.day = day
	return true
}

// Day returns the start of the current trading day (zero before any tick).
func (r *DayRoller) Day() time.Time { return r.day }
