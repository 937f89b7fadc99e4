// Package chrono resolves civil date-time input to UTC instants. Input
// arrives as humans wrote it: with or without an explicit zone, sometimes
// inside a DST gap or fold, sometimes predating modern zone rules. Four
// resolution profiles control how strictly history is honored.
package chrono

import (
	"time"

	"github.com/araddon/dateparse"

	"github.com/siderealabs/ephemerisd/faults"
)

// probeZone has a deliberately odd offset so a string without zone
// information can never accidentally parse to the same instant in UTC and
// in the probe.
var probeZone = time.FixedZone("probe", 8*3600+45*60)

// wallClock is a parsed civil time with no zone attached.
type wallClock struct {
	year, month, day  int
	hour, minute, sec int
	nsec              int
}

func wallOf(t time.Time) wallClock {
	return wallClock{
		year: t.Year(), month: int(t.Month()), day: t.Day(),
		hour: t.Hour(), minute: t.Minute(), sec: t.Second(), nsec: t.Nanosecond(),
	}
}

func (w wallClock) in(loc *time.Location) time.Time {
	return time.Date(w.year, time.Month(w.month), w.day, w.hour, w.minute, w.sec, w.nsec, loc)
}

func (w wallClock) equalClock(t time.Time) bool {
	return wallOf(t) == w
}

// parseInput parses the entered string. The bool reports whether the
// string itself carried a zone or offset; when it did, the returned time
// is the exact instant and the wall clock is the entered local clock.
func parseInput(s string) (time.Time, wallClock, bool, error) {
	// RFC3339 is the documented canonical format and always explicit.
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, wallOf(t), true, nil
	}

	inUTC, err := dateparse.ParseIn(s, time.UTC, dateparse.PreferMonthFirst(true))
	if err != nil {
		return time.Time{}, wallClock{}, false, faults.Newf(faults.CodeTimeResolutionFailed,
			"could not parse date-time %q", s)
	}
	inProbe, err := dateparse.ParseIn(s, probeZone, dateparse.PreferMonthFirst(true))
	if err != nil {
		return time.Time{}, wallClock{}, false, faults.Newf(faults.CodeTimeResolutionFailed,
			"could not parse date-time %q", s)
	}

	// Same instant from two different base zones means the string carried
	// its own zone or offset.
	if inUTC.Equal(inProbe) {
		return inUTC, wallOf(inUTC), true, nil
	}
	return time.Time{}, wallOf(inUTC), false, nil
}
