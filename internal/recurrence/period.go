package recurrence

import (
	"fmt"
	"time"
)

// OneTimePeriodKey is the period key shared by every completion of a
// one-time task.
const OneTimePeriodKey = "once"

// StartOfDay returns local midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the Sunday that begins t's week.
func StartOfWeek(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()-int(t.Weekday()), 0, 0, 0, 0, t.Location())
}

// MonthIndex maps t onto a linear month count so that December and the
// following January compare correctly.
func MonthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// PeriodStart returns the start of the period containing t. One-time rules
// have a single unbounded period and return the zero time.
func (r Rule) PeriodStart(t time.Time) time.Time {
	switch r.Freq {
	case Daily:
		return StartOfDay(t)
	case Weekly:
		return StartOfWeek(t)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
	return time.Time{}
}

// PeriodBefore reports whether a's period starts strictly before b's. Both
// times are compared in b's location. One-time rules have a single period,
// so nothing is ever before it.
func (r Rule) PeriodBefore(a, b time.Time) bool {
	a = a.In(b.Location())
	switch r.Freq {
	case Daily:
		return StartOfDay(a).Before(StartOfDay(b))
	case Weekly:
		return StartOfWeek(a).Before(StartOfWeek(b))
	case Monthly:
		return MonthIndex(a) < MonthIndex(b)
	}
	return false
}

// PeriodKey names the period containing t. Completions sharing a key for
// the same task and child occupy the same slot.
func (r Rule) PeriodKey(t time.Time) string {
	switch r.Freq {
	case Daily:
		return "D" + StartOfDay(t).Format("2006-01-02")
	case Weekly:
		return "W" + StartOfWeek(t).Format("2006-01-02")
	case Monthly:
		return fmt.Sprintf("M%04d-%02d", t.Year(), int(t.Month()))
	}
	return OneTimePeriodKey
}

// NextScheduled returns the first scheduled day on or after from's day.
// Daily rules are scheduled every day; weekly and monthly rules use their
// day sets, and a monthly date skips months that lack it. One-time rules
// and rules with an empty day set have no schedule.
func (r Rule) NextScheduled(from time.Time) (time.Time, bool) {
	day := StartOfDay(from)
	switch r.Freq {
	case Daily:
		return day, true
	case Weekly:
		if len(r.ByDay) == 0 {
			return time.Time{}, false
		}
		for i := 0; i < 7; i++ {
			d := day.AddDate(0, 0, i)
			for _, wd := range r.ByDay {
				if d.Weekday() == wd {
					return d, true
				}
			}
		}
	case Monthly:
		if len(r.ByMonthDay) == 0 {
			return time.Time{}, false
		}
		// Any 31st is at most two months away.
		for i := 0; i < 93; i++ {
			d := day.AddDate(0, 0, i)
			for _, md := range r.ByMonthDay {
				if d.Day() == md {
					return d, true
				}
			}
		}
	}
	return time.Time{}, false
}
