package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Freq is the repeat cadence of a task. The zero value is OneTime.
type Freq int

const (
	OneTime Freq = iota
	Daily
	Weekly
	Monthly
)

var freqNames = map[Freq]string{
	Daily:   "DAILY",
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
}

var freqFromName = map[string]Freq{
	"DAILY":   Daily,
	"WEEKLY":  Weekly,
	"MONTHLY": Monthly,
}

var dayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// Rule describes when a task re-arms. ByDay and ByMonthDay record the
// scheduled days for display; they do not restrict when a task may be
// completed.
type Rule struct {
	Freq       Freq
	ByDay      []time.Weekday // WEEKLY only
	ByMonthDay []int          // MONTHLY only, 1..31
}

// Parse parses an RRULE-style string like "FREQ=WEEKLY;BYDAY=MO,WE".
// The empty string is a one-time rule. Parse checks syntax only; call
// Validate before persisting a rule.
func Parse(rule string) (Rule, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return Rule{}, nil
	}

	var r Rule
	var hasFreq bool

	parts := strings.Split(rule, ";")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}
		key, val := strings.ToUpper(strings.TrimSpace(kv[0])), strings.TrimSpace(kv[1])

		switch key {
		case "FREQ":
			f, ok := freqFromName[strings.ToUpper(val)]
			if !ok {
				return Rule{}, fmt.Errorf("unknown frequency: %q", val)
			}
			r.Freq = f
			hasFreq = true

		case "BYDAY":
			if val == "" {
				continue
			}
			seen := make(map[time.Weekday]bool)
			for _, d := range strings.Split(val, ",") {
				wd, ok := dayNames[strings.ToUpper(strings.TrimSpace(d))]
				if !ok {
					return Rule{}, fmt.Errorf("unknown day: %q", d)
				}
				if !seen[wd] {
					seen[wd] = true
					r.ByDay = append(r.ByDay, wd)
				}
			}

		case "BYMONTHDAY":
			if val == "" {
				continue
			}
			seen := make(map[int]bool)
			for _, d := range strings.Split(val, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(d))
				if err != nil || n < 1 || n > 31 {
					return Rule{}, fmt.Errorf("invalid BYMONTHDAY: %q", d)
				}
				if !seen[n] {
					seen[n] = true
					r.ByMonthDay = append(r.ByMonthDay, n)
				}
			}

		default:
			return Rule{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("FREQ is required")
	}

	sort.Slice(r.ByDay, func(i, j int) bool { return r.ByDay[i] < r.ByDay[j] })
	sort.Ints(r.ByMonthDay)

	return r, nil
}

// Validate reports whether the rule is acceptable for a new or edited task.
func (r Rule) Validate() error {
	switch r.Freq {
	case OneTime, Daily:
		if len(r.ByDay) > 0 || len(r.ByMonthDay) > 0 {
			return fmt.Errorf("BYDAY and BYMONTHDAY are only valid for weekly and monthly rules")
		}
	case Weekly:
		if len(r.ByDay) == 0 {
			return fmt.Errorf("weekly rule needs at least one day")
		}
		if len(r.ByMonthDay) > 0 {
			return fmt.Errorf("BYMONTHDAY is not valid for a weekly rule")
		}
	case Monthly:
		if len(r.ByMonthDay) == 0 {
			return fmt.Errorf("monthly rule needs at least one day of month")
		}
		if len(r.ByDay) > 0 {
			return fmt.Errorf("BYDAY is not valid for a monthly rule")
		}
		for _, d := range r.ByMonthDay {
			if d < 1 || d > 31 {
				return fmt.Errorf("day of month %d out of range", d)
			}
		}
	default:
		return fmt.Errorf("unknown frequency %d", r.Freq)
	}
	return nil
}

// IsRecurring is false only for one-time rules.
func (r Rule) IsRecurring() bool {
	return r.Freq != OneTime
}

// String serializes the rule back to an RRULE string. One-time rules
// serialize to "".
func (r Rule) String() string {
	if r.Freq == OneTime {
		return ""
	}

	var parts []string
	parts = append(parts, "FREQ="+freqNames[r.Freq])

	if len(r.ByDay) > 0 {
		var days []string
		for _, d := range r.ByDay {
			days = append(days, dayAbbrev[d])
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}

	if len(r.ByMonthDay) > 0 {
		var dates []string
		for _, d := range r.ByMonthDay {
			dates = append(dates, strconv.Itoa(d))
		}
		parts = append(parts, "BYMONTHDAY="+strings.Join(dates, ","))
	}

	return strings.Join(parts, ";")
}

// MarshalText encodes the rule as its RRULE string.
func (r Rule) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses an RRULE string.
func (r *Rule) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	switch r.Freq {
	case OneTime:
		return "One time"
	case Daily:
		return "Repeats daily"
	case Weekly:
		if len(r.ByDay) > 0 {
			var names []string
			for _, d := range r.ByDay {
				names = append(names, d.String()[:3])
			}
			return "Repeats weekly on " + strings.Join(names, ", ")
		}
		return "Repeats weekly"
	case Monthly:
		if len(r.ByMonthDay) > 0 {
			var dates []string
			for _, d := range r.ByMonthDay {
				dates = append(dates, ordinal(d))
			}
			return "Repeats monthly on the " + strings.Join(dates, ", ")
		}
		return "Repeats monthly"
	}
	return ""
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
