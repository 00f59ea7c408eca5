package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Type is a period type as reported by dataset metadata.
type Type string

const (
	Daily      Type = "Daily"
	Weekly     Type = "Weekly"
	Monthly    Type = "Monthly"
	Quarterly  Type = "Quarterly"
	SixMonthly Type = "SixMonthly"
	Yearly     Type = "Yearly"
)

// DateLayout is the date format used in API query parameters.
const DateLayout = "2006-01-02"

// Period is a single period of a given type, identified by its first day.
type Period struct {
	Type  Type
	Start time.Time
}

// ID renders the platform identifier of p.
func (p Period) ID() string {
	s := p.Start
	switch p.Type {
	case Daily:
		return s.Format("20060102")
	case Weekly:
		y, w := s.ISOWeek()
		return fmt.Sprintf("%dW%d", y, w)
	case Monthly:
		return s.Format("200601")
	case Quarterly:
		return fmt.Sprintf("%dQ%d", s.Year(), (int(s.Month())-1)/3+1)
	case SixMonthly:
		return fmt.Sprintf("%dS%d", s.Year(), (int(s.Month())-1)/6+1)
	default:
		return strconv.Itoa(s.Year())
	}
}

// End returns the last day of p.
func (p Period) End() time.Time {
	return p.next().Start.AddDate(0, 0, -1)
}

func (p Period) next() Period { return p.shift(1) }

func (p Period) shift(n int) Period {
	s := p.Start
	switch p.Type {
	case Daily:
		s = s.AddDate(0, 0, n)
	case Weekly:
		s = s.AddDate(0, 0, 7*n)
	case Monthly:
		s = s.AddDate(0, n, 0)
	case Quarterly:
		s = s.AddDate(0, 3*n, 0)
	case SixMonthly:
		s = s.AddDate(0, 6*n, 0)
	default:
		s = s.AddDate(n, 0, 0)
	}
	return Period{Type: p.Type, Start: s}
}

// Containing returns the period of type t that contains day.
func Containing(t Type, day time.Time) (Period, error) {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	switch t {
	case Daily:
		return Period{t, d}, nil
	case Weekly:
		offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
		return Period{t, d.AddDate(0, 0, -offset)}, nil
	case Monthly:
		return Period{t, firstOfMonth(d.Year(), d.Month())}, nil
	case Quarterly:
		m := time.Month((int(d.Month())-1)/3*3 + 1)
		return Period{t, firstOfMonth(d.Year(), m)}, nil
	case SixMonthly:
		m := time.Month((int(d.Month())-1)/6*6 + 1)
		return Period{t, firstOfMonth(d.Year(), m)}, nil
	case Yearly:
		return Period{t, firstOfMonth(d.Year(), time.January)}, nil
	}
	return Period{}, fmt.Errorf("period: unsupported period type %q", t)
}

// Previous returns the n periods of type t immediately before the period
// containing now, in ascending order. The current period is excluded.
func Previous(t Type, now time.Time, n int) ([]Period, error) {
	cur, err := Containing(t, now)
	if err != nil {
		return nil, err
	}
	out := make([]Period, n)
	for i := 0; i < n; i++ {
		out[i] = cur.shift(i - n)
	}
	return out, nil
}

// Window returns the first and last day covered by periods, which must be
// in ascending order.
func Window(periods []Period) (start, end time.Time) {
	if len(periods) == 0 {
		return time.Time{}, time.Time{}
	}
	return periods[0].Start, periods[len(periods)-1].End()
}

var (
	reDaily     = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	reWeekly    = regexp.MustCompile(`^(\d{4})W(\d{1,2})$`)
	reMonthly   = regexp.MustCompile(`^(\d{4})(\d{2})$`)
	reQuarterly = regexp.MustCompile(`^(\d{4})Q([1-4])$`)
	reSix       = regexp.MustCompile(`^(\d{4})S([12])$`)
	reYearly    = regexp.MustCompile(`^(\d{4})$`)
)

// Parse decodes a period identifier.
func Parse(id string) (Period, error) {
	atoi := func(s string) int { n, _ := strconv.Atoi(s); return n }
	switch {
	case reDaily.MatchString(id):
		m := reDaily.FindStringSubmatch(id)
		d := time.Date(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]), 0, 0, 0, 0, time.UTC)
		if d.Format("20060102") != id {
			return Period{}, fmt.Errorf("period: invalid day %q", id)
		}
		return Period{Daily, d}, nil
	case reWeekly.MatchString(id):
		m := reWeekly.FindStringSubmatch(id)
		year, week := atoi(m[1]), atoi(m[2])
		if week < 1 || week > 53 {
			return Period{}, fmt.Errorf("period: invalid week %q", id)
		}
		// ISO week 1 contains January 4th.
		jan4, _ := Containing(Weekly, time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC))
		p := jan4.shift(week - 1)
		if y, _ := p.Start.ISOWeek(); y != year {
			return Period{}, fmt.Errorf("period: invalid week %q", id)
		}
		return p, nil
	case reMonthly.MatchString(id):
		m := reMonthly.FindStringSubmatch(id)
		month := atoi(m[2])
		if month < 1 || month > 12 {
			return Period{}, fmt.Errorf("period: invalid month %q", id)
		}
		return Period{Monthly, firstOfMonth(atoi(m[1]), time.Month(month))}, nil
	case reQuarterly.MatchString(id):
		m := reQuarterly.FindStringSubmatch(id)
		return Period{Quarterly, firstOfMonth(atoi(m[1]), time.Month((atoi(m[2])-1)*3+1))}, nil
	case reSix.MatchString(id):
		m := reSix.FindStringSubmatch(id)
		return Period{SixMonthly, firstOfMonth(atoi(m[1]), time.Month((atoi(m[2])-1)*6+1))}, nil
	case reYearly.MatchString(id):
		return Period{Yearly, firstOfMonth(atoi(id), time.January)}, nil
	}
	return Period{}, fmt.Errorf("period: unrecognised identifier %q", id)
}

func firstOfMonth(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// Duration is a calendar look-back such as "12 months".
type Duration struct {
	N    int
	Unit string // days | weeks | months | years
}

var reDuration = regexp.MustCompile(`^(\d+)\s*([a-z]+)$`)

// ParseDuration parses "<n> <unit>" where unit is day(s), week(s), month(s)
// or year(s).
func ParseDuration(s string) (Duration, error) {
	m := reDuration.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return Duration{}, fmt.Errorf("period: invalid duration %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Duration{}, fmt.Errorf("period: invalid duration %q", s)
	}
	unit := strings.TrimSuffix(m[2], "s")
	switch unit {
	case "day", "week", "month", "year":
	default:
		return Duration{}, fmt.Errorf("period: unknown duration unit %q", m[2])
	}
	return Duration{N: n, Unit: unit + "s"}, nil
}

// Before returns the day d before now.
func (d Duration) Before(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch d.Unit {
	case "days":
		return day.AddDate(0, 0, -d.N)
	case "weeks":
		return day.AddDate(0, 0, -7*d.N)
	case "months":
		return day.AddDate(0, -d.N, 0)
	default:
		return day.AddDate(-d.N, 0, 0)
	}
}
