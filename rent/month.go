package rent

import (
	"fmt"
	"time"
)

// Month is a calendar month. It is the unit of rent accrual and the key of
// a rollover period.
type Month struct {
	Year  int
	Month time.Month
}

const monthLayout = "2006-01"

// MonthOf returns the calendar month containing t, in t's location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// NewMonth builds a Month from a year and month.
func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// ParseMonth parses a "YYYY-MM" period key.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return MonthOf(t), nil
}

// index counts months since year 0 so two months can be subtracted.
func (m Month) index() int { return m.Year*12 + int(m.Month) - 1 }

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }
func (m Month) Before(other Month) bool { return m.index() < other.index() }
func (m Month) After(other Month) bool { return m.index() > other.index() }
func (m Month) Equal(other Month) bool { return m.index() == other.index() }
func (m Month) AddMonths(n int) Month { return MonthOf(m.Start().AddDate(0, n, 0)) }
func (m Month) Start() time.Time { return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC) }
func (m Month) MonthsUntil(later Month) int { return later.index() - m.index() }

func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MonthsElapsed counts lease months from start to now, inclusive of the start
// month. Day-of-month is ignored. The result is not clamped: a lease starting
// after now yields zero or a negative count.
func MonthsElapsed(start, now time.Time) int {
	return MonthOf(start).MonthsUntil(MonthOf(now)) + 1
}
