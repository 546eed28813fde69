package borrowing

import (
	"errors"
	"fmt"
	"time"

	"wiselib/api/internal/models"
)

var ErrLimitReached = errors.New("maximum borrowing limit reached")

type Rules struct {
	// ReturnHour is the local hour books are due back.
	ReturnHour       int
	OverdueAfterDays int
	FinePerDay       int
	MaxActive        int
	Location         *time.Location
}

func DefaultRules() Rules {
	return Rules{
		ReturnHour:       16,
		OverdueAfterDays: 7,
		FinePerDay:       10,
		MaxActive:        3,
		Location:         time.Local,
	}
}

// Zone is the library time zone, local time when unset.
func (r Rules) Zone() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

// DueDate applies the location rule: inside campus books are due the same
// afternoon (next afternoon when borrowed after the return hour), books taken
// outside are due the next afternoon.
func (r Rules) DueDate(borrowedAt time.Time, location models.BorrowLocation) time.Time {
	local := borrowedAt.In(r.Zone())
	due := time.Date(local.Year(), local.Month(), local.Day(), r.ReturnHour, 0, 0, 0, r.Zone())

	switch location {
	case models.BorrowOutside:
		return due.AddDate(0, 0, 1)
	default:
		if local.Hour() >= r.ReturnHour {
			return due.AddDate(0, 0, 1)
		}
		return due
	}
}

// BusinessDays counts weekdays from the start date to the end date, both
// inclusive. It is zero when end is not after start.
func (r Rules) BusinessDays(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	s := start.In(r.Zone())
	e := end.In(r.Zone())
	day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, r.Zone())
	last := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, r.Zone())

	count := 0
	for !day.After(last) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return count
}

type Overdue struct {
	IsOverdue    bool
	BusinessDays int
	CalendarDays int
	Fine         int
}

// Check evaluates a loan at the given moment, or at its return time when the
// book came back.
func (r Rules) Check(rec models.BorrowRecord, now time.Time) Overdue {
	at := now
	if rec.ReturnedAt != nil {
		at = *rec.ReturnedAt
	}

	out := Overdue{BusinessDays: r.BusinessDays(rec.DueAt, at)}
	if at.After(rec.DueAt) {
		hours := at.Sub(rec.DueAt).Hours()
		out.CalendarDays = int(hours / 24)
		if float64(out.CalendarDays*24) < hours {
			out.CalendarDays++
		}
	}
	out.IsOverdue = out.BusinessDays > r.OverdueAfterDays
	if out.IsOverdue {
		out.Fine = (out.BusinessDays - r.OverdueAfterDays) * r.FinePerDay
	}
	return out
}

func (r Rules) CanBorrow(active int) error {
	if active >= r.MaxActive {
		return fmt.Errorf("%w (%d books)", ErrLimitReached, r.MaxActive)
	}
	return nil
}

// Message is the short status line shown next to a loan.
func (r Rules) Message(o Overdue) string {
	if !o.IsOverdue {
		remaining := r.OverdueAfterDays - o.BusinessDays
		if remaining <= 2 {
			return fmt.Sprintf("Due soon: %d business day%s remaining", remaining, plural(remaining))
		}
		return fmt.Sprintf("%d business days remaining", remaining)
	}
	over := o.BusinessDays - r.OverdueAfterDays
	return fmt.Sprintf("OVERDUE: %d business day%s late", over, plural(over))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
