package periods

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
)

// Period is an inclusive date interval. Boundaries are compared on UTC
// calendar days, so two periods touching on the same day overlap.
type Period struct {
	Start time.Time
	End   time.Time
}

// RunPeriod pairs an existing run id with its period for overlap checks.
type RunPeriod struct {
	ID    uuid.UUID
	Start time.Time
	End   time.Time
}

// Validate fails when end is not strictly after start.
func Validate(start, end time.Time) error {
	if !end.After(start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "period end must be after period start")
	}
	return nil
}

// Overlap reports whether two inclusive intervals intersect: either boundary
// of one lies within the other, or one contains the other.
func Overlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	a0, a1 := dateOf(aStart), dateOf(aEnd)
	b0, b1 := dateOf(bStart), dateOf(bEnd)
	return !a1.Before(b0) && !b1.Before(a0)
}

// CheckNoOverlap rejects a candidate period that overlaps any existing run.
// excludeID skips one run, which edit flows use to ignore the run itself.
func CheckNoOverlap(existing []RunPeriod, start, end time.Time, excludeID uuid.UUID) error {
	for _, run := range existing {
		if excludeID != uuid.Nil && run.ID == excludeID {
			continue
		}
		if Overlap(run.Start, run.End, start, end) {
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("period %s to %s overlaps run %s (%s to %s)",
					dateOf(start).Format(time.DateOnly), dateOf(end).Format(time.DateOnly),
					run.ID, dateOf(run.Start).Format(time.DateOnly), dateOf(run.End).Format(time.DateOnly)))
		}
	}
	return nil
}

// Monthly returns the twelve calendar-month periods of a year.
func Monthly(year int) []Period {
	out := make([]Period, 0, 12)
	for month := time.January; month <= time.December; month++ {
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
		out = append(out, Period{Start: start, End: end})
	}
	return out
}

// Quarterly returns the four calendar quarters of a year.
func Quarterly(year int) []Period {
	out := make([]Period, 0, 4)
	for q := 0; q < 4; q++ {
		start := time.Date(year, time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 3, 0).AddDate(0, 0, -1)
		out = append(out, Period{Start: start, End: end})
	}
	return out
}

// Fiscal returns twelve month-long periods anchored at the configured fiscal
// start month/day. The fiscal year beginning in `year` ends in the next
// calendar year when the anchor is not January 1st.
func Fiscal(year int, startMonth time.Month, startDay int) ([]Period, error) {
	if startMonth < time.January || startMonth > time.December {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fiscal start month out of range")
	}
	if startDay < 1 || startDay > 28 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fiscal start day must be between 1 and 28")
	}
	out := make([]Period, 0, 12)
	anchor := time.Date(year, startMonth, startDay, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		next := anchor.AddDate(0, 1, 0)
		out = append(out, Period{Start: anchor, End: next.AddDate(0, 0, -1)})
		anchor = next
	}
	return out, nil
}

// Days returns the inclusive calendar-day count of a period, or 0 when the
// interval is inverted.
func Days(start, end time.Time) int {
	s, e := dateOf(start), dateOf(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// OverlapDays clamps the entity interval to the period and returns the
// inclusive day count of the intersection, or 0 when disjoint. The result
// never exceeds Days(periodStart, periodEnd).
func OverlapDays(entityStart, entityEnd, periodStart, periodEnd time.Time) int {
	s := dateOf(entityStart)
	e := dateOf(entityEnd)
	ps := dateOf(periodStart)
	pe := dateOf(periodEnd)

	if s.Before(ps) {
		s = ps
	}
	if e.After(pe) {
		e = pe
	}
	if e.Before(s) {
		return 0
	}
	return Days(s, e)
}

func dateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
