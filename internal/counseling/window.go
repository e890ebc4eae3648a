package counseling

import (
	"fmt"
	"time"
)

// SlotDuration is the only length a counseling slot may have.
const SlotDuration = time.Hour

// ValidateDateRange requires both dates and to not preceding from.
func ValidateDateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: both dates are required", ErrInvalidRange)
	}
	if to.Before(from) {
		return fmt.Errorf("%w: end date %s precedes start date %s", ErrInvalidRange,
			to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return nil
}

// ValidateSlotInterval requires both bounds, end strictly after start, and exactly one hour between them.
func ValidateSlotInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidInterval)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidInterval)
	}
	if d := end.Sub(start); d != SlotDuration {
		return fmt.Errorf("%w: counseling slots last exactly one hour, got %s", ErrInvalidInterval, d)
	}
	return nil
}

// ValidateNotPast rejects an interval that has already begun.
func ValidateNotPast(start, now time.Time) error {
	if start.Before(now) {
		return fmt.Errorf("%w: starts at %s", ErrPastSlot, start.Format(time.RFC3339))
	}
	return nil
}

// Overlaps is the half-open interval test: [aStart, aEnd) and [bStart, bEnd) share an instant.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q must be HH:MM", ErrInvalidInterval, s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On places the time of day on the calendar date of d in loc.
func (t TimeOfDay) On(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.In(loc).Date()
	return time.Date(y, m, day, t.Hour, t.Minute, 0, 0, loc)
}

// DateOf truncates t to midnight of its calendar date in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// dayBounds converts an inclusive date range into the half-open instant range [from 00:00, to+1 00:00).
func dayBounds(from, to time.Time, loc *time.Location) (time.Time, time.Time) {
	start := DateOf(from, loc)
	end := DateOf(to, loc).AddDate(0, 0, 1)
	return start, end
}

// nextOrSame returns the first date on or after d that falls on wd.
func nextOrSame(d time.Time, wd time.Weekday) time.Time {
	diff := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, diff)
}
