package reminder

import "time"

// NextOccurrence returns the due time that follows dueAt.
//
// Daily and weekly add calendar days, so the wall-clock time is kept in
// dueAt's location across DST changes. Monthly adds one calendar month and
// clamps the day to the last day of the target month: Jan 31 becomes
// Feb 28 (Feb 29 in leap years) and Mar 31 becomes Apr 30. The clamped day
// sticks, so the occurrence after Feb 28 is Mar 28.
//
// ok is false for RecurNone.
func NextOccurrence(dueAt time.Time, rec Recurrence) (next time.Time, ok bool) {
	switch rec {
	case RecurDaily:
		return dueAt.AddDate(0, 0, 1), true
	case RecurWeekly:
		return dueAt.AddDate(0, 0, 7), true
	case RecurMonthly:
		return addMonthClamped(dueAt, 1), true
	default:
		return time.Time{}, false
	}
}

func addMonthClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	loc := t.Location()

	// Day 1 of the target month never overflows.
	first := time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), loc)
	if last := daysIn(first.Year(), first.Month(), loc); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), loc)
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	// Day 0 of the next month is the last day of m.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
