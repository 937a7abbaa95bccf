package billing

import "time"

// CycleRange computes the one-month billing window containing now, anchored
// to the anchor's day-of-month and time-of-day. When the anchor day does not
// exist in a target month (the 31st in February), the boundary clamps to that
// month's last day. If now precedes the anchor the first cycle is returned.
// The end bound is exclusive. Pure function.
func CycleRange(anchor, now time.Time) (start, end time.Time) {
	anchor = anchor.UTC()
	now = now.UTC()

	if now.Before(anchor) {
		return anchor, addMonthsClamped(anchor, 1)
	}

	// First guess from the calendar month difference, then correct. The
	// clamping makes the guess off by at most one in either direction.
	months := (now.Year()-anchor.Year())*12 + int(now.Month()-anchor.Month())
	if months < 0 {
		months = 0
	}

	start = addMonthsClamped(anchor, months)
	for start.After(now) {
		months--
		start = addMonthsClamped(anchor, months)
	}
	for {
		next := addMonthsClamped(anchor, months+1)
		if next.After(now) {
			return start, next
		}
		months++
		start = next
	}
}

// addMonthsClamped shifts the anchor by whole months, clamping the
// day-of-month to the target month's length instead of letting it spill over
// the way time.AddDate does.
func addMonthsClamped(anchor time.Time, months int) time.Time {
	year, month, day := anchor.Date()
	hour, minute, sec := anchor.Clock()

	totalMonth := int(month) - 1 + months
	targetYear := year + totalMonth/12
	targetMonth := time.Month(totalMonth%12 + 1)
	if totalMonth < 0 {
		// Go's integer division truncates toward zero; normalize.
		targetYear = year + (totalMonth-11)/12
		targetMonth = time.Month((totalMonth%12+12)%12 + 1)
	}

	if max := daysIn(targetYear, targetMonth); day > max {
		day = max
	}
	return time.Date(targetYear, targetMonth, day, hour, minute, sec, anchor.Nanosecond(), time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
