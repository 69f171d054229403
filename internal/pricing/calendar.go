package pricing

import "time"

// DaysBetween returns the whole calendar days from from's date to to's date.
// Each date is read in its own location since expirations are calendar dates.
func DaysBetween(from, to time.Time) int {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// YearFraction converts calendar days to the T used by the model.
func YearFraction(days int) float64 {
	return float64(days) / DaysPerYear
}
