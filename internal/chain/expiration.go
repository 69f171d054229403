package chain

import (
	"time"

	"github.com/scmhub/calendar"
)

// BusinessCalendar reports exchange trading days.
type BusinessCalendar interface {
	IsBusinessDay(t time.Time) bool
}

// maxListingWeeks bounds the search against a calendar with no open sessions.
const maxListingWeeks = 53

var newYork = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// NYSE returns the New York Stock Exchange holiday calendar.
func NYSE() BusinessCalendar {
	return calendar.XNYS()
}

// NextExpiration returns the next standard listed expiration after from: the
// first weekday strictly after from's date, moved back to the preceding
// trading day when the exchange is closed. A listing that would move back
// onto or before from's date is skipped in favour of the following week.
// The result is midnight of the expiration date in from's location.
func NextExpiration(from time.Time, weekday time.Weekday, cal BusinessCalendar) time.Time {
	y, m, d := from.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, from.Location())

	ahead := (int(weekday) - int(today.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	candidate := today.AddDate(0, 0, ahead)

	for week := 0; week < maxListingWeeks; week++ {
		listed := candidate
		for !isTradingDay(cal, listed) && listed.After(today) {
			listed = listed.AddDate(0, 0, -1)
		}
		if listed.After(today) {
			return listed
		}
		candidate = candidate.AddDate(0, 0, 7)
	}
	return today.AddDate(0, 0, ahead)
}

func isTradingDay(cal BusinessCalendar, day time.Time) bool {
	if cal == nil {
		return day.Weekday() != time.Saturday && day.Weekday() != time.Sunday
	}
	// exchange calendars match on the session date, so ask about midday in New York
	y, m, d := day.Date()
	return cal.IsBusinessDay(time.Date(y, m, d, 12, 0, 0, 0, newYork))
}
