package util

import "time"

// TradingDaysPerYear is the conventional US equity trading-day count used for
// annualizing daily statistics.
const TradingDaysPerYear = 252

// MonthKey returns the calendar year-month bucket key for t, e.g. "2024-03".
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// IsTradingDay reports whether t falls on a weekday. Exchange holidays are
// not modelled; gaps in fetched data cover them.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PrevTradingDay returns the last weekday strictly before t.
func PrevTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LookbackStart returns a conservative calendar start date that covers at
// least days trading days of history before end. Weekends and holidays thin
// the calendar to roughly 252 trading days per 365, padded a little further
// for long holiday clusters.
func LookbackStart(end time.Time, days int) time.Time {
	calendar := days*365/TradingDaysPerYear + 10
	return end.AddDate(0, 0, -calendar)
}
