package domain

import "time"

// Window is a fixed-duration trailing interval ending at the reference time.
// The interval is half-open: (now − duration, now].
type Window struct {
	Label string
	Days  int
}

// Windows lists the report windows in ascending duration order.
// Windows are nested: a record in 1M is also in 3M, 6M and 12M.
var Windows = []Window{
	{Label: "1M", Days: 30},
	{Label: "3M", Days: 90},
	{Label: "6M", Days: 180},
	{Label: "12M", Days: 365},
}

// MonthsPerYear is the fixed divisor for monthly averages over the 12M
// window. The average divides by 12 regardless of how many months of
// history the wallet actually has.
const MonthsPerYear = 12

// Cutoff returns the exclusive lower bound of the window.
func (w Window) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -w.Days)
}

// Contains reports whether ts falls within (now − duration, now].
func (w Window) Contains(ts, now time.Time) bool {
	return ts.After(w.Cutoff(now)) && !ts.After(now)
}
