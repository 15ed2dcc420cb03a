package service

import "time"

// Clock abstracts the current time so pull windowing is testable and nothing
// mutates process-global timezone state.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// PullWindowStart returns the start of yesterday's midnight in loc, as epoch
// milliseconds.
//
// The cutoff deliberately reaches back one full calendar day: tablet clocks
// and the server clock can disagree across timezones, and a record that is
// "today" on the tablet must never fall outside the pull window. Records with
// no exit time are included by the query regardless of this cutoff.
func PullWindowStart(now time.Time, loc *time.Location) int64 {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, -1).UnixMilli()
}
