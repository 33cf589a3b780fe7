package nlquery

import (
	"fmt"
	"time"
)

// Relative tokens resolveTemporalFilter accepts (§4.13).
const (
	RelativeToday     = "today"
	RelativeYesterday = "yesterday"
	RelativeThisWeek  = "this_week"
	RelativeLastWeek  = "last_week"
	RelativeThisMonth = "this_month"
	RelativeLastMonth = "last_month"
	RelativeThisYear  = "this_year"
	RelativeLastYear  = "last_year"
)

// resolveTemporalFilter resolves a relative token against now (evaluated in
// loc, the caller's local timezone) to absolute Unix-second bounds. It is a
// pure function of (relative, now, loc): identical inputs always produce
// identical bounds, matching the parser's determinism requirement.
//
// gte is the start of the period. yesterday and last_week set lte to the
// start of the following period (today 00:00, this week's Sunday 00:00).
// last_month and last_year set lte to the last second of the period
// (23:59:59 on its final day), since the index store treats lte as
// inclusive. today, this_week, this_month and this_year set no upper bound
// (§4.13): they cover the period so far.
func resolveTemporalFilter(relative string, now time.Time, loc *time.Location) (gte, lte *int64, err error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	today := startOfDay(now, loc)

	switch relative {
	case RelativeToday:
		return unixPtr(today), nil, nil

	case RelativeYesterday:
		yesterday := today.AddDate(0, 0, -1)
		return unixPtr(yesterday), unixPtr(today), nil

	case RelativeThisWeek:
		weekStart := mostRecentSunday(today)
		return unixPtr(weekStart), nil, nil

	case RelativeLastWeek:
		weekStart := mostRecentSunday(today)
		lastWeekStart := weekStart.AddDate(0, 0, -7)
		return unixPtr(lastWeekStart), unixPtr(weekStart), nil

	case RelativeThisMonth:
		monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		return unixPtr(monthStart), nil, nil

	case RelativeLastMonth:
		monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		lastMonthStart := monthStart.AddDate(0, -1, 0)
		return unixPtr(lastMonthStart), unixPtr(monthStart.Add(-time.Second)), nil

	case RelativeThisYear:
		yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return unixPtr(yearStart), nil, nil

	case RelativeLastYear:
		yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc)
		lastYearStart := yearStart.AddDate(-1, 0, 0)
		return unixPtr(lastYearStart), unixPtr(yearStart.Add(-time.Second)), nil

	default:
		return nil, nil, fmt.Errorf("unknown relative temporal token %q", relative)
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// mostRecentSunday returns the Sunday 00:00 on or before day (day is
// already midnight-aligned).
func mostRecentSunday(day time.Time) time.Time {
	offset := int(day.Weekday()) // Sunday == 0
	return day.AddDate(0, 0, -offset)
}

func unixPtr(t time.Time) *int64 {
	v := t.Unix()
	return &v
}

// ExpandHourWindow turns an hour_of_day_gte/lte pair into the explicit set
// of hours it names, handling the wrap-around case (e.g. gte=22, lte=3
// means 22,23,0,1,2,3) the way C9's filter clauses can't: there is no
// ranged hour-of-day field in the index mapping, so the window is resolved
// here into a terms filter instead (§4.13). Exported so C14 can reuse the
// same resolution when it builds the hour_of_day filter.
func ExpandHourWindow(gte, lte int) []int {
	if gte <= lte {
		hours := make([]int, 0, lte-gte+1)
		for h := gte; h <= lte; h++ {
			hours = append(hours, h)
		}
		return hours
	}
	hours := make([]int, 0, (24-gte)+(lte+1))
	for h := gte; h < 24; h++ {
		hours = append(hours, h)
	}
	for h := 0; h <= lte; h++ {
		hours = append(hours, h)
	}
	return hours
}
