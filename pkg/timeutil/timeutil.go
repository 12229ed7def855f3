// Package timeutil provides timezone utilities for the Beijing timezone (UTC+8).
// All course timestamps served by the enrollment system are wall-clock times in
// Beijing, transmitted in the "2006-01-02 15:04:05" layout with no zone marker.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// BeijingTZ is the Beijing timezone (UTC+8, no DST).
var BeijingTZ = time.FixedZone("Asia/Shanghai", 8*60*60)

// CourseTimeLayout is the wire layout of every course timestamp.
const CourseTimeLayout = "2006-01-02 15:04:05"

// Now returns the current time in Beijing timezone.
func Now() time.Time {
	return time.Now().In(BeijingTZ)
}

// ToBeijing converts a time to Beijing timezone.
func ToBeijing(t time.Time) time.Time {
	return t.In(BeijingTZ)
}

// ParseCourseTime parses a wire timestamp as Beijing wall-clock time.
// An empty string parses to the zero time without error, since optional date
// fields arrive as "" from the catalog.
func ParseCourseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(CourseTimeLayout, s, BeijingTZ)
}

// FormatCourseTime renders a time in the wire layout, in Beijing timezone.
func FormatCourseTime(t time.Time) string {
	return t.In(BeijingTZ).Format(CourseTimeLayout)
}

// DateTime creates a time in Beijing timezone with the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, BeijingTZ)
}
