package core

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleOnce is the reserved one-shot marker: fire once, as soon as the
// task is eligible, then never again.
const ScheduleOnce = "@once"

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseSchedule validates a schedule expression: either the one-shot
// marker or a 5/6-field cron expression. Returns a ScheduleParseError on
// anything else.
func ParseSchedule(expr string) (cron.Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == ScheduleOnce {
		return nil, nil
	}
	schedule, err := cronParser.Parse(trimmed)
	if err != nil {
		return nil, &ScheduleParseError{Expr: expr, Err: err}
	}
	return schedule, nil
}

// NextOccurrence returns the earliest firing time strictly after the given
// reference, or nil when the schedule is exhausted. For the one-shot
// marker the task is due immediately until it has fired, then never
// again. Pure: the same (expr, after, alreadyFired) always yields the
// same result.
func NextOccurrence(expr string, after time.Time, alreadyFired bool) (*time.Time, error) {
	if strings.TrimSpace(expr) == ScheduleOnce {
		if alreadyFired {
			return nil, nil
		}
		at := after
		return &at, nil
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	next := schedule.Next(after)
	if next.IsZero() {
		return nil, nil
	}
	return &next, nil
}

// NextOccurrences returns the next n firing times of a cron schedule from
// a base time. Used by the preview surfaces.
func NextOccurrences(schedule cron.Schedule, base time.Time, n int) []time.Time {
	times := make([]time.Time, 0, n)
	next := base
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		times = append(times, next)
	}
	return times
}
