package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Weekday is a normalized lower-case weekday name.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var ErrInvalidWeekday = errors.New("invalid weekday")

var weekdayOrder = map[Weekday]int{
	Monday:    1,
	Tuesday:   2,
	Wednesday: 3,
	Thursday:  4,
	Friday:    5,
	Saturday:  6,
	Sunday:    7,
}

// ParseWeekday accepts any casing and stores the lower-case form.
func ParseWeekday(value string) (Weekday, error) {
	day := Weekday(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := weekdayOrder[day]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidWeekday, value)
	}
	return day, nil
}

// Order returns the 1-7 position used for day-then-time sorting, Monday first.
func (d Weekday) Order() int {
	return weekdayOrder[d]
}

func (d Weekday) String() string {
	return string(d)
}
