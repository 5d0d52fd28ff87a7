package enums

import "fmt"

// Weekday is a visit day. Sunday is never a visit day.
type Weekday string

const (
	WeekdayMon Weekday = "mon"
	WeekdayTue Weekday = "tue"
	WeekdayWed Weekday = "wed"
	WeekdayThu Weekday = "thu"
	WeekdayFri Weekday = "fri"
	WeekdaySat Weekday = "sat"
)

var validWeekdays = []Weekday{
	WeekdayMon,
	WeekdayTue,
	WeekdayWed,
	WeekdayThu,
	WeekdayFri,
	WeekdaySat,
}

func (w Weekday) String() string {
	return string(w)
}

func (w Weekday) IsValid() bool {
	return w.Ordinal() >= 0
}

// Ordinal returns the position in the working week, or -1 when unknown.
func (w Weekday) Ordinal() int {
	for i, candidate := range validWeekdays {
		if candidate == w {
			return i
		}
	}
	return -1
}

// ParseWeekday converts raw input into a Weekday.
func ParseWeekday(value string) (Weekday, error) {
	for _, candidate := range validWeekdays {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid weekday %q", value)
}
