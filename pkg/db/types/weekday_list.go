package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/fieldsync/pkg/enums"
)

// WeekdayList is an ordered set of visit days persisted as "mon,wed,fri".
type WeekdayList []enums.Weekday

// NewWeekdayList parses, dedups and orders the provided days.
func NewWeekdayList(days ...string) (WeekdayList, error) {
	seen := make(map[enums.Weekday]struct{}, len(days))
	out := make(WeekdayList, 0, len(days))
	for _, raw := range days {
		day, err := enums.ParseWeekday(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, err
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal() < out[j].Ordinal() })
	return out, nil
}

func (w *WeekdayList) Scan(src any) error {
	if src == nil {
		*w = nil
		return nil
	}

	switch v := src.(type) {
	case string:
		return w.parseFromString(v)
	case []byte:
		return w.parseFromString(string(v))
	default:
		return fmt.Errorf("WeekdayList: unsupported Scan type %T", src)
	}
}

func (w WeekdayList) Value() (driver.Value, error) {
	if len(w) == 0 {
		return nil, nil
	}
	return w.String(), nil
}

func (w WeekdayList) String() string {
	parts := make([]string, 0, len(w))
	for _, day := range w {
		parts = append(parts, day.String())
	}
	return strings.Join(parts, ",")
}

// Contains reports whether day is one of the visit days.
func (w WeekdayList) Contains(day enums.Weekday) bool {
	for _, d := range w {
		if d == day {
			return true
		}
	}
	return false
}

func (w *WeekdayList) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("WeekdayList: %w", err)
	}
	parsed, err := NewWeekdayList(raw...)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

func (w *WeekdayList) parseFromString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*w = nil
		return nil
	}
	parsed, err := NewWeekdayList(strings.Split(s, ",")...)
	if err != nil {
		return fmt.Errorf("WeekdayList: %w", err)
	}
	*w = parsed
	return nil
}
