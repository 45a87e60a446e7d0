package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEmptyName      = errors.New("model: reminder name is required")
	ErrInvalidWeekday = errors.New("model: invalid weekday")
)

// Weekday uses the 1..7 encoding, 1 being Sunday and 7 Saturday.
type Weekday int

const (
	Sunday Weekday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func (d Weekday) IsValid() bool {
	return d >= Sunday && d <= Saturday
}

func (d Weekday) String() string {
	if !d.IsValid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d-1]
}

// AllWeekdays is the expansion of the empty "every day" set.
func AllWeekdays() []Weekday {
	return []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}
}

// ParseWeekday accepts a number 1..7 or an English day name or prefix of at
// least three letters.
func ParseWeekday(raw string) (Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) == 1 && s[0] >= '1' && s[0] <= '7' {
		return Weekday(s[0] - '0'), nil
	}
	if len(s) >= 3 {
		for i := range weekdayFullNames {
			if strings.HasPrefix(strings.ToLower(weekdayFullNames[i]), s) {
				return Weekday(i + 1), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, raw)
}

var weekdayFullNames = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

type Reminder struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Dose            string    `json:"dose"`
	Time            string    `json:"time"`
	Weekdays        []Weekday `json:"weekdays"`
	Notes           string    `json:"notes,omitempty"`
	Enabled         bool      `json:"enabled"`
	ExternalHandles []string  `json:"externalHandles"`
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if _, err := ParseClock(r.Time); err != nil {
		return err
	}
	return ValidateWeekdays(r.Weekdays)
}

// Daily reports whether the reminder uses the empty "every day" sentinel.
func (r Reminder) Daily() bool {
	return len(r.Weekdays) == 0
}

// Clone returns a copy that shares no slices with r.
func (r Reminder) Clone() Reminder {
	out := r
	if r.Weekdays != nil {
		out.Weekdays = append(make([]Weekday, 0, len(r.Weekdays)), r.Weekdays...)
	}
	if r.ExternalHandles != nil {
		out.ExternalHandles = append(make([]string, 0, len(r.ExternalHandles)), r.ExternalHandles...)
	}
	return out
}

func ValidateWeekdays(days []Weekday) error {
	seen := make(map[Weekday]bool, len(days))
	for _, d := range days {
		if !d.IsValid() {
			return fmt.Errorf("%w: %d", ErrInvalidWeekday, int(d))
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate %s", ErrInvalidWeekday, d)
		}
		seen[d] = true
	}
	return nil
}

// SortWeekdays returns a sorted copy of days, never nil.
func SortWeekdays(days []Weekday) []Weekday {
	out := append(make([]Weekday, 0, len(days)), days...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Name     *string
	Dose     *string
	Time     *string
	Weekdays *[]Weekday
	Notes    *string
}

func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Dose == nil && p.Time == nil && p.Weekdays == nil && p.Notes == nil
}

// TouchesSchedule reports whether applying p changes anything the external
// registrations depend on.
func (p Patch) TouchesSchedule() bool {
	return p.Name != nil || p.Dose != nil || p.Time != nil || p.Weekdays != nil
}

func (p Patch) Apply(r Reminder) Reminder {
	out := r.Clone()
	if p.Name != nil {
		out.Name = strings.TrimSpace(*p.Name)
	}
	if p.Dose != nil {
		out.Dose = *p.Dose
	}
	if p.Time != nil {
		out.Time = strings.TrimSpace(*p.Time)
	}
	if p.Weekdays != nil {
		out.Weekdays = SortWeekdays(*p.Weekdays)
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	return out
}
