package timeutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrClockFormat = errors.New("invalid clock time, expected HH:MM")

// ClockTime is a minute-of-day offset within a provider's local day.
// Valid values run from 0 (00:00) to 1440 (24:00, end of day only).
type ClockTime int

const EndOfDay ClockTime = 24 * 60

// ParseClock parses a 24h "HH:MM" string. "24:00" is accepted so that an
// interval can end at midnight. All four digit positions are checked, so a
// trailing non-digit like "10:3x" is rejected rather than read as "10:03".
func ParseClock(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrClockFormat, s)
	}
	for _, i := range [...]int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrClockFormat, s)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 24 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrClockFormat, s)
	}
	return ClockTime(h*60 + m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrClockFormat, data)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Interval is a half-open [Start, End) range within a single day.
type Interval struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

func (iv Interval) Valid() bool {
	return iv.Start >= 0 && iv.End <= EndOfDay && iv.Start < iv.End
}

func (iv Interval) Minutes() int {
	return int(iv.End - iv.Start)
}

// Overlaps reports whether the two ranges share any time. Touching
// endpoints do not count: [09:00,09:30) and [09:30,10:00) are disjoint.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// Contains reports whether other lies fully inside iv.
func (iv Interval) Contains(other Interval) bool {
	return iv.Start <= other.Start && other.End <= iv.End
}

// Subtract removes cut from iv and returns the 0, 1 or 2 remaining pieces.
func (iv Interval) Subtract(cut Interval) []Interval {
	if !iv.Overlaps(cut) {
		return []Interval{iv}
	}
	var out []Interval
	if iv.Start < cut.Start {
		out = append(out, Interval{Start: iv.Start, End: cut.Start})
	}
	if cut.End < iv.End {
		out = append(out, Interval{Start: cut.End, End: iv.End})
	}
	return out
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a "YYYY-MM-DD" calendar date. The result carries no
// clock component; all in-day arithmetic uses ClockTime.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date, expected YYYY-MM-DD: %q", s)
	}
	return d, nil
}

// DateOnly strips the clock component from t.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
