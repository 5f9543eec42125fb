package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date carried as time.Time. JSON uses YYYY-MM-DD but
// full timestamps are accepted on input.
type Date time.Time

// acceptedLayouts lists what clients have been seen to send, most specific first.
var acceptedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	dateLayout,
}

// NewDate truncates t to midnight UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// ParseDate parses any accepted layout.
func ParseDate(s string) (Date, error) {
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	return Date{}, fmt.Errorf("cannot parse date %q", s)
}

func (d Date) Time() time.Time { return time.Time(d) }

func (d Date) IsZero() bool { return time.Time(d).IsZero() }

func (d Date) String() string { return time.Time(d).Format(dateLayout) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("Date.UnmarshalJSON: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("Date.UnmarshalJSON: %w", err)
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(d.String())
}

// Value stores the date as a timestamp at midnight UTC.
func (d Date) Value() (driver.Value, error) {
	return time.Time(d), nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v)
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return fmt.Errorf("Date.Scan: %w", err)
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return fmt.Errorf("Date.Scan: %w", err)
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("Date.Scan: unsupported type %T", src)
	}
}
