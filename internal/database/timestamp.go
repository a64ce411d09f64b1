package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeLayout is how timestamps are written to both dialects.  The fixed width
// keeps SQLite's text comparison in step with MySQL's DATETIME(3) ordering.
const TimeLayout = "2006-01-02 15:04:05.000"

// TS formats t for use as a query argument.
func TS(t time.Time) string { return t.UTC().Format(TimeLayout) }

var parseLayouts = []string{
	TimeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Time scans DATETIME columns from MySQL (time.Time) and SQLite (text).
type Time struct {
	time.Time
}

func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
	case string:
		p, err := parseTime(v)
		if err != nil {
			return err
		}
		t.Time = p
	case []byte:
		p, err := parseTime(string(v))
		if err != nil {
			return err
		}
		t.Time = p
	case nil:
		t.Time = time.Time{}
	default:
		return fmt.Errorf("cannot scan %T into database.Time", src)
	}
	return nil
}

func (t Time) Value() (driver.Value, error) { return TS(t.Time), nil }

// NullTime is the nullable variant of Time.
type NullTime struct {
	Time  time.Time
	Valid bool
}

func (n *NullTime) Scan(src any) error {
	if src == nil {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	var t Time
	if err := t.Scan(src); err != nil {
		return err
	}
	n.Time, n.Valid = t.Time, true
	return nil
}

func (n NullTime) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return TS(n.Time), nil
}

// Ptr returns nil for an invalid value.
func (n NullTime) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
