package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const localTimeLayout = "2006-01-02 15:04:05"

// LocalTime marshals as "2006-01-02 15:04:05" in local time and stores as a
// native timestamp.
type LocalTime time.Time

func FromTime(t time.Time) LocalTime {
	return LocalTime(t)
}

func (t LocalTime) ToTime() time.Time {
	return time.Time(t)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Time(t).Format(localTimeLayout))), nil
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*t = LocalTime(time.Time{})
		return nil
	}
	parsed, err := time.ParseInLocation(`"`+localTimeLayout+`"`, s, time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}

func (t LocalTime) Value() (driver.Value, error) {
	return time.Time(t), nil
}

func (t *LocalTime) Scan(v interface{}) error {
	switch val := v.(type) {
	case time.Time:
		*t = LocalTime(val)
		return nil
	case []byte:
		parsed, err := time.ParseInLocation(localTimeLayout, string(val), time.Local)
		if err != nil {
			return err
		}
		*t = LocalTime(parsed)
		return nil
	case string:
		parsed, err := time.ParseInLocation(localTimeLayout, val, time.Local)
		if err != nil {
			return err
		}
		*t = LocalTime(parsed)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into LocalTime", v)
	}
}
