package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ISOLayout is the timestamp layout used in the persisted state.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

const dayLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// Date is a transaction timestamp. Older entries may carry a bare day
// ("2024-03-01"), so decoding accepts both forms.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an RFC 3339 timestamp or a yyyy-MM-dd day.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Date{Time: t.UTC()}, nil
	}
	if t, err := time.Parse(dayLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	return Date{}, ErrInvalidDate
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	return d.UTC().Format(ISOLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
