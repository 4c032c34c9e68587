// Package models defines the job types shared by the clip engine and its
// GORM-backed history.
package models

import (
	"crypto/rand"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID identifies a job. It sorts by creation time and is stored as text.
type ULID ulid.ULID

// NewULID generates a new ULID from the current time and crypto/rand.
func NewULID() ULID {
	return ULID(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader))
}

// ParseULID reads the 26 character Crockford form used in URLs.
func ParseULID(s string) (ULID, error) {
	var u ULID
	if s == "" {
		return u, fmt.Errorf("invalid ULID: empty")
	}
	if err := u.UnmarshalText([]byte(s)); err != nil {
		return ULID{}, fmt.Errorf("invalid ULID %q: %w", s, err)
	}
	return u, nil
}

func (u ULID) String() string {
	return ulid.ULID(u).String()
}

// IsZero reports whether the ULID is unset.
func (u ULID) IsZero() bool {
	return u == ULID{}
}

// Time returns the timestamp encoded in the ULID.
func (u ULID) Time() time.Time {
	return ulid.Time(ulid.ULID(u).Time())
}

// Value implements driver.Valuer.
func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// Scan accepts the text form written by Value, as string or bytes.
func (u *ULID) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*u = ULID{}
		return nil
	case string:
		return u.UnmarshalText([]byte(v))
	case []byte:
		return u.UnmarshalText(v)
	}
	return fmt.Errorf("scanning ULID: unsupported type %T", value)
}

// MarshalText writes nothing for the zero value; JSON gets "".
func (u ULID) MarshalText() ([]byte, error) {
	if u.IsZero() {
		return []byte{}, nil
	}
	return []byte(u.String()), nil
}

func (u *ULID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = ULID{}
		return nil
	}
	id, err := ulid.ParseStrict(string(data))
	if err != nil {
		return fmt.Errorf("scanning ULID: %w", err)
	}
	*u = ULID(id)
	return nil
}

// GormDataType stores IDs as their text form so rows sort by creation time.
func (ULID) GormDataType() string {
	return "varchar(26)"
}
