package bookings

import (
	"errors"
	"time"
)

// Booking is a reserved time slot on the shared resource. Intervals are
// half-open: [StartAt, EndAt). GoogleEventID is empty until a mirror event
// has been created and its id recorded.
type Booking struct {
	ID            string
	OwnerID       string
	Title         string
	StartAt       time.Time
	EndAt         time.Time
	GoogleEventID string

	CreatedAt time.Time
}

var (
	// ErrInvalid rejects a malformed booking request (empty title,
	// start >= end, start in the past).
	ErrInvalid = errors.New("invalid booking")

	// ErrLocalConflict rejects an interval that overlaps a stored booking.
	ErrLocalConflict = errors.New("conflicts with an existing booking")

	// ErrExternalConflict rejects an interval that overlaps an event on the
	// owner's connected calendar.
	ErrExternalConflict = errors.New("conflicts with an external calendar event")

	// ErrNotFound covers both a missing booking and one owned by someone
	// else; callers never learn which.
	ErrNotFound = errors.New("booking not found")
)

// Overlaps reports whether [s1, e1) and [s2, e2) intersect. Touching
// intervals (e1 == s2) do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}
