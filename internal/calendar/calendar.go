package calendar

import (
	"context"
	"strings"
	"time"
)

// Event is the provider-independent view of an external calendar event.
// Nothing here is persisted; events are re-fetched from the provider when
// needed and correlated back to bookings via the description token.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Gateway is the capability interface over a remote calendar. Every call is
// scoped to a single stored credential (an OAuth refresh token) and returns
// *GatewayError on transport, auth, or provider failure.
type Gateway interface {
	ListEvents(ctx context.Context, credential string, start, end time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, credential string, draft Event) (Event, error)
	// DeleteEvent tolerates an already-deleted event: a provider not-found
	// is reported as success.
	DeleteEvent(ctx context.Context, credential, eventID string) error
	HasOverlap(ctx context.Context, credential string, start, end time.Time) (bool, error)
}

// GatewayError wraps any failure talking to the external calendar so call
// sites can apply per-site policy (degrade, swallow-and-log, or surface).
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return "calendar gateway: " + e.Op + ": " + e.Err.Error() }
func (e *GatewayError) Unwrap() error { return e.Err }

const backRefPrefix = "Booking ID: "

// BackRef returns the token embedded in a mirror event's description. The
// exact format is load-bearing: cancellation re-associates external events
// with bookings by scanning descriptions for it.
func BackRef(bookingID string) string { return backRefPrefix + bookingID }

// MatchesBackRef reports whether an event description carries the token for
// the given booking. The token must end at the end of the description or at
// a character that cannot be part of an id, so the id of one booking never
// matches the token of another whose id merely extends it.
func MatchesBackRef(description, bookingID string) bool {
	token := BackRef(bookingID)
	for rest := description; ; {
		i := strings.Index(rest, token)
		if i < 0 {
			return false
		}
		tail := rest[i+len(token):]
		if tail == "" || !isIDChar(tail[0]) {
			return true
		}
		rest = tail
	}
}

func isIDChar(c byte) bool {
	return c == '-' ||
		('0' <= c && c <= '9') ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z')
}
