package bookings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/slotbook/internal/calendar"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is the persistence boundary for bookings. FindOverlapping scans
// across all owners: the booked resource is shared and singular, so two
// users can never hold overlapping slots.
type Store interface {
	Insert(ctx context.Context, b Booking) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Booking, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Booking, error)
	FindOverlapping(ctx context.Context, start, end time.Time) (Booking, bool, error)
	AttachEventID(ctx context.Context, id, eventID string) error
}

// CredentialSource resolves a principal's external-calendar binding.
// connected=false with no error means the principal simply has no calendar
// linked; the external check is skipped entirely in that case.
type CredentialSource interface {
	RefreshToken(ctx context.Context, ownerID string) (token string, connected bool, err error)
}

// Service decides whether a proposed slot is free and keeps the local
// booking consistent with its best-effort mirror on the owner's calendar.
// The local store is authoritative; the mirror is advisory.
type Service struct {
	Store   Store
	Creds   CredentialSource
	Gateway calendar.Gateway
	Log     *logrus.Logger

	// StrictExternalCheck makes a gateway failure during the external
	// conflict check block creation instead of being treated as "no
	// conflict detected". Off by default: availability over strictness.
	StrictExternalCheck bool

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time

	// mu serializes check-then-insert so two overlapping requests cannot
	// both pass the conflict checks. The gateway's per-call timeout bounds
	// how long the critical section can be held.
	mu sync.Mutex
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

// Create validates the proposed slot, checks it against local bookings and
// the owner's connected calendar, and persists it. Once the insert succeeds
// the booking exists regardless of what the mirror step does.
func (s *Service) Create(ctx context.Context, ownerID, title string, start, end time.Time) (Booking, error) {
	if title == "" {
		return Booking{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if !start.Before(end) {
		return Booking{}, fmt.Errorf("%w: start time must be before end time", ErrInvalid)
	}
	if start.Before(s.now()) {
		return Booking{}, fmt.Errorf("%w: cannot book time slots in the past", ErrInvalid)
	}

	b, token, connected, err := s.reserve(ctx, ownerID, title, start, end)
	if err != nil {
		return Booking{}, err
	}

	if connected {
		s.mirror(ctx, token, &b)
	}
	return b, nil
}

// reserve runs the conflict checks and the insert under the mutex. The
// insert is the durability commit point.
func (s *Service) reserve(ctx context.Context, ownerID, title string, start, end time.Time) (Booking, string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found, err := s.Store.FindOverlapping(ctx, start, end)
	if err != nil {
		return Booking{}, "", false, err
	}
	if found {
		return Booking{}, "", false, fmt.Errorf("%w: overlaps booking %s", ErrLocalConflict, existing.ID)
	}

	token, connected, err := s.Creds.RefreshToken(ctx, ownerID)
	if err != nil {
		return Booking{}, "", false, err
	}
	if connected {
		busy, gerr := s.Gateway.HasOverlap(ctx, token, start, end)
		if gerr != nil {
			if s.StrictExternalCheck {
				return Booking{}, "", false, gerr
			}
			// Known gap: a real external conflict is silently ignored
			// while the gateway is down.
			s.log().WithError(gerr).WithField("owner", ownerID).
				Warn("external conflict check failed, proceeding without it")
		} else if busy {
			return Booking{}, "", false, ErrExternalConflict
		}
	}

	b := Booking{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		StartAt:   start.UTC(),
		EndAt:     end.UTC(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.Store.Insert(ctx, b); err != nil {
		return Booking{}, "", false, err
	}
	return b, token, connected, nil
}

// mirror creates the external event carrying the back-reference token and
// records its id. Every failure here is logged and absorbed: the booking
// already committed and is never rolled back.
func (s *Service) mirror(ctx context.Context, token string, b *Booking) {
	ev, err := s.Gateway.CreateEvent(ctx, token, calendar.Event{
		Summary:     b.Title,
		Description: calendar.BackRef(b.ID),
		Start:       b.StartAt,
		End:         b.EndAt,
	})
	if err != nil {
		s.log().WithError(err).WithField("booking", b.ID).
			Warn("calendar mirror failed, booking stands unmirrored")
		return
	}
	if err := s.Store.AttachEventID(context.WithoutCancel(ctx), b.ID, ev.ID); err != nil {
		s.log().WithError(err).WithField("booking", b.ID).
			Warn("could not record mirrored event id")
		return
	}
	b.GoogleEventID = ev.ID
}

// Get returns the booking only to its owner; anyone else sees not-found.
func (s *Service) Get(ctx context.Context, id, requesterID string) (Booking, error) {
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if b.OwnerID != requesterID {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

// List returns the requester's bookings ordered by start time.
func (s *Service) List(ctx context.Context, ownerID string) ([]Booking, error) {
	return s.Store.ListByOwner(ctx, ownerID)
}

// Cancel removes the booking and, best effort, its mirror event. The local
// delete happens last and unconditionally once ownership is confirmed, even
// if the caller has gone away by then.
func (s *Service) Cancel(ctx context.Context, id, requesterID string) error {
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.OwnerID != requesterID {
		return ErrNotFound
	}

	token, connected, err := s.Creds.RefreshToken(ctx, b.OwnerID)
	if err != nil {
		s.log().WithError(err).WithField("booking", b.ID).
			Warn("credential lookup failed during cancel, skipping unmirror")
		connected = false
	}
	if connected {
		s.unmirror(ctx, token, b)
	}

	return s.Store.Delete(context.WithoutCancel(ctx), id)
}

// unmirror locates the mirror event by scanning descriptions for the
// back-reference token rather than trusting the stored event id, which may
// never have been attached. Gateway failures are logged and swallowed.
func (s *Service) unmirror(ctx context.Context, token string, b Booking) {
	events, err := s.Gateway.ListEvents(ctx, token, b.StartAt, b.EndAt)
	if err != nil {
		s.log().WithError(err).WithField("booking", b.ID).
			Warn("could not list calendar events during cancel")
		return
	}
	for _, ev := range events {
		if !calendar.MatchesBackRef(ev.Description, b.ID) {
			continue
		}
		if err := s.Gateway.DeleteEvent(ctx, token, ev.ID); err != nil {
			s.log().WithError(err).WithField("booking", b.ID).
				Warn("could not delete mirrored calendar event")
		}
		return
	}
}
