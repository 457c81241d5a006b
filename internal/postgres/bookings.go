package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/slotbook/internal/bookings"
	"github.com/example/slotbook/internal/db"
	"github.com/jackc/pgx/v5/pgconn"
)

// exclusion_violation, raised by the bookings_no_overlap constraint.
const exclusionViolation = "23P01"

// BookingRepo implements bookings.Store on Postgres.
type BookingRepo struct{ db *db.DB }

func NewBookingRepo(d *db.DB) *BookingRepo { return &BookingRepo{db: d} }

func (r *BookingRepo) Insert(ctx context.Context, b bookings.Booking) error {
	err := r.db.Exec(ctx, `
INSERT INTO bookings(id, user_id, title, start_at, end_at, google_event_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.OwnerID, b.Title, b.StartAt, b.EndAt, b.GoogleEventID, b.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		// Another writer slipped in between check and insert; the
		// constraint keeps the schedule consistent.
		return fmt.Errorf("%w: rejected by overlap constraint", bookings.ErrLocalConflict)
	}
	return err
}

func (r *BookingRepo) Delete(ctx context.Context, id string) error {
	return r.db.Exec(ctx, `DELETE FROM bookings WHERE id=$1`, id)
}

func (r *BookingRepo) Get(ctx context.Context, id string) (bookings.Booking, error) {
	row := r.db.QueryRow(ctx, `
SELECT id, user_id, title, start_at, end_at, google_event_id, created_at
FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if db.IsNotFound(err) {
		return bookings.Booking{}, bookings.ErrNotFound
	}
	return b, err
}

func (r *BookingRepo) ListByOwner(ctx context.Context, ownerID string) ([]bookings.Booking, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, user_id, title, start_at, end_at, google_event_id, created_at
FROM bookings
WHERE user_id=$1
ORDER BY start_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bookings.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindOverlapping scans across all owners on purpose: the resource is a
// single shared schedule, not per-user.
func (r *BookingRepo) FindOverlapping(ctx context.Context, start, end time.Time) (bookings.Booking, bool, error) {
	row := r.db.QueryRow(ctx, `
SELECT id, user_id, title, start_at, end_at, google_event_id, created_at
FROM bookings
WHERE start_at < $2 AND end_at > $1
LIMIT 1`, start, end)
	b, err := scanBooking(row)
	if db.IsNotFound(err) {
		return bookings.Booking{}, false, nil
	}
	if err != nil {
		return bookings.Booking{}, false, err
	}
	return b, true, nil
}

func (r *BookingRepo) AttachEventID(ctx context.Context, id, eventID string) error {
	return r.db.Exec(ctx, `UPDATE bookings SET google_event_id=$2 WHERE id=$1`, id, eventID)
}

func scanBooking(row db.Row) (bookings.Booking, error) {
	var b bookings.Booking
	err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.StartAt, &b.EndAt, &b.GoogleEventID, &b.CreatedAt)
	return b, err
}
