// Package credentials associates a user with their external-calendar
// credential. Refresh tokens are encrypted at rest; the connected flag is
// what the booking engine keys the external conflict check on.
package credentials

import (
	"context"
	"time"

	"github.com/example/slotbook/internal/crypto"
	"github.com/example/slotbook/internal/db"
)

// Binding is a user's external-calendar connection state. connected=true
// implies a refresh token is present.
type Binding struct {
	UserID       string
	RefreshToken string
	Connected    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Get(ctx context.Context, userID string) (Binding, error) {
	row := r.db.QueryRow(ctx, `
SELECT user_id, refresh_token, connected, created_at, updated_at
FROM calendar_credentials WHERE user_id=$1`, userID)
	var b Binding
	err := row.Scan(&b.UserID, &b.RefreshToken, &b.Connected, &b.CreatedAt, &b.UpdatedAt)
	if db.IsNotFound(err) {
		// No row means never connected; not an error for callers.
		return Binding{UserID: userID}, nil
	}
	if err != nil {
		return Binding{}, err
	}
	return b, nil
}

func (r *Repo) Upsert(ctx context.Context, userID, encryptedToken string, connected bool) error {
	return r.db.Exec(ctx, `
INSERT INTO calendar_credentials (user_id, refresh_token, connected, updated_at)
VALUES ($1,$2,$3,now())
ON CONFLICT (user_id) DO UPDATE
SET refresh_token=EXCLUDED.refresh_token, connected=EXCLUDED.connected, updated_at=now()`,
		userID, encryptedToken, connected)
}

// Service encrypts tokens on the way in and decrypts on the way out. It is
// the engine-facing credential source.
type Service struct {
	Repo *Repo
	AEAD *crypto.AEAD
}

// Connect stores the refresh token and marks the binding connected.
func (s *Service) Connect(ctx context.Context, userID, refreshToken string) error {
	enc, err := s.AEAD.EncryptToString(refreshToken)
	if err != nil {
		return err
	}
	return s.Repo.Upsert(ctx, userID, enc, true)
}

// Disconnect clears the stored token and the connected flag.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	return s.Repo.Upsert(ctx, userID, "", false)
}

// Connected reports the binding state without decrypting the token.
func (s *Service) Connected(ctx context.Context, userID string) (bool, error) {
	b, err := s.Repo.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return b.Connected && b.RefreshToken != "", nil
}

// RefreshToken implements bookings.CredentialSource. A disconnected binding
// returns connected=false with no token and no error.
func (s *Service) RefreshToken(ctx context.Context, userID string) (string, bool, error) {
	b, err := s.Repo.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if !b.Connected || b.RefreshToken == "" {
		return "", false, nil
	}
	tok, err := s.AEAD.DecryptString(b.RefreshToken)
	if err != nil {
		return "", false, err
	}
	return tok, true, nil
}
