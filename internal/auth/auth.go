// Package auth provides local username/password accounts and cookie
// sessions. The rest of the system only ever sees the authenticated user id.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/slotbook/internal/db"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

type Store struct {
	sc *securecookie.SecureCookie
	db *db.DB
}

type ctxKey string

const userIDKey ctxKey = "userID"

const cookieName = "slotbook_session"

const sessionMaxAge = 14 * 24 * time.Hour

func NewStore(d *db.DB, hashKey, blockKey []byte) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionMaxAge.Seconds()))
	return &Store{sc: sc, db: d}
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func (s *Store) CreateUser(ctx context.Context, username, password string) (string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.db.Exec(ctx,
		`INSERT INTO users(id, username, password_bcrypt, created_at) VALUES ($1,$2,$3,$4)`,
		id, username, hash, time.Now().UTC(),
	); err != nil {
		return "", err
	}
	return id, nil
}

// User is the public view of an account; the password hash never leaves
// this package.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`SELECT id, username, created_at FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		return User{}, db.WrapNotFound(err)
	}
	return u, nil
}

func (s *Store) Authenticate(ctx context.Context, username, password string) (string, error) {
	var id, hash string
	err := s.db.QueryRow(ctx, `SELECT id, password_bcrypt FROM users WHERE username=$1`, username).Scan(&id, &hash)
	if err != nil {
		return "", db.WrapNotFound(err)
	}
	if !CheckPassword(hash, password) {
		return "", errors.New("invalid credentials")
	}
	return id, nil
}

type Session struct {
	UserID string
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request, userID string) error {
	encoded, err := s.sc.Encode(cookieName, map[string]string{"uid": userID})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	val := map[string]string{}
	if err := s.sc.Decode(cookieName, c.Value, &val); err != nil {
		return Session{}, false
	}
	uid := val["uid"]
	if uid == "" {
		return Session{}, false
	}
	return Session{UserID: uid}, true
}

// RequireAuth rejects unauthenticated API requests with a JSON 401 and puts
// the user id on the request context otherwise.
func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.GetSession(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, sess.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	return uid, ok && uid != ""
}
