// Package web exposes the JSON API: session login, booking CRUD, and the
// Google Calendar connect flow.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/example/slotbook/internal/auth"
	"github.com/example/slotbook/internal/bookings"
	"github.com/example/slotbook/internal/calendar"
	"github.com/example/slotbook/internal/credentials"
	"github.com/example/slotbook/internal/db"
	"github.com/example/slotbook/internal/google"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type Server struct {
	Auth     *auth.Store
	Bookings *bookings.Service
	Creds    *credentials.Service
	Google   *google.Gateway
	Log      *logrus.Logger

	FrontendURL string

	validate *validator.Validate
}

func (s *Server) Routes() http.Handler {
	s.validate = validator.New()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.Handle("GET /api/users/profile", s.Auth.RequireAuth(http.HandlerFunc(s.handleProfile)))

	mux.Handle("GET /api/bookings", s.Auth.RequireAuth(http.HandlerFunc(s.handleListBookings)))
	mux.Handle("POST /api/bookings", s.Auth.RequireAuth(http.HandlerFunc(s.handleCreateBooking)))
	mux.Handle("GET /api/bookings/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleGetBooking)))
	mux.Handle("DELETE /api/bookings/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleCancelBooking)))

	mux.Handle("GET /google/connect", s.Auth.RequireAuth(http.HandlerFunc(s.handleGoogleConnect)))
	mux.Handle("GET /google/callback", s.Auth.RequireAuth(http.HandlerFunc(s.handleGoogleCallback)))
	mux.Handle("POST /google/disconnect", s.Auth.RequireAuth(http.HandlerFunc(s.handleGoogleDisconnect)))
	mux.Handle("GET /google/events", s.Auth.RequireAuth(http.HandlerFunc(s.handleGoogleEvents)))
	mux.Handle("POST /google/events", s.Auth.RequireAuth(http.HandlerFunc(s.handleGoogleCreateEvent)))
	mux.Handle("DELETE /google/events/{eventId}", s.Auth.RequireAuth(http.HandlerFunc(s.handleGoogleDeleteEvent)))
	mux.Handle("GET /google/check-conflicts", s.Auth.RequireAuth(http.HandlerFunc(s.handleCheckConflicts)))

	return mux
}

type bookingResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	GoogleEventID string    `json:"google_event_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toResponse(b bookings.Booking) bookingResponse {
	return bookingResponse{
		ID:            b.ID,
		Title:         b.Title,
		StartTime:     b.StartAt,
		EndTime:       b.EndAt,
		GoogleEventID: b.GoogleEventID,
		CreatedAt:     b.CreatedAt,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.Auth.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": id})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	u, err := s.Auth.GetUser(r.Context(), uid)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		s.internal(w, err)
		return
	}
	connected, err := s.Creds.Connected(r.Context(), uid)
	if err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                        u.ID,
		"username":                  u.Username,
		"created_at":                u.CreatedAt,
		"google_calendar_connected": connected,
	})
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	bs, err := s.Bookings.List(r.Context(), uid)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]bookingResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, toResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var req struct {
		Title     string    `json:"title" validate:"required"`
		StartTime time.Time `json:"start_time" validate:"required"`
		EndTime   time.Time `json:"end_time" validate:"required"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	b, err := s.Bookings.Create(r.Context(), uid, strings.TrimSpace(req.Title), req.StartTime, req.EndTime)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(b))
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	b, err := s.Bookings.Get(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	if err := s.Bookings.Cancel(r.Context(), r.PathValue("id"), uid); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "booking cancelled"})
}

func (s *Server) handleGoogleConnect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.Google.AuthURL("state-token"), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "missing authorization code")
		return
	}
	tok, err := s.Google.Exchange(r.Context(), code)
	if err != nil {
		s.log().WithError(err).Warn("google code exchange failed")
		writeError(w, http.StatusBadGateway, "gateway_error", "could not complete calendar connection")
		return
	}
	if tok.RefreshToken == "" {
		// Google withholds the refresh token when access was already
		// granted and consent was not re-prompted.
		writeError(w, http.StatusBadRequest, "validation_error", "no refresh token granted; revoke access and retry")
		return
	}
	if err := s.Creds.Connect(r.Context(), uid, tok.RefreshToken); err != nil {
		s.internal(w, err)
		return
	}
	http.Redirect(w, r, strings.TrimRight(s.FrontendURL, "/")+"/calendar-connected", http.StatusFound)
}

func (s *Server) handleGoogleDisconnect(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	if err := s.Creds.Disconnect(r.Context(), uid); err != nil {
		s.internal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGoogleEvents(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	token, connected, err := s.Creds.RefreshToken(r.Context(), uid)
	if err != nil {
		s.internal(w, err)
		return
	}
	if !connected {
		writeJSON(w, http.StatusOK, map[string]any{"connected": false, "events": []any{}})
		return
	}

	start, ok := s.queryTime(w, r, "start", time.Now().UTC())
	if !ok {
		return
	}
	end, ok := s.queryTime(w, r, "end", start.Add(30*24*time.Hour))
	if !ok {
		return
	}

	events, err := s.Google.ListEvents(r.Context(), token, start, end)
	if err != nil {
		s.log().WithError(err).Warn("listing google events failed")
		writeError(w, http.StatusBadGateway, "gateway_error", "could not list calendar events")
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "events": out})
}

type eventResponse struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

func toEventResponse(ev calendar.Event) eventResponse {
	return eventResponse{
		ID: ev.ID, Summary: ev.Summary, Description: ev.Description,
		Start: ev.Start, End: ev.End,
	}
}

// handleGoogleCreateEvent writes a free-form event straight to the user's
// calendar. It bypasses the booking engine on purpose: no conflict check, no
// local row, no back-reference token.
func (s *Server) handleGoogleCreateEvent(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var req struct {
		Summary     string    `json:"summary" validate:"required"`
		Description string    `json:"description"`
		Start       time.Time `json:"start" validate:"required"`
		End         time.Time `json:"end" validate:"required"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	token, connected, err := s.Creds.RefreshToken(r.Context(), uid)
	if err != nil {
		s.internal(w, err)
		return
	}
	if !connected {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "calendar not connected"})
		return
	}
	ev, err := s.Google.CreateEvent(r.Context(), token, calendar.Event{
		Summary:     strings.TrimSpace(req.Summary),
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
	})
	if err != nil {
		s.log().WithError(err).Warn("creating google event failed")
		writeError(w, http.StatusBadGateway, "gateway_error", "could not create calendar event")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "event": toEventResponse(ev)})
}

func (s *Server) handleGoogleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	token, connected, err := s.Creds.RefreshToken(r.Context(), uid)
	if err != nil {
		s.internal(w, err)
		return
	}
	if !connected {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "calendar not connected"})
		return
	}
	if err := s.Google.DeleteEvent(r.Context(), token, r.PathValue("eventId")); err != nil {
		s.log().WithError(err).Warn("deleting google event failed")
		writeError(w, http.StatusBadGateway, "gateway_error", "could not delete calendar event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCheckConflicts(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	token, connected, err := s.Creds.RefreshToken(r.Context(), uid)
	if err != nil {
		s.internal(w, err)
		return
	}
	if !connected {
		writeJSON(w, http.StatusOK, map[string]any{"has_conflict": false, "connected": false})
		return
	}

	start, ok := s.queryTime(w, r, "start_time", time.Time{})
	if !ok {
		return
	}
	end, ok := s.queryTime(w, r, "end_time", time.Time{})
	if !ok {
		return
	}
	if start.IsZero() || end.IsZero() {
		writeError(w, http.StatusBadRequest, "validation_error", "start_time and end_time are required")
		return
	}

	busy, err := s.Google.HasOverlap(r.Context(), token, start, end)
	if err != nil {
		// Same read-time degrade as the engine: unavailability never
		// reports a phantom conflict.
		s.log().WithError(err).Warn("conflict check against google failed")
		writeJSON(w, http.StatusOK, map[string]any{"has_conflict": false, "connected": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"has_conflict": busy, "connected": true})
}

func (s *Server) queryTime(w http.ResponseWriter, r *http.Request, key string, def time.Time) (time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", key+" must be RFC 3339")
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return false
	}
	return true
}

// writeServiceError maps the engine's error kinds onto the API. Local and
// external conflicts share a status but stay distinguishable by code.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var gerr *calendar.GatewayError
	switch {
	case errors.Is(err, bookings.ErrInvalid):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, bookings.ErrLocalConflict):
		writeError(w, http.StatusConflict, "local_conflict", "this time slot conflicts with an existing booking")
	case errors.Is(err, bookings.ErrExternalConflict):
		writeError(w, http.StatusConflict, "external_conflict", "this time slot conflicts with your calendar")
	case errors.Is(err, bookings.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "booking not found")
	case errors.As(err, &gerr):
		// Only reachable in strict mode.
		writeError(w, http.StatusBadGateway, "gateway_error", "external calendar unavailable")
	default:
		s.internal(w, err)
	}
}

func (s *Server) internal(w http.ResponseWriter, err error) {
	s.log().WithError(err).Error("internal error")
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func (s *Server) log() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv.ListenAndServe()
}
