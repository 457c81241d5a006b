package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/slotbook/internal/auth"
	"github.com/example/slotbook/internal/bookings"
	"github.com/example/slotbook/internal/calendar"
)

func TestWriteServiceErrorMapping(t *testing.T) {
	s := &Server{}

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", fmt.Errorf("%w: start after end", bookings.ErrInvalid), 400, "validation_error"},
		{"local conflict", fmt.Errorf("%w: overlaps x", bookings.ErrLocalConflict), 409, "local_conflict"},
		{"external conflict", bookings.ErrExternalConflict, 409, "external_conflict"},
		{"not found", bookings.ErrNotFound, 404, "not_found"},
		{"gateway (strict mode)", &calendar.GatewayError{Op: "list", Err: errors.New("down")}, 502, "gateway_error"},
		{"unknown", errors.New("disk on fire"), 500, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeServiceError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["code"] != tc.wantCode {
				t.Fatalf("code = %q, want %q", body["code"], tc.wantCode)
			}
		})
	}
}

func TestRoutesRequireSession(t *testing.T) {
	// Every authenticated route must be registered (a miss would 404) and
	// must reject a request without a session cookie.
	key := bytes.Repeat([]byte{0x24}, 32)
	s := &Server{Auth: auth.NewStore(nil, key, key)}
	h := s.Routes()

	cases := []struct{ method, path string }{
		{"GET", "/api/users/profile"},
		{"GET", "/api/bookings"},
		{"POST", "/api/bookings"},
		{"GET", "/api/bookings/b-1"},
		{"DELETE", "/api/bookings/b-1"},
		{"GET", "/google/connect"},
		{"POST", "/google/disconnect"},
		{"GET", "/google/events"},
		{"POST", "/google/events"},
		{"DELETE", "/google/events/ev-1"},
		{"GET", "/google/check-conflicts"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestConflictCodesAreDistinguishable(t *testing.T) {
	// Callers must be able to tell a local schedule conflict from an
	// external calendar conflict without parsing messages.
	s := &Server{}

	recLocal := httptest.NewRecorder()
	s.writeServiceError(recLocal, bookings.ErrLocalConflict)
	recExt := httptest.NewRecorder()
	s.writeServiceError(recExt, bookings.ErrExternalConflict)

	var local, ext map[string]string
	_ = json.NewDecoder(recLocal.Body).Decode(&local)
	_ = json.NewDecoder(recExt.Body).Decode(&ext)
	if local["code"] == ext["code"] {
		t.Fatalf("conflict codes collide: %q", local["code"])
	}
}
