package calendar

import "testing"

func TestBackRefFormat(t *testing.T) {
	// The literal prefix is part of the wire contract with mirrored
	// events; cancellation correlates by scanning for it.
	got := BackRef("abc-123")
	if got != "Booking ID: abc-123" {
		t.Fatalf("BackRef = %q", got)
	}
}

func TestMatchesBackRef(t *testing.T) {
	cases := []struct {
		desc string
		id   string
		want bool
	}{
		{"Booking ID: abc-123", "abc-123", true},
		{"created by slotbook\nBooking ID: abc-123", "abc-123", true},
		{"Booking ID: abc-123\nsee you there", "abc-123", true},
		{"Booking ID: abc-123.", "abc-123", true},
		{"Booking ID: abc-1234", "abc-123", false}, // longer id must not match a shorter one
		{"Booking ID: abc-1234\nBooking ID: abc-123", "abc-123", true},
		{"Booking ID: xyz", "abc-123", false},
		{"", "abc-123", false},
		{"abc-123", "abc-123", false}, // bare id without the prefix does not correlate
	}
	for _, tc := range cases {
		if got := MatchesBackRef(tc.desc, tc.id); got != tc.want {
			t.Errorf("MatchesBackRef(%q, %q) = %v, want %v", tc.desc, tc.id, got, tc.want)
		}
	}
}

func TestGatewayErrorUnwrap(t *testing.T) {
	inner := &GatewayError{Op: "list", Err: errSentinel}
	if inner.Unwrap() != errSentinel {
		t.Fatal("Unwrap lost the cause")
	}
	if inner.Error() != "calendar gateway: list: boom" {
		t.Fatalf("Error() = %q", inner.Error())
	}
}

var errSentinel = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
