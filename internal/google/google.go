// Package google implements the calendar gateway against the Google
// Calendar API, one authenticated service per stored refresh token.
package google

import (
	"context"
	"errors"
	"time"

	"github.com/example/slotbook/internal/calendar"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const calendarID = "primary"

// Gateway talks to Google Calendar on behalf of stored credentials. Every
// API call is bounded by Timeout; a timeout surfaces as a GatewayError like
// any other transport failure.
type Gateway struct {
	cfg     *oauth2.Config
	timeout time.Duration
}

func New(clientID, clientSecret, redirectURL string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{gcal.CalendarReadonlyScope, gcal.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		},
		timeout: timeout,
	}
}

// AuthURL returns the consent URL for the connect flow. Offline access with
// a forced consent prompt so Google re-issues a refresh token.
func (g *Gateway) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for a token. The refresh token in
// the result is what gets stored as the user's credential.
func (g *Gateway) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &calendar.GatewayError{Op: "exchange", Err: err}
	}
	return tok, nil
}

func (g *Gateway) service(ctx context.Context, refreshToken string) (*gcal.Service, error) {
	ts := g.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return gcal.NewService(ctx, option.WithTokenSource(ts))
}

func (g *Gateway) ListEvents(ctx context.Context, credential string, start, end time.Time) ([]calendar.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx, credential)
	if err != nil {
		return nil, &calendar.GatewayError{Op: "list", Err: err}
	}
	res, err := svc.Events.List(calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, &calendar.GatewayError{Op: "list", Err: err}
	}

	out := make([]calendar.Event, 0, len(res.Items))
	for _, item := range res.Items {
		if ev, ok := eventFromAPI(item); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// eventFromAPI converts an API event to the internal model. All-day events
// and events with an unspecified end carry no DateTime on one side; they
// never block a timed slot and are skipped.
func eventFromAPI(item *gcal.Event) (calendar.Event, bool) {
	if item.Start == nil || item.Start.DateTime == "" {
		return calendar.Event{}, false
	}
	if item.End == nil || item.End.DateTime == "" {
		return calendar.Event{}, false
	}
	s, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return calendar.Event{}, false
	}
	e, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return calendar.Event{}, false
	}
	return calendar.Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Start:       s,
		End:         e,
	}, true
}

func (g *Gateway) CreateEvent(ctx context.Context, credential string, draft calendar.Event) (calendar.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx, credential)
	if err != nil {
		return calendar.Event{}, &calendar.GatewayError{Op: "create", Err: err}
	}
	created, err := svc.Events.Insert(calendarID, &gcal.Event{
		Summary:     draft.Summary,
		Description: draft.Description,
		Start: &gcal.EventDateTime{
			DateTime: draft.Start.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &gcal.EventDateTime{
			DateTime: draft.End.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
	}).Context(ctx).Do()
	if err != nil {
		return calendar.Event{}, &calendar.GatewayError{Op: "create", Err: err}
	}
	draft.ID = created.Id
	return draft, nil
}

func (g *Gateway) DeleteEvent(ctx context.Context, credential, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx, credential)
	if err != nil {
		return &calendar.GatewayError{Op: "delete", Err: err}
	}
	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		// Already gone counts as deleted.
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == 404 || apiErr.Code == 410) {
			return nil
		}
		return &calendar.GatewayError{Op: "delete", Err: err}
	}
	return nil
}

func (g *Gateway) HasOverlap(ctx context.Context, credential string, start, end time.Time) (bool, error) {
	events, err := g.ListEvents(ctx, credential, start, end)
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}
