package googlecalendar_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/oauth2"

	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/integration/googlecalendar"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/oauth"
)

type stubVerifier struct{}

func (stubVerifier) Verify(context.Context, string) (string, error) {
	return "owner@example.com", nil
}

type fakeGoogle struct {
	mu        sync.Mutex
	requests  []string
	bodies    map[string]string
	revoked   []string
	pageCalls int
}

func (f *fakeGoogle) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		f.bodies[r.Method+" "+r.URL.Path] = string(raw)
	}
}

func (f *fakeGoogle) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("refresh_token") == "revoked" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.revoked = append(f.revoked, r.PostForm.Get("token"))
		f.mu.Unlock()
	})
	mux.HandleFunc("/api/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			return
		}

		f.mu.Lock()
		f.pageCalls++
		f.mu.Unlock()
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = io.WriteString(w, `{"timeZone":"Europe/Berlin","nextPageToken":"p2","items":[
				{"id":"e1","summary":"Dentist","start":{"dateTime":"2030-01-07T09:00:00Z"},"end":{"dateTime":"2030-01-07T10:00:00Z"}},
				{"id":"e2","summary":"Free slot","transparency":"transparent","start":{"dateTime":"2030-01-07T11:00:00Z"},"end":{"dateTime":"2030-01-07T12:00:00Z"}},
				{"id":"e3","start":{"dateTime":"2030-01-07T13:00:00Z"},"end":{"dateTime":"2030-01-07T14:00:00Z"}}
			]}`)
			return
		}
		_, _ = io.WriteString(w, `{"timeZone":"Europe/Berlin","items":[
			{"id":"e4","summary":"Holiday","start":{"date":"2030-01-08"},"end":{"date":"2030-01-09"}},
			{"id":"e5","summary":"No end","start":{"dateTime":"2030-01-08T09:00:00Z"}}
		]}`)
	})
	mux.HandleFunc("/api/calendars/primary/events/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/calendars/primary/events/")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "htmlLink": "https://calendar.example.com/" + id})
	})
	return mux
}

var _ = Describe("Calendar", func() {
	var (
		ctx     context.Context
		google  *fakeGoogle
		server  *httptest.Server
		cal     any
		updates []model.AppInstancePatch
		inst    *model.AppInstance
	)

	BeforeEach(func() {
		ctx = context.Background()
		google = &fakeGoogle{bodies: map[string]string{}}
		server = httptest.NewServer(google.handler())
		DeferCleanup(server.Close)
		updates = nil

		provider := oauth.NewProvider(googlecalendar.TypeName, &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"},
			RedirectURL:  "https://booking.example.com/oauth/redirect",
			Scopes:       googlecalendar.Scopes,
		}, stubVerifier{})

		reg := googlecalendar.Registration(googlecalendar.Options{
			OAuth:     provider,
			APIBase:   server.URL + "/api",
			RevokeURL: server.URL + "/revoke",
		})
		cal = reg.Factory(app.Services{
			HTTPClient: server.Client(),
			Update: func(_ context.Context, patch model.AppInstancePatch) (*model.AppInstance, error) {
				updates = append(updates, patch)
				return inst, nil
			},
		})

		inst = &model.AppInstance{
			ID:       42,
			TypeName: googlecalendar.TypeName,
			Status:   model.AppStatusConnected,
			Data:     json.RawMessage(`{}`),
			Token: &model.Token{
				AccessToken:  "stale",
				RefreshToken: "refresh-1",
				IDToken:      "id-token",
				Expiry:       time.Now().Add(-time.Hour),
			},
		}
	})

	It("exposes the expected capabilities", func() {
		Expect(app.Supports(cal,
			app.CapabilityOAuth,
			app.CapabilityCalendarBusyTimes,
			app.CapabilityCalendarWriter,
			app.CapabilityTearDown,
		)).To(BeTrue())
	})

	It("builds a login url carrying the instance id", func() {
		loginURL, err := cal.(app.OAuthApp).LoginURL(ctx, inst)
		Expect(err).NotTo(HaveOccurred())
		u, err := url.Parse(loginURL)
		Expect(err).NotTo(HaveOccurred())
		Expect(u.Query().Get("state")).To(Equal("42"))
		Expect(u.Query().Get("access_type")).To(Equal("offline"))
	})

	Describe("GetBusyTimes", func() {
		It("pages until no token remains and keeps blocking events only", func() {
			start := time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC)
			busy, err := cal.(app.CalendarBusyTimes).GetBusyTimes(ctx, inst, start, start.Add(72*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(google.pageCalls).To(Equal(2))

			Expect(busy).To(HaveLen(2))
			Expect(busy[0].UID).To(Equal("e1"))
			Expect(busy[0].Title).To(Equal("Dentist"))
			Expect(busy[1].UID).To(Equal("e4"))

			berlin, err := time.LoadLocation("Europe/Berlin")
			Expect(err).NotTo(HaveOccurred())
			Expect(busy[1].Start.Equal(time.Date(2030, time.January, 8, 0, 0, 0, 0, berlin))).To(BeTrue())
		})

		It("persists a refreshed token keeping the refresh token", func() {
			_, err := cal.(app.CalendarBusyTimes).GetBusyTimes(ctx, inst, time.Now(), time.Now().Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())

			Expect(updates).To(HaveLen(1))
			Expect(updates[0].Token.AccessToken).To(Equal("fresh"))
			Expect(updates[0].Token.RefreshToken).To(Equal("refresh-1"))
			Expect(updates[0].Token.IDToken).To(Equal("id-token"))
		})

		It("reports revoked grants as invalid credentials", func() {
			inst.Token.RefreshToken = "revoked"
			_, err := cal.(app.CalendarBusyTimes).GetBusyTimes(ctx, inst, time.Now(), time.Now().Add(time.Hour))
			Expect(app.StatusTextFor(err, "").Key).To(Equal(googlecalendar.KeyCredentialsInvalid))
		})

		It("requires a token", func() {
			inst.Token = nil
			_, err := cal.(app.CalendarBusyTimes).GetBusyTimes(ctx, inst, time.Now(), time.Now().Add(time.Hour))
			Expect(app.StatusTextFor(err, "").Key).To(Equal(googlecalendar.KeyNotAuthorized))
		})

		It("maps a rejected access token", func() {
			inst.Token.Expiry = time.Now().Add(time.Hour)
			_, err := cal.(app.CalendarBusyTimes).GetBusyTimes(ctx, inst, time.Now(), time.Now().Add(time.Hour))
			Expect(app.StatusTextFor(err, "").Key).To(Equal(googlecalendar.KeyCredentialsInvalid))
		})
	})

	Describe("calendar writer", func() {
		ev := model.CalendarEvent{
			UID:       "appointment-1",
			Title:     "Haircut",
			Start:     time.Date(2030, time.January, 7, 9, 0, 0, 0, time.UTC),
			End:       time.Date(2030, time.January, 7, 10, 0, 0, 0, time.UTC),
			Attendees: []string{"customer@example.com"},
		}

		It("falls back to an update when the event exists", func() {
			res, err := cal.(app.CalendarWriter).CreateEvent(ctx, inst, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.UID).To(Equal("appointment-1"))
			Expect(res.ExternalID).To(Equal(googlecalendar.EventID("appointment-1")))
			Expect(res.Link).To(ContainSubstring(res.ExternalID))

			path := "/api/calendars/primary/events/" + googlecalendar.EventID("appointment-1")
			Expect(google.requests).To(Equal([]string{
				"POST /api/calendars/primary/events",
				"PUT " + path,
			}))
			Expect(google.bodies["PUT "+path]).To(ContainSubstring(`"booking_uid":"appointment-1"`))
			Expect(google.bodies["PUT "+path]).To(ContainSubstring("customer@example.com"))
		})

		It("treats missing events as deleted", func() {
			Expect(cal.(app.CalendarWriter).DeleteEvent(ctx, inst, "appointment-1")).To(Succeed())
		})

		It("derives stable hex event ids", func() {
			id := googlecalendar.EventID("appointment-1")
			Expect(id).To(MatchRegexp(`^[0-9a-f]{40}$`))
			Expect(googlecalendar.EventID("appointment-1")).To(Equal(id))
		})
	})

	It("revokes the grant on teardown", func() {
		Expect(cal.(app.TearDowner).TearDown(ctx, inst)).To(Succeed())
		Expect(google.revoked).To(Equal([]string{"refresh-1"}))
	})

	It("reports a missing oauth client as a configuration error", func() {
		obj := googlecalendar.Registration(googlecalendar.Options{}).Factory(app.Services{})
		_, err := obj.(app.OAuthApp).LoginURL(ctx, inst)
		Expect(errors.Is(err, app.ErrMissingSecret)).To(BeTrue())
	})
})
