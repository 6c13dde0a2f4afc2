package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptcal/internal/api"
	"apptcal/internal/config"
	"apptcal/internal/shell"
)

const calendarJSON = `{
  "resources": [
    {"id": 1, "title": "North", "color": "#f00"},
    {"id": 2, "title": "South", "color": "#00f"}
  ],
  "events": [
    {"id": 10, "title": "Jane Doe", "start": "2025-01-07T09:00:00Z", "end": "2025-01-07T09:30:00Z",
     "extendedProps": {"clinicId": 1, "clinicName": "North", "patientName": "Jane Doe", "status": "scheduled", "smsConfirmed": true}},
    {"id": 11, "title": "Bob", "start": "2025-01-07T10:00:00Z", "end": "2025-01-07T10:30:00Z",
     "extendedProps": {"clinicId": 2, "clinicName": "South", "patientName": "Bob", "status": "scheduled"}}
  ]
}`

// backend emulates the appointment REST API.
type backend struct {
	mu       sync.Mutex
	patch    int
	posts    int
	lastPath string
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPath = r.Method + " " + r.URL.Path
	switch {
	case r.URL.Path == "/appointments/calendar_data":
		_, _ = io.WriteString(w, calendarJSON)
	case r.URL.Path == "/csrf-token/":
		_, _ = io.WriteString(w, `{"csrfToken":"tok"}`)
	case r.Method == http.MethodPatch:
		if r.Header.Get("X-CSRFToken") != "tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if b.patch != 0 {
			w.WriteHeader(b.patch)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && r.URL.Path == "/appointments/":
		b.posts++
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": 500}`)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/appointments/"):
		_, _ = io.WriteString(w, `{"id": 10, "notes": "knee"}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (http.Handler, *backend) {
	t.Helper()
	b := &backend{}
	upstream := httptest.NewServer(b)
	t.Cleanup(upstream.Close)

	client, err := api.NewClient(api.Options{BaseURL: upstream.URL, Location: time.UTC, HTTPClient: upstream.Client()})
	require.NoError(t, err)
	sh, err := shell.New(shell.Options{API: client, Location: time.UTC})
	require.NoError(t, err)
	require.NoError(t, sh.Refresh(context.Background()))

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics") })
	return NewServer(cfg, sh, metrics).Handler(), b
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsInRenderShape(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[eventsResponse](t, rec)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "#f00", resp.Events[0].Color)
	assert.Equal(t, "North", resp.Events[0].ExtendedProps.ClinicName)
	assert.True(t, resp.Events[0].ExtendedProps.SMSConfirmed)
	assert.Empty(t, resp.Error)
}

func TestClinicToggleFiltersEvents(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodPut, "/api/clinics/2", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	clinics := decode[[]clinicDTO](t, rec)
	require.Len(t, clinics, 2)
	assert.False(t, clinics[1].Enabled)

	resp := decode[eventsResponse](t, do(t, h, http.MethodGet, "/api/events", ""))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Jane Doe", resp.Events[0].Title)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/api/clinics/9", `{"enabled": true}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/clinics/1", `{"on": true}`).Code)
}

func TestPointerDoubleClick(t *testing.T) {
	h, _ := newTestServer(t, nil)
	first := `{"kind":"click","view":"day","at":"2025-01-07T08:00:00.000Z","date":"2025-01-07T14:00:00Z"}`
	second := `{"kind":"click","view":"day","at":"2025-01-07T08:00:00.150Z","date":"2025-01-07T14:00:00Z"}`

	resp := decode[pointerResponse](t, do(t, h, http.MethodPost, "/api/pointer", first))
	assert.Equal(t, "none", string(resp.Intent))

	resp = decode[pointerResponse](t, do(t, h, http.MethodPost, "/api/pointer", second))
	assert.Equal(t, "create_timed", string(resp.Intent))
	require.NotNil(t, resp.Date)
	assert.Equal(t, 14, resp.Date.Hour())
}

func TestPointerEventClickReturnsDetail(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec := do(t, h, http.MethodPost, "/api/pointer", `{"kind":"event_click","eventId":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[pointerResponse](t, rec)
	assert.Equal(t, "edit", string(resp.Intent))
	assert.Equal(t, "knee", resp.Detail["notes"])
}

func TestPointerValidation(t *testing.T) {
	h, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/pointer", `{"kind":"hover"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/pointer", `{"kind":"click","date":"soon"}`).Code)
}

func TestMonthClickBeforeSettleConflicts(t *testing.T) {
	h, _ := newTestServer(t, nil)
	body := `{"kind":"click","view":"month","date":"2025-01-22","allDay":true}`
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/pointer", body).Code)

	do(t, h, http.MethodPost, "/api/view/settled", "")
	rec := do(t, h, http.MethodPost, "/api/pointer", body)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[pointerResponse](t, rec)
	require.NotNil(t, resp.View)
	assert.Equal(t, "week", string(resp.View.View))
	assert.Equal(t, "2025-01-22", resp.View.Date)
}

func TestDragRejectedReverts(t *testing.T) {
	h, b := newTestServer(t, nil)
	b.patch = http.StatusInternalServerError

	rec := do(t, h, http.MethodPost, "/api/drag", `{"id":"10","start":"2025-01-07T15:00:00Z","end":"2025-01-07T15:30:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[shell.GestureResult](t, rec)
	assert.True(t, g.Reverted)
	assert.False(t, g.Confirmed)
	require.NotNil(t, g.Start)
	assert.Equal(t, 9, g.Start.Hour())

	resp := decode[eventsResponse](t, do(t, h, http.MethodGet, "/api/events", ""))
	assert.Equal(t, 9, resp.Events[0].Start.Hour(), "store unchanged")
}

func TestResizeConfirmed(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec := do(t, h, http.MethodPost, "/api/resize", `{"id":"10","start":"2025-01-07T09:00:00Z","end":"2025-01-07T10:00:00Z"}`)
	g := decode[shell.GestureResult](t, rec)
	assert.True(t, g.Confirmed)
	require.NotNil(t, g.Start)
	require.NotNil(t, g.End)
	assert.Equal(t, time.Hour, g.End.Sub(*g.Start))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/resize", `{}`).Code)
}

func TestCreateRecurring(t *testing.T) {
	h, b := newTestServer(t, nil)
	body := `{"clinicId":"1","patientId":"7","start":"2025-01-06T09:00:00Z","end":"2025-01-06T10:00:00Z",
	          "recurrence":{"pattern":"weekly","occurrences":4}}`
	rec := do(t, h, http.MethodPost, "/api/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[createResponse](t, rec)
	assert.Equal(t, 4, resp.Created)
	assert.Equal(t, 4, b.posts)
	assert.NotEmpty(t, resp.GroupID)
}

func TestCreateOverflowRejected(t *testing.T) {
	h, b := newTestServer(t, nil)
	body := `{"clinicId":"1","start":"2025-01-06T09:00:00Z","end":"2025-01-06T10:00:00Z",
	          "recurrence":{"pattern":"daily","endDate":"2027-01-01"}}`
	rec := do(t, h, http.MethodPost, "/api/appointments", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, b.posts)

	rec = do(t, h, http.MethodPost, "/api/appointments", `{"start":"2025-01-06T09:00:00Z","end":"2025-01-06T10:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	h, b := newTestServer(t, nil)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPatch, "/api/appointments/10", `{"status":"checked_in","notes":"arrived"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPatch, "/api/appointments/10", `{"status":"lost"}`).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/appointments/11", "").Code)
	assert.Equal(t, "GET /appointments/calendar_data", b.lastPath, "delete triggers a refetch")
}

func TestViewNavigation(t *testing.T) {
	h, _ := newTestServer(t, nil)
	do(t, h, http.MethodPost, "/api/view/settled", "")

	rec := do(t, h, http.MethodPost, "/api/view?date=2025-01-31&view=month", "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[viewDTO](t, rec)
	assert.Equal(t, "2025-01-31", v.Date)
	assert.Equal(t, "month", string(v.View))

	v = decode[viewDTO](t, do(t, h, http.MethodPost, "/api/view/next", ""))
	assert.Equal(t, "2025-02-01", v.Date)

	v = decode[viewDTO](t, do(t, h, http.MethodPost, "/api/view/header", `{"date":"2025-02-04"}`))
	assert.Equal(t, "day", string(v.View))

	v = decode[viewDTO](t, do(t, h, http.MethodPost, "/api/view", `{"date":"2025-02-04","view":"day"}`))
	assert.Equal(t, "2025-02-04", v.Date)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/view/sideways", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/view?date=31-01-2025", "").Code)
}

func TestNotificationsAndICS(t *testing.T) {
	h, _ := newTestServer(t, nil)
	do(t, h, http.MethodPost, "/api/resize", `{"id":"10","start":"2025-01-07T09:00:00Z","end":"2025-01-07T10:00:00Z"}`)

	resp := decode[notificationsResponse](t, do(t, h, http.MethodGet, "/api/notifications?since=0", ""))
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, resp.Last, resp.Items[len(resp.Items)-1].Seq)

	rec := do(t, h, http.MethodGet, "/calendar.ics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")
}

func TestBasicAuthExemptsHealth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	h, _ := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
	rec := do(t, h, http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "pw")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}
