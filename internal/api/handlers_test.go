package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imanmay2/sehat-server/internal/availability"
	"github.com/imanmay2/sehat-server/internal/booking"
	"github.com/imanmay2/sehat-server/internal/connectivity"
	"github.com/imanmay2/sehat-server/internal/pharmacy"
	"github.com/imanmay2/sehat-server/internal/session"
	"github.com/imanmay2/sehat-server/internal/syncqueue"
)

// 2026-09-07 is a Monday.
var monday = time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC)

type stubSource struct {
	state connectivity.State
}

func (s *stubSource) Current() connectivity.Snapshot {
	return connectivity.Snapshot{State: s.state, Since: time.Now()}
}

type testEnv struct {
	server   *httptest.Server
	conn     *stubSource
	provider *availability.Provider
	pharm    *pharmacy.Pharmacy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	provider := &availability.Provider{
		ID:   uuid.New(),
		Name: "Dr. Test",
		Windows: []availability.AvailabilityWindow{
			{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60, SlotMinutes: 30},
		},
	}
	store := availability.NewMemStore()
	store.AddProvider(provider)

	conn := &stubSource{state: connectivity.Online}
	bookings := booking.NewService(
		booking.NewMemRepository(), store, booking.NewMemLocker(), conn, 2*time.Minute)

	negotiator := session.NewNegotiator(bookings, conn, session.Config{
		DegradedThreshold: 0.4,
		DowngradeAfter:    2,
		MaxDegradedDwell:  90 * time.Second,
	})

	pharmacyRepo := pharmacy.NewMemRepository()
	pharm := &pharmacy.Pharmacy{ID: uuid.New(), Name: "City Pharmacy", Latitude: 31.5, Longitude: 74.3}
	pharmacyRepo.AddPharmacy(pharm)
	pharmacies := pharmacy.NewService(pharmacyRepo, zerolog.Nop())

	queue := syncqueue.NewQueue(
		syncqueue.NewMemStore(),
		syncqueue.NewDispatcher(bookings, pharmacies),
		conn,
		time.Second,
	)

	router := NewRouter(RouterConfig{
		Bookings:     bookings,
		Availability: store,
		Sessions:     negotiator,
		Queue:        queue,
		Pharmacies:   pharmacies,
		Connectivity: conn,
		Logger:       zerolog.Nop(),
		Env:          "test",
		Version:      "test",
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, conn: conn, provider: provider, pharm: pharm}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) bookBody(modality string) map[string]any {
	return map[string]any{
		"patient_id":       uuid.NewString(),
		"provider_id":      e.provider.ID.String(),
		"start_time":       monday.Add(9 * time.Hour).Format(time.RFC3339),
		"duration_minutes": 30,
		"modality":         modality,
		"reason":           "fever",
	}
}

func TestBookAppointmentEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/appointments", env.bookBody("video"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	appt := decode[AppointmentResponse](t, resp)
	assert.Equal(t, "confirmed", appt.Status)
	assert.Equal(t, "video", appt.Modality)
	assert.Nil(t, appt.HoldExpiresAt)
}

func TestBookAppointmentConflict(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/appointments", env.bookBody("video"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/appointments", env.bookBody("video"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "slot_taken", decode[ErrorResponse](t, resp).Error)
}

func TestBookAppointmentValidation(t *testing.T) {
	env := newTestEnv(t)

	body := env.bookBody("telepathy")
	resp := env.do(t, http.MethodPost, "/appointments", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body = env.bookBody("video")
	body["duration_minutes"] = 0
	resp = env.do(t, http.MethodPost, "/appointments", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookAppointmentOffline(t *testing.T) {
	env := newTestEnv(t)
	env.conn.state = connectivity.Offline

	resp := env.do(t, http.MethodPost, "/appointments", env.bookBody("video"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "offline_booking_not_allowed", decode[ErrorResponse](t, resp).Error)
}

func TestListOpenSlotsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	path := fmt.Sprintf("/providers/%s/slots?from=%s&to=%s",
		env.provider.ID, monday.Format("2006-01-02"), monday.AddDate(0, 0, 1).Format("2006-01-02"))

	resp := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	before := decode[[]SlotResponse](t, resp)
	require.NotEmpty(t, before)

	booked := env.do(t, http.MethodPost, "/appointments", env.bookBody("video"))
	require.Equal(t, http.StatusCreated, booked.StatusCode)

	resp = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	after := decode[[]SlotResponse](t, resp)
	assert.Len(t, after, len(before)-1, "booked slot must drop out of the open list")
}

func TestListOpenSlotsUnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/providers/%s/slots?from=2026-09-07&to=2026-09-08", uuid.New())
	resp := env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelAppointmentEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/appointments", env.bookBody("video"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[AppointmentResponse](t, resp)

	resp = env.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", decode[AppointmentResponse](t, resp).Status)

	// Cancelling again conflicts.
	resp = env.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetAppointmentNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/appointments", env.bookBody("video"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[AppointmentResponse](t, resp)

	resp = env.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/join", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decode[SessionResponse](t, resp)
	assert.Equal(t, "connecting", sess.Phase)

	resp = env.do(t, http.MethodPost, "/sessions/"+sess.ID.String()+"/connected", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "connected", decode[SessionResponse](t, resp).Phase)

	// Two consecutive bad samples degrade and downgrade the session.
	for _, sample := range []float64{0.3, 0.2} {
		resp = env.do(t, http.MethodPost, "/sessions/"+sess.ID.String()+"/quality",
			map[string]any{"sample": sample})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/sessions/"+sess.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[SessionResponse](t, resp)
	assert.Equal(t, "degraded", got.Phase)
	assert.Equal(t, "audio", got.Modality)

	resp = env.do(t, http.MethodPost, "/sessions/"+sess.ID.String()+"/end",
		map[string]any{"reason": "hangup"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", decode[AppointmentResponse](t, resp).Status)
}

func TestConnectivityEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/connectivity", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "online", decode[ConnectivityResponse](t, resp).State)

	env.conn.state = connectivity.Offline
	resp = env.do(t, http.MethodGet, "/connectivity", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "offline", decode[ConnectivityResponse](t, resp).State)
}

func TestSyncQueueEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.conn.state = connectivity.Offline

	payload, err := json.Marshal(map[string]any{
		"pharmacy_id": env.pharm.ID.String(),
		"medicine":    "paracetamol",
		"quantity":    7,
	})
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/sync/mutations", map[string]any{
		"kind":            "stock_update",
		"payload":         json.RawMessage(payload),
		"idempotency_key": "stock-1",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/sync/mutations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]MutationResponse](t, resp), 1)

	// Flushing while offline is refused.
	resp = env.do(t, http.MethodPost, "/sync/flush", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	env.conn.state = connectivity.Online
	resp = env.do(t, http.MethodPost, "/sync/flush", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outcomes := decode[[]FlushOutcomeResponse](t, resp)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Applied)

	resp = env.do(t, http.MethodGet, "/pharmacies/"+env.pharm.ID.String()+"/stock", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decode[[]StockItemResponse](t, resp)
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Quantity)
}

func TestPharmacyEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/pharmacies/"+env.pharm.ID.String()+"/stock",
		map[string]any{"medicine": "cetirizine", "quantity": 3})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet,
		"/medicines/cetirizine/pharmacies?lat=31.5&lng=74.3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decode[[]StockedPharmacyResponse](t, resp)
	require.Len(t, results, 1)
	assert.Equal(t, env.pharm.ID, results[0].ID)
	assert.Equal(t, 3, results[0].Quantity)
}
