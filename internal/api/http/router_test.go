package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/money"
	"gearlend-backend/internal/notify"
	"gearlend-backend/internal/payment"
	"gearlend-backend/internal/repository/memory"
	"gearlend-backend/internal/security"
	"gearlend-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret     = "0123456789abcdef0123456789abcdef"
	testWebhookSecret = "whsk_test"
)

type apiFixture struct {
	router  http.Handler
	tokens  security.TokenManager
	gateway *payment.MockGateway
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	store.PutItem(domain.Item{ID: "item-1", OwnerID: "owner-1", Name: "Bosch rotary hammer", Category: "tools",
		PricePerUnit: money.FromPesos(500), Status: domain.ItemStatusAvailable})
	store.PutUser(domain.User{ID: "customer-1", Email: "cora@example.com", Name: "Cora"})
	store.PutUser(domain.User{ID: "owner-1", Email: "olive@example.com", Name: "Olive"})

	rates, err := money.NewRateTable("0.30", nil)
	require.NoError(t, err)

	gw := payment.NewMockGateway("http://localhost/checkout")
	dispatcher := notify.NewDispatcher(store.Notifications(), []notify.Channel{notify.LogChannel{}}, notify.Config{})
	engine := service.NewEngine(store, gw, rates, dispatcher, service.EngineConfig{WebhookSecret: testWebhookSecret})
	tokens := security.NewTokenManager(testJWTSecret, time.Hour)

	return &apiFixture{
		router: NewRouter(RouterDeps{
			Bookings:      engine,
			Reconcile:     engine,
			Notifications: service.NewNotificationService(store.Notifications(), dispatcher),
			Tokens:        tokens,
		}),
		tokens:  tokens,
		gateway: gw,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		roles := []string{}
		if userID == "admin-1" {
			roles = append(roles, security.RoleAdmin)
		}
		token, err := f.tokens.GenerateAccessToken(userID, userID+"@example.com", roles)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *apiFixture) createBooking(t *testing.T) bookingResponse {
	t.Helper()
	pickup := time.Date(2031, 11, 2, 9, 0, 0, 0, time.UTC)
	rec := f.do(t, http.MethodPost, "/api/v1/bookings", "customer-1", map[string]any{
		"item_id":            "item-1",
		"rental_duration":    3,
		"rental_period_unit": "day",
		"delivery_charge":    "100.00",
		"pickup_date":        pickup,
		"return_date":        pickup.Add(72 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[bookingResponse](t, rec)
}

func TestRouter_HealthAndAuth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/notifications/retry", "customer-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/notifications/retry", "admin-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_OnlineBookingFlow(t *testing.T) {
	f := newAPIFixture(t)
	b := f.createBooking(t)
	assert.Equal(t, "1600.00", b.GrandTotal)
	assert.Equal(t, "pending", b.Status)

	rec := f.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/request", "customer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/approve", "owner-1", map[string]any{
		"payment_method":  "gcash",
		"expected_status": "booked",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeBody[bookingResponse](t, rec)
	assert.Equal(t, "approved", approved.Status)
	require.NotEmpty(t, approved.PaymentIntentID)

	// Replaying the same approval is a no-op.
	rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/approve", "owner-1", map[string]any{
		"payment_method":  "gcash",
		"expected_status": "booked",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	raw := []byte(fmt.Sprintf(`{"data":{"id":"evt_1","type":"event","attributes":{"type":"payment.paid","livemode":false,`+
		`"data":{"id":"pay_1","type":"payment","attributes":{"amount":160000,"payment_intent_id":"%s"}}}}}`, approved.PaymentIntentID))
	ts := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(raw))
	req.Header.Set(SignatureHeader, fmt.Sprintf("t=%d,te=%s,li=", ts, payment.Sign(raw, testWebhookSecret, ts)))
	wh := httptest.NewRecorder()
	f.router.ServeHTTP(wh, req)
	require.Equal(t, http.StatusOK, wh.Code, wh.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/bookings/"+b.ID, "customer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ongoing", decodeBody[bookingResponse](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/api/v1/bookings/"+b.ID+"/settlement", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settlement := decodeBody[settlementResponse](t, rec)
	assert.Equal(t, "1600.00", settlement.RentalAmount)
	assert.Equal(t, "480.00", settlement.CommissionAmount)
	assert.Equal(t, "1120.00", settlement.OwnerShare)

	rec = f.do(t, http.MethodGet, "/api/v1/notifications", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decodeBody[listResponse[notificationResponse]](t, rec)
	assert.NotZero(t, notes.TotalCount)
}

func TestRouter_ErrorMapping(t *testing.T) {
	f := newAPIFixture(t)
	b := f.createBooking(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
		code   string
	}{
		{"approve a pending booking", http.MethodPost, "/api/v1/bookings/" + b.ID + "/approve", "owner-1",
			map[string]any{"payment_method": "cash"}, http.StatusConflict, "invalid_transition"},
		{"stranger reads booking", http.MethodGet, "/api/v1/bookings/" + b.ID, "stranger-1", nil,
			http.StatusForbidden, "forbidden"},
		{"unknown booking", http.MethodGet, "/api/v1/bookings/nope", "customer-1", nil,
			http.StatusNotFound, "not_found"},
		{"bad payment method", http.MethodPost, "/api/v1/bookings/" + b.ID + "/approve", "owner-1",
			map[string]any{"payment_method": "bitcoin"}, http.StatusBadRequest, "validation_failed"},
		{"unknown field", http.MethodPost, "/api/v1/bookings/" + b.ID + "/request", "customer-1",
			map[string]any{"surprise": true}, http.StatusBadRequest, "validation_failed"},
		{"no settlement yet", http.MethodGet, "/api/v1/bookings/" + b.ID + "/settlement", "customer-1", nil,
			http.StatusNotFound, "not_found"},
		{"payment before approval", http.MethodPost, "/api/v1/bookings/" + b.ID + "/payment", "customer-1", nil,
			http.StatusUnprocessableEntity, "precondition_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[errorResponse](t, rec).Code)
		})
	}
}

func TestRouter_CreateBookingValidation(t *testing.T) {
	f := newAPIFixture(t)
	pickup := time.Date(2031, 11, 2, 9, 0, 0, 0, time.UTC)

	rec := f.do(t, http.MethodPost, "/api/v1/bookings", "customer-1", map[string]any{
		"item_id":            "item-1",
		"rental_duration":    0,
		"rental_period_unit": "week",
		"pickup_date":        pickup,
		"return_date":        pickup.Add(-time.Hour),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Contains(t, resp.Fields, "rental_duration")
	assert.Contains(t, resp.Fields, "rental_period_unit")
	assert.Contains(t, resp.Fields, "return_date")
}

func TestRouter_WebhookSignature(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(SignatureHeader, "t=1,te=deadbeef,li=")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_signature", decodeBody[errorResponse](t, rec).Code)
}
