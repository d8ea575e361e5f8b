package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coin-engine/src/engine"
	"coin-engine/src/events"
	"coin-engine/src/models"
	"coin-engine/src/store"
)

func newTestApp() (*fiber.App, *store.MemoryStore) {
	st := store.NewMemoryStore()
	matcher := engine.NewMatcher(st, events.NopEmitter{})
	h := NewOrderHandler(matcher, st)

	app := fiber.New()
	app.Post("/api/v1/orders", h.SubmitOrder)
	app.Get("/api/v1/orders/:pair/:id", h.GetOrder)
	app.Delete("/api/v1/orders/:pair/:id", h.CancelOrder)
	app.Get("/api/v1/depth/:pair", h.GetDepth)
	app.Get("/health", h.HealthCheck)
	return app, st
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func submitReq(side, price, qty string) models.SubmitOrderRequest {
	return models.SubmitOrderRequest{
		MemberID: 42,
		Coin:     "BTC",
		Market:   "KRW",
		Side:     side,
		Price:    price,
		Quantity: qty,
	}
}

func TestSubmitOrderRests(t *testing.T) {
	app, st := newTestApp()

	var resp models.SubmitOrderResponse
	status := doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("BUY", "100", "1.5"), &resp)

	assert.Equal(t, http.StatusCreated, status)
	assert.True(t, resp.Rested)
	assert.Equal(t, "BTC-KRW", resp.Pair)
	assert.Equal(t, "1.5", resp.RemainingQuantity)
	assert.Empty(t, resp.Fills)
	assert.Equal(t, 1, st.PendingCount("BTC-KRW"))
}

func TestSubmitOrderMatchReportsFills(t *testing.T) {
	app, _ := newTestApp()

	var first models.SubmitOrderResponse
	doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("BUY", "100", "1"), &first)

	var second models.SubmitOrderResponse
	status := doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("SELL", "90", "1"), &second)

	assert.Equal(t, http.StatusCreated, status)
	assert.False(t, second.Rested)
	assert.Equal(t, "0", second.RemainingQuantity)
	require.Len(t, second.Fills, 2)
	for _, fill := range second.Fills {
		assert.Equal(t, "100", fill.ExecutionPrice)
		assert.NotEmpty(t, fill.MatchChain)
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	app, _ := newTestApp()

	cases := []struct {
		name string
		req  models.SubmitOrderRequest
	}{
		{"bad side", submitReq("HOLD", "100", "1")},
		{"zero quantity", submitReq("BUY", "100", "0")},
		{"negative price", submitReq("BUY", "-1", "1")},
		{"garbage price", submitReq("BUY", "abc", "1")},
		{"missing coin", models.SubmitOrderRequest{MemberID: 1, Market: "KRW", Side: "BUY", Price: "100", Quantity: "1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp models.ErrorResponse
			status := doJSON(t, app, http.MethodPost, "/api/v1/orders", tc.req, &resp)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestSubmitOrderUnparseableDecimalNamesField(t *testing.T) {
	app, _ := newTestApp()

	var resp models.ErrorResponse
	status := doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("BUY", "1o0", "1"), &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp.Error, "invalid decimal price")

	status = doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("BUY", "100", "1..5"), &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp.Error, "invalid decimal quantity")
}

func TestSubmitOrderMalformedJSON(t *testing.T) {
	app, _ := newTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader([]byte("{nope")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetOrderLifecycle(t *testing.T) {
	app, _ := newTestApp()

	var submitted models.SubmitOrderResponse
	doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("BUY", "100", "1.5"), &submitted)

	var order models.OrderResponse
	status := doJSON(t, app, http.MethodGet, "/api/v1/orders/BTC-KRW/"+submitted.TrackingID, nil, &order)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PENDING", order.Status)
	assert.Equal(t, "1.5", order.Quantity)

	status = doJSON(t, app, http.MethodGet, "/api/v1/orders/BTC-KRW/1_missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSON(t, app, http.MethodGet, "/api/v1/orders/notapair/x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCancelOrder(t *testing.T) {
	app, st := newTestApp()

	var submitted models.SubmitOrderResponse
	doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("BUY", "100", "1"), &submitted)

	var cancelled models.CancelOrderResponse
	status := doJSON(t, app, http.MethodDelete, "/api/v1/orders/BTC-KRW/"+submitted.TrackingID, nil, &cancelled)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, submitted.TrackingID, cancelled.TrackingID)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	assert.Zero(t, st.PendingCount("BTC-KRW"))

	status = doJSON(t, app, http.MethodDelete, "/api/v1/orders/BTC-KRW/"+submitted.TrackingID, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGetDepth(t *testing.T) {
	app, _ := newTestApp()

	doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("BUY", "100", "1"), nil)
	doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("BUY", "99", "2"), nil)
	doJSON(t, app, http.MethodPost, "/api/v1/orders", submitReq("SELL", "110", "3"), nil)

	var depth models.DepthResponse
	status := doJSON(t, app, http.MethodGet, "/api/v1/depth/BTC-KRW?limit=1", nil, &depth)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, depth.Bids, 1)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, "100", depth.Bids[0].Price)
	assert.Equal(t, "110", depth.Asks[0].Price)

	status = doJSON(t, app, http.MethodGet, "/api/v1/depth/BTC-KRW", nil, &depth)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, depth.Bids, 2)
}

func TestHealthCheck(t *testing.T) {
	app, _ := newTestApp()

	var health models.HealthResponse
	status := doJSON(t, app, http.MethodGet, "/health", nil, &health)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", health.Status)
}
