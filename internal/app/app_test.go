package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

const (
	testKey    = "e2e-key"
	testPepper = "e2e-pepper"
)

type testApp struct {
	backend *backend
	stack   *stack
	server  *httptest.Server
	client  *http.Client
}

func newTestApp(t *testing.T, modify ...func(*Config)) *testApp {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := validConfig()
	cfg.APIKey = testKey
	cfg.APIKeyPepper = testPepper
	cfg.RequestTimeout = 5 * time.Second
	for _, f := range modify {
		f(&cfg)
	}

	b, err := openBackend(ctx, zap.NewNop(), &cfg)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	st, err := newStack(ctx, zap.NewNop(), tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider(), &cfg, b)
	require.NoError(t, err)
	st.health.SetReady(true)

	srv := httptest.NewServer(st.handler)
	t.Cleanup(srv.Close)
	return &testApp{backend: b, stack: st, server: srv, client: srv.Client()}
}

func (a *testApp) do(t *testing.T, method, path, user string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, a.server.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestApp_Health(t *testing.T) {
	a := newTestApp(t)

	resp := a.do(t, http.MethodGet, "/livez", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/readyz", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	a.stack.health.SetReady(false)
	resp = a.do(t, http.MethodGet, "/readyz", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestApp_RequestID(t *testing.T) {
	a := newTestApp(t)

	resp := a.do(t, http.MethodGet, "/livez", "", nil, nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = a.do(t, http.MethodGet, "/livez", "", nil, map[string]string{"X-Request-ID": "custom-request-id-12345"})
	assert.Equal(t, "custom-request-id-12345", resp.Header.Get("X-Request-ID"))
}

func TestApp_RateLimitPerUser(t *testing.T) {
	a := newTestApp(t, func(c *Config) { c.RateLimit = RateLimitConfig{Max: 2, Window: time.Minute} })

	for range 2 {
		resp := a.do(t, http.MethodGet, "/api/cart", "alice", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := a.do(t, http.MethodGet, "/api/cart", "alice", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/cart", "bob", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_CheckoutFlow(t *testing.T) {
	a := newTestApp(t)
	const user = "shopper"

	products := decodeResponse[[]struct {
		ID                string  `json:"id"`
		Price             float64 `json:"price"`
		AvailableQuantity int     `json:"availableQuantity"`
	}](t, a.do(t, http.MethodGet, "/api/products", "", nil, nil))
	require.NotEmpty(t, products)
	first := products[0]

	resp := a.do(t, http.MethodPost, "/api/cart/items", user,
		map[string]any{"productId": first.ID, "quantity": 2}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	priced := decodeResponse[struct {
		GrandTotal float64 `json:"grandTotal"`
	}](t, a.do(t, http.MethodGet, "/api/cart", user, nil, nil))
	require.Positive(t, priced.GrandTotal)

	resp = a.do(t, http.MethodPost, "/api/checkout", user,
		map[string]string{"shippingAddress": "Gran Via 28", "paymentToken": "4111111111111111"},
		map[string]string{"api_key": testKey, "Idempotency-Key": "k1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	o := decodeResponse[struct {
		ID         string  `json:"id"`
		GrandTotal float64 `json:"grandTotal"`
	}](t, resp)
	assert.InDelta(t, priced.GrandTotal, o.GrandTotal, 0.001)

	// Replayed request returns the same order.
	resp = a.do(t, http.MethodPost, "/api/checkout", user,
		map[string]string{"shippingAddress": "Gran Via 28", "paymentToken": "4111111111111111"},
		map[string]string{"api_key": testKey, "Idempotency-Key": "k1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, o.ID, decodeResponse[struct {
		ID string `json:"id"`
	}](t, resp).ID)

	p, ok, err := a.backend.catalog.GetProduct(context.Background(), first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.AvailableQuantity-2, p.AvailableQuantity)

	_, err = a.backend.carts.FindActive(context.Background(), user)
	assert.ErrorIs(t, err, cart.ErrNoActiveCart)
}

func TestApp_UnknownRoute(t *testing.T) {
	a := newTestApp(t)

	resp := a.do(t, http.MethodGet, "/api/product", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
