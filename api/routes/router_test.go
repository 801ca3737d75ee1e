package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bistrodesk/orderflow/internal/cart"
	"github.com/bistrodesk/orderflow/internal/orders"
	"github.com/bistrodesk/orderflow/internal/payments"
	"github.com/bistrodesk/orderflow/internal/sequence"
	"github.com/bistrodesk/orderflow/internal/tracking"
	"github.com/bistrodesk/orderflow/pkg/config"
	"github.com/bistrodesk/orderflow/pkg/db/dbtest"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/logger"
	"github.com/bistrodesk/orderflow/pkg/outbox"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T, redisPing error) (http.Handler, func() int64) {
	t.Helper()
	conn := dbtest.Open(t)
	tx := dbtest.TxRunner{DB: conn}
	events := outbox.NewService(outbox.NewRepository(conn), nil)

	reserver := sequence.NewReserver(sequence.NewCounterAllocator(conn, "orders"), sequence.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond}, nil)
	orderSvc, err := orders.NewService(orders.NewRepository(conn), tx, events, reserver, nil)
	require.NoError(t, err)
	cartSvc, err := cart.NewService(orderSvc, nil)
	require.NoError(t, err)
	paymentSvc, err := payments.NewService(payments.NewRepository(conn), tx, events, nil)
	require.NoError(t, err)
	trackingSvc, err := tracking.NewService(tracking.NewRepository(conn), tx, events, nil, config.TrackingConfig{
		DefaultEstimatedMinutes: 30,
		PublicBaseURL:           "https://orders.example.test",
		QRSize:                  128,
	})
	require.NoError(t, err)

	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	h := NewRouter(cfg, logg, Dependencies{
		DB:          stubPinger{},
		Redis:       stubPinger{err: redisPing},
		Idempotency: &memoryStore{data: map[string]string{}},
		Cart:        cartSvc,
		Orders:      orderSvc,
		Payments:    paymentSvc,
		Tracking:    trackingSvc,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})

	countOrders := func() int64 {
		var n int64
		require.NoError(t, conn.Model(&models.Order{}).Count(&n).Error)
		return n
	}
	return h, countOrders
}

func do(t *testing.T, h http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if dest != nil {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
	return env
}

func TestHealthRoutes(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Orderflow-Env"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(t, h, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())

	down, _ := newTestRouter(t, errors.New("redis down"))
	rec = do(t, down, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

const placeBody = `{"items":[{"name":"Pizza","price":"12.99","quantity":2},{"name":"Salade","price":8.99}],"promotions":[10]}`

func TestOrderRoutes(t *testing.T) {
	h, countOrders := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/orders", placeBody, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "idempotency key is required")

	rec = do(t, h, http.MethodPost, "/api/v1/orders", placeBody, "order-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed orders.OrderDTO
	decode(t, rec, &placed)
	assert.EqualValues(t, 1, placed.OrderNumber)
	assert.Equal(t, "31.47", placed.Total)
	assert.Equal(t, "pending", string(placed.Status))
	require.Len(t, placed.Items, 3)
	assert.Equal(t, "Pizza", placed.Items[1].ItemName)
	assert.Equal(t, 1, placed.Items[1].Quantity)

	replay := do(t, h, http.MethodPost, "/api/v1/orders", placeBody, "order-1")
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.JSONEq(t, rec.Body.String(), replay.Body.String())
	assert.EqualValues(t, 1, countOrders())

	rec = do(t, h, http.MethodPost, "/api/v1/orders", `{"items":[]}`, "order-2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/orders", `{"items":[{"name":"Pizza","price":"1"}],"promotions":[150]}`, "order-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/orders", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orders.OrderDTO
	decode(t, rec, &list)
	assert.Len(t, list, 1)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/orders/99", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/orders/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPatch, "/api/v1/orders/1/status", `{"status":"confirmed"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated orders.OrderDTO
	decode(t, rec, &updated)
	assert.Equal(t, "confirmed", string(updated.Status))

	rec = do(t, h, http.MethodPatch, "/api/v1/orders/1/status", `{"status":"cancelled"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentRoutes(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/orders/5/payments/latest", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/5/payments", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/orders/5/payments", `{"amount":"0"}`, "pay-0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/orders/5/payments", `{"amount":"10","payment_method":"bitcoin"}`, "pay-x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/orders/5/payments", `{"amount":"31.47"}`, "pay-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var recorded payments.RecordResult
	decode(t, rec, &recorded)
	assert.Equal(t, "validated", string(recorded.Status))
	assert.Equal(t, "card", string(recorded.PaymentMethod))
	assert.Equal(t, "31.47", recorded.Amount)
	assert.True(t, strings.HasPrefix(recorded.TransactionID, "TRX-"))

	rec = do(t, h, http.MethodGet, "/api/v1/orders/5/payments/latest", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest payments.StatusView
	decode(t, rec, &latest)
	assert.Equal(t, recorded.TransactionID, latest.TransactionID)

	rec = do(t, h, http.MethodPatch, "/api/v1/orders/5/payments/status", `{"status":"refunded"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodPatch, "/api/v1/orders/5/payments/status", `{"status":"lost"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/5/payments", "", "")
	var history []payments.PaymentDTO
	decode(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "refunded", string(history[0].Status))
}

func TestTrackingRoutes(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/orders/1/tracking", "", "track-missing")
	assert.Equal(t, http.StatusNotFound, rec.Code, "order must exist before tracking")

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/orders", placeBody, "order-1").Code)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/1/tracking", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/orders/1/tracking", "", "track-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created tracking.TrackingDTO
	decode(t, rec, &created)
	assert.Equal(t, "preparation", string(created.Status))
	assert.Equal(t, 30, created.EstimatedTimeMinutes)
	assert.Equal(t, "31.47", created.Total)
	assert.Len(t, created.Items, 3)

	rec = do(t, h, http.MethodPost, "/api/v1/orders/1/tracking", "", "track-2")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPatch, "/api/v1/orders/1/tracking/status", `{"status":"ready"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPatch, "/api/v1/orders/1/tracking/status", `{"status":"lost"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/orders/1/tracking/estimated-time", `{"minutes":15}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPut, "/api/v1/orders/1/tracking/estimated-time", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/orders/1/tracking/notes", `{"note":"  ring the bell "}`, "note-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/orders/1/tracking/payment-method", `{"payment_method":"cash"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var withMethod tracking.TrackingDTO
	decode(t, rec, &withMethod)
	require.NotNil(t, withMethod.PaymentMethod)
	assert.Equal(t, "cash", string(*withMethod.PaymentMethod))
	assert.Equal(t, 15, withMethod.EstimatedTimeMinutes)
	assert.Equal(t, []string{"ring the bell"}, withMethod.Notes)

	rec = do(t, h, http.MethodPost, "/api/v1/orders/1/tracking/cancel", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cancel requires an idempotency key")

	rec = do(t, h, http.MethodPost, "/api/v1/orders/1/tracking/cancel", "", "cancel-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled tracking.TrackingDTO
	decode(t, rec, &cancelled)
	assert.Equal(t, "cancelled", string(cancelled.Status))

	rec = do(t, h, http.MethodPost, "/api/v1/orders/1/tracking/cancel", "", "cancel-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))

	rec = do(t, h, http.MethodPatch, "/api/v1/orders/1/tracking/status", `{"status":"ready"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/1/tracking/qr", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}
