package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bistrodesk/orderflow/pkg/logger"
)

func newBufferedLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{ServiceName: "middleware-test", Output: buf, Format: logger.FormatJSON})
}

func TestRequestID_EchoesSafeHeader(t *testing.T) {
	var buf bytes.Buffer
	logg := newBufferedLogger(&buf)
	h := RequestID(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logg.Info(r.Context(), "inside handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "client-abc.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "client-abc.1", rec.Header().Get(requestIDHeader))
	assert.Contains(t, buf.String(), `"request_id":"client-abc.1"`)
}

func TestRequestID_ReplacesUnsafeHeader(t *testing.T) {
	h := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "bad id\nwith newline")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	got := rec.Header().Get(requestIDHeader)
	assert.NotEqual(t, "bad id\nwith newline", got)
	assert.Len(t, got, 36)
}

func TestLogging_RecordsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Logging(newBufferedLogger(&buf)))
	r.Get("/api/v1/orders/{orderNumber}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/42", nil))

	out := buf.String()
	assert.Contains(t, out, `"route":"/api/v1/orders/{orderNumber}"`)
	assert.Contains(t, out, `"path":"/api/v1/orders/42"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"bytes":3`)
}

func TestRecoverer_WritesInternalError(t *testing.T) {
	var buf bytes.Buffer
	h := Recoverer(newBufferedLogger(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kitchen on fire")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INTERNAL_ERROR"`)
	assert.NotContains(t, rec.Body.String(), "kitchen on fire")
	assert.True(t, strings.Contains(buf.String(), "panic.recovered"))
}

func TestRecoverer_RepanicsAbortHandler(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestCORS_ProductionHasNoImplicitOrigins(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	preflight := func(h http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	dev := preflight(CORS(nil, false)(ok))
	assert.Equal(t, "http://localhost:3000", dev.Header().Get("Access-Control-Allow-Origin"))

	prod := preflight(CORS(nil, true)(ok))
	assert.Empty(t, prod.Header().Get("Access-Control-Allow-Origin"))

	configured := preflight(CORS([]string{"http://localhost:3000"}, true)(ok))
	assert.Equal(t, "http://localhost:3000", configured.Header().Get("Access-Control-Allow-Origin"))
}
