package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mockMetrics はMetricsCollectorのモック。
type mockMetrics struct {
	methods  []string
	statuses []int
}

func (m *mockMetrics) RecordHTTPRequest(method string, statusCode int) {
	m.methods = append(m.methods, method)
	m.statuses = append(m.statuses, statusCode)
}
func (m *mockMetrics) RecordGeneration(kind, outcome string, duration time.Duration) {}
func (m *mockMetrics) RecordCardSave(outcome string)                                 {}
func (m *mockMetrics) RecordStorageDeleteFailure()                                   {}

// TestMetricsMiddleware_RecordsStatus はステータスコードがメトリクスに記録されることを検証する。
func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	mm := &mockMetrics{}
	handler := NewMetricsMiddleware(mm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/history/x", nil))

	if len(mm.statuses) != 1 || mm.statuses[0] != http.StatusNotFound || mm.methods[0] != http.MethodDelete {
		t.Errorf("recorded = %v %v", mm.methods, mm.statuses)
	}
}

// TestRecoveryMiddleware_PanicReturns500 はpanicが統一フォーマットの500になることを検証する。
func TestRecoveryMiddleware_PanicReturns500(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if body := decodeErrorBody(t, w); body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
}

// TestRecoveryMiddleware_PanicAfterWrite は書き込み開始後のpanicでレスポンスを書き直さないことを検証する。
func TestRecoveryMiddleware_PanicAfterWrite(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("partial"))
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK || w.Body.String() != "partial" {
		t.Errorf("response rewritten: %d %q", w.Code, w.Body.String())
	}
}

// TestMiddlewareChain_PanicKeepsSecurityHeaders は内側でpanicしても
// セキュリティヘッダー付きの500が返ることを検証する。
func TestMiddlewareChain_PanicKeepsSecurityHeaders(t *testing.T) {
	var buf bytes.Buffer
	mm := &mockMetrics{}

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h = NewLoggingMiddleware(newJSONLogger(&buf))(h)
	h = NewMetricsMiddleware(mm)(h)
	h = NewSecurityHeadersMiddleware()(h)
	h = NewRecoveryMiddleware()(h)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ai/generate-text", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be set before the handler runs")
	}
}

// TestSecurityHeaders はセキュリティヘッダーが付与されることを検証する。
func TestSecurityHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
