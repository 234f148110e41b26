package middleware

import (
	"net/http"

	"github.com/hitoshi/greetcard/internal/metrics"
)

// NewMetricsMiddleware はHTTPメソッドとステータスコード別のリクエスト数を記録するミドルウェアを返す。
func NewMetricsMiddleware(mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			mc.RecordHTTPRequest(r.Method, rec.statusCode)
		})
	}
}
