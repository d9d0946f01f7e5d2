package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/vending-kiosk/internal/obs"
)

type ctxKey int

const (
	ctxKeyOp ctxKey = iota
	ctxKeyRequestID
)

func withOp(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, ctxKeyOp, op)
}

func opFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyOp).(string)
	return v
}

// WithRequestID makes outgoing calls reuse reqID instead of generating one.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// instrumented tags every exchange with an X-Request-Id, logs it and
// records its latency.
type instrumented struct {
	next    http.RoundTripper
	metrics *obs.Metrics
}

// Instrument wraps next with request ids, logging and metrics.
func Instrument(next http.RoundTripper, m *obs.Metrics) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumented{next: next, metrics: m}
}

func (t *instrumented) RoundTrip(r *http.Request) (*http.Response, error) {
	reqID, _ := r.Context().Value(ctxKeyRequestID).(string)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	r = r.Clone(r.Context())
	r.Header.Set("X-Request-Id", reqID)

	op := opFromContext(r.Context())
	start := time.Now()
	resp, err := t.next.RoundTrip(r)
	lat := time.Since(start)
	if err != nil {
		t.metrics.ObserveSessionRequest(op, "transport_error", lat)
		obs.Logger.Warn("session_request_failed",
			"op", op,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", reqID,
			"error", err,
		)
		return nil, err
	}
	result := "ok"
	if resp.StatusCode >= 300 {
		result = "api_error"
	}
	t.metrics.ObserveSessionRequest(op, result, lat)
	obs.Logger.Info("session_request",
		"op", op,
		"method", r.Method,
		"path", r.URL.Path,
		"status", resp.StatusCode,
		"latency_ms", float64(lat.Microseconds())/1000.0,
		"request_id", reqID,
	)
	return resp, nil
}
