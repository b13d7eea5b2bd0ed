package billapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/billix-app/billix/internal/metrics"
	"go.uber.org/zap"
)

// loggingTransport logs and counts every backend request. Bodies are never logged.
type loggingTransport struct {
	next http.RoundTripper
	log  *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	dur := time.Since(start)
	endpoint := req.URL.Path

	code := 0
	if resp != nil {
		code = resp.StatusCode
	}
	metrics.APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(dur.Seconds())

	if err != nil {
		t.log.Warn("http",
			zap.String("method", req.Method),
			zap.String("path", endpoint),
			zap.Duration("dur", dur),
			zap.Error(err),
		)
		return nil, err
	}
	t.log.Info("http",
		zap.String("method", req.Method),
		zap.String("path", endpoint),
		zap.Int("code", code),
		zap.Duration("dur", dur),
	)
	return resp, nil
}
