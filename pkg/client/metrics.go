package client

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ttvchat_messages_received_total",
		Help: "Protocol messages decoded from the server.",
	})
	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ttvchat_messages_sent_total",
		Help: "Chat messages written to the server.",
	})
	parseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ttvchat_parse_errors_total",
		Help: "Inbound lines discarded as malformed.",
	})
	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ttvchat_reconnects_total",
		Help: "Reconnect attempts after a dropped connection.",
	})
	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ttvchat_rate_limited_total",
		Help: "Sends deferred because the rate limiter had no token.",
	})
)

// RateLimitedInc records a send deferred by the rate limiter.
func RateLimitedInc() { rateLimited.Inc() }

// ServeMetrics exposes the Prometheus registry over HTTP. Blocks; run
// in a goroutine. A listen failure is returned, not fatal to the chat
// session.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
