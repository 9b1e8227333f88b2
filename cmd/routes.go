package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"chat-relay/internal/observability"
)

// newServerHandler mounts the relay routes behind CORS and request metrics.
func newServerHandler(chat http.Handler, origin string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", chat)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return observability.MetricsMiddleware(c.Handler(mux))
}
