package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"helpdesk-bot/internal/common/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBodyBytes caps a webhook body.
const MaxBodyBytes = 1 << 20

// Ingester turns one webhook body into an HTTP reply.
type Ingester interface {
	Ingest(ctx context.Context, body []byte) (int, string)
}

// NewMux serves the webhook on webhookPath plus health and metrics
// endpoints. An empty webhookPath serves health and metrics only.
func NewMux(webhookPath string, ingester Ingester, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	if webhookPath != "" && ingester != nil {
		mux.Handle(webhookPath, WebhookHandler(ingester, log))
	}
	mux.HandleFunc("/healthz", statusHandler("healthy"))
	mux.HandleFunc("/ready", statusHandler("ready"))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// WebhookHandler accepts POSTed updates and replies with whatever the
// ingester returns.
func WebhookHandler(ingester Ingester, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			log.Warn("failed to read webhook body", map[string]interface{}{"error": err})
			http.Error(w, "Error: "+err.Error(), http.StatusRequestEntityTooLarge)
			return
		}

		status, reply := ingester.Ingest(r.Context(), body)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	})
}

func statusHandler(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

// NewServer returns a server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
