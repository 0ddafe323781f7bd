package api

import (
	"context"
	"net/http"
	"time"

	"github.com/AlexZinkM/custody-wallet/internal/metrics"

	httpSwagger "github.com/swaggo/http-swagger"
)

// HealthFunc reports whether the service dependencies are reachable.
type HealthFunc func(ctx context.Context) error

// SetupRouter sets up router with handlers
func SetupRouter(rpc http.Handler, m *metrics.Metrics, health HealthFunc) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", healthz(health))

	// JSON-RPC
	mux.Handle("/", rpc)

	return mux
}

// healthz handles GET /healthz
// @Summary      Health check
// @Tags         ops
// @Produce      plain
// @Success      200  {string}  string  "ok"
// @Failure      503  {string}  string  "unavailable"
// @Router       /healthz [get]
func healthz(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if health != nil {
			if err := health(ctx); err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}
}
