package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthChecker is implemented by dependencies that can report liveness
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck returns a simple liveness handler
func HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessCheck reports whether the gateway can serve traffic. The audit
// database check only runs when a database mirror is configured.
func ReadinessCheck(auditDB HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		status := "ready"

		if auditDB != nil {
			if err := auditDB.HealthCheck(ctx); err != nil {
				status = "not_ready"
				checks["audit_database"] = "unhealthy"
				logger.Error("audit database health check failed", zap.Error(err))
			} else {
				checks["audit_database"] = "healthy"
			}
		} else {
			checks["audit_database"] = "not_configured"
		}

		w.Header().Set("Content-Type", "application/json")
		if status == "ready" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}
