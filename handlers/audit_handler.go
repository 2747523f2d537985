package handlers

import (
	"net/http"
	"time"

	"github.com/upb/safety-control-plane/services/audit"
	"github.com/upb/safety-control-plane/utils"
	"go.uber.org/zap"
)

// AuditHandler handles audit trail HTTP requests
type AuditHandler struct {
	auditSvc *audit.Service
	logger   *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditSvc *audit.Service, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditSvc: auditSvc,
		logger:   logger,
	}
}

// HandleListEntries handles GET /audit/logs. Supported query filters:
// user_id, action, start, end (RFC 3339).
func (h *AuditHandler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := audit.Filter{
		UserID: query.Get("user_id"),
		Action: query.Get("action"),
	}

	if raw := query.Get("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid start time, expected RFC 3339", nil)
			return
		}
		filter.Start = start
	}
	if raw := query.Get("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid end time, expected RFC 3339", nil)
			return
		}
		filter.End = end
	}

	entries := h.auditSvc.Trail(filter)
	h.logger.Debug("audit trail queried",
		zap.String("user_id", filter.UserID),
		zap.String("action", filter.Action),
		zap.Int("count", len(entries)))
	_ = utils.WriteOK(w, entries)
}

// HandleStats handles GET /audit/stats
func (h *AuditHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.auditSvc.GetStats())
}
