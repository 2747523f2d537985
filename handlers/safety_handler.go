package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/upb/safety-control-plane/middleware"
	"github.com/upb/safety-control-plane/services/safety"
	"github.com/upb/safety-control-plane/utils"
	"go.uber.org/zap"
)

// EmergencyStopRequest is the body for POST /emergency/stop
type EmergencyStopRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// SafetyHandler handles subsystem state HTTP requests
type SafetyHandler struct {
	controller *safety.Controller
	logger     *zap.Logger
}

// NewSafetyHandler creates a new SafetyHandler
func NewSafetyHandler(controller *safety.Controller, logger *zap.Logger) *SafetyHandler {
	return &SafetyHandler{
		controller: controller,
		logger:     logger,
	}
}

// HandleStatus handles GET /status
func (h *SafetyHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.controller.Status())
}

// HandleResourceUsage handles GET /resources
func (h *SafetyHandler) HandleResourceUsage(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.controller.ResourceUsage()
	if !ok {
		_ = utils.WriteNotFound(w, "No resource sample available yet")
		return
	}
	_ = utils.WriteOK(w, sample)
}

// HandleFileVerdicts handles GET /downloads/verdicts
func (h *SafetyHandler) HandleFileVerdicts(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.controller.FileVerdicts())
}

// HandleEmergencyStop handles POST /emergency/stop
func (h *SafetyHandler) HandleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)
	if userID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req EmergencyStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	h.controller.EmergencyStop(userID, req.Reason)
	h.logger.Warn("emergency stop via api",
		zap.String("user_id", userID),
		zap.String("reason", req.Reason))
	_ = utils.WriteOK(w, h.controller.Status())
}

// HandleEmergencyResume handles POST /emergency/resume
func (h *SafetyHandler) HandleEmergencyResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)
	if userID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	h.controller.EmergencyResume(userID)
	h.logger.Info("emergency resume via api", zap.String("user_id", userID))
	_ = utils.WriteOK(w, h.controller.Status())
}
