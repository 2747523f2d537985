package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/safety-control-plane/middleware"
	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/approval"
	"github.com/upb/safety-control-plane/services/safety"
	"github.com/upb/safety-control-plane/utils"
	"go.uber.org/zap"
)

// RequestOperationRequest is the body for POST /operations
type RequestOperationRequest struct {
	Action          string             `json:"action" validate:"required"`
	Resource        string             `json:"resource" validate:"required"`
	Context         models.RiskContext `json:"context"`
	PermissionLevel string             `json:"permission_level" validate:"omitempty,oneof=read_only standard elevated full_access"`
}

// DenyOperationRequest is the body for POST /operations/{id}/deny
type DenyOperationRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CompleteOperationRequest is the body for POST /operations/{id}/complete
type CompleteOperationRequest struct {
	Success bool   `json:"success"`
	Details string `json:"details,omitempty"`
}

// OperationHandler handles operation lifecycle HTTP requests
type OperationHandler struct {
	controller *safety.Controller
	logger     *zap.Logger
}

// NewOperationHandler creates a new OperationHandler
func NewOperationHandler(controller *safety.Controller, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		controller: controller,
		logger:     logger,
	}
}

// HandleRequestOperation handles POST /operations
func (h *OperationHandler) HandleRequestOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	userID := middleware.GetUserIDFromContext(ctx)
	if userID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req RequestOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	level := models.PermissionLevel(req.PermissionLevel)
	if level == "" {
		level = models.PermissionStandard
	}

	result := h.controller.RequestOperation(ctx, userID, req.Action, req.Resource, req.Context, level)

	h.logger.Info("operation request handled",
		zap.String("request_id", requestID),
		zap.String("user_id", userID),
		zap.String("action", req.Action),
		zap.Bool("allowed", result.Allowed),
		zap.String("message", result.Message))

	switch {
	case result.Allowed:
		_ = utils.WriteOK(w, result)
	case result.OperationID != "":
		// parked pending approval
		_ = utils.WriteAccepted(w, result)
	case result.Message == approval.MsgRiskLimit,
		result.Message == approval.MsgOverrideLimit,
		result.Message == approval.MsgRateLimit,
		result.Message == approval.MsgConcurrency:
		_ = utils.WriteTooManyRequests(w, result.Message, nil)
	default:
		_ = utils.WriteForbidden(w, result.Message)
	}
}

// HandleApproveOperation handles POST /operations/{id}/approve
func (h *OperationHandler) HandleApproveOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	approverID := middleware.GetUserIDFromContext(ctx)
	if approverID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	operationID := chi.URLParam(r, "id")
	if err := utils.ValidateUUID(operationID); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid operation ID format", nil)
		return
	}

	if err := h.controller.ApproveOperation(operationID, approverID); err != nil {
		_ = utils.WriteNotFound(w, "Operation not pending approval")
		return
	}

	h.logger.Info("operation approved",
		zap.String("operation_id", operationID),
		zap.String("approver_id", approverID))
	_ = utils.WriteOK(w, map[string]string{"operation_id": operationID, "status": "approved"})
}

// HandleDenyOperation handles POST /operations/{id}/deny
func (h *OperationHandler) HandleDenyOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	approverID := middleware.GetUserIDFromContext(ctx)
	if approverID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	operationID := chi.URLParam(r, "id")
	if err := utils.ValidateUUID(operationID); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid operation ID format", nil)
		return
	}

	var req DenyOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.controller.DenyOperation(operationID, approverID, req.Reason); err != nil {
		_ = utils.WriteNotFound(w, "Operation not pending approval")
		return
	}

	h.logger.Info("operation denied",
		zap.String("operation_id", operationID),
		zap.String("approver_id", approverID))
	_ = utils.WriteOK(w, map[string]string{"operation_id": operationID, "status": "denied"})
}

// HandleCompleteOperation handles POST /operations/{id}/complete
func (h *OperationHandler) HandleCompleteOperation(w http.ResponseWriter, r *http.Request) {
	operationID := chi.URLParam(r, "id")
	if err := utils.ValidateUUID(operationID); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid operation ID format", nil)
		return
	}

	var req CompleteOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	h.controller.CompleteOperation(operationID, req.Success, req.Details)
	utils.WriteNoContent(w)
}

// HandleListPending handles GET /operations/pending
func (h *OperationHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.controller.PendingApprovals())
}

// HandleListActive handles GET /operations/active
func (h *OperationHandler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.controller.ActiveOperations())
}
