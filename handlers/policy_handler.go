package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/safety-control-plane/internal/shared"
	"github.com/upb/safety-control-plane/middleware"
	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/safety"
	"github.com/upb/safety-control-plane/utils"
	"go.uber.org/zap"
)

// CreatePolicyRequest is the body for POST /policies
type CreatePolicyRequest struct {
	Name                    string   `json:"name" validate:"required"`
	Description             string   `json:"description"`
	AllowedActions          []string `json:"allowed_actions"`
	BlockedActions          []string `json:"blocked_actions"`
	AllowedDomains          []string `json:"allowed_domains"`
	BlockedDomains          []string `json:"blocked_domains"`
	AllowedPaths            []string `json:"allowed_paths"`
	BlockedPaths            []string `json:"blocked_paths"`
	MaxFileSize             int64    `json:"max_file_size" validate:"gte=0"`
	MaxOperationsPerMinute  int      `json:"max_operations_per_minute" validate:"gte=0"`
	MaxConcurrentOperations int      `json:"max_concurrent_operations" validate:"gte=0"`
	RequireApproval         bool     `json:"require_approval"`
	RiskThreshold           string   `json:"risk_threshold" validate:"omitempty,oneof=low medium high critical"`
}

// PolicyHandler handles policy management HTTP requests
type PolicyHandler struct {
	controller *safety.Controller
	logger     *zap.Logger
}

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(controller *safety.Controller, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{
		controller: controller,
		logger:     logger,
	}
}

// HandleListPolicies handles GET /policies
func (h *PolicyHandler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.controller.Policies())
}

// HandleGetPolicy handles GET /policies/{name}
func (h *PolicyHandler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	policy, ok := h.controller.Policy(name)
	if !ok {
		_ = utils.WriteNotFound(w, "Policy not found")
		return
	}
	_ = utils.WriteOK(w, policy)
}

// HandleCreatePolicy handles POST /policies
func (h *PolicyHandler) HandleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	userID := middleware.GetUserIDFromContext(ctx)

	var req CreatePolicyRequest
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

	policy := models.DefaultPolicy()
	policy.Name = req.Name
	policy.Description = req.Description
	policy.AllowedActions = req.AllowedActions
	policy.BlockedActions = req.BlockedActions
	policy.AllowedDomains = req.AllowedDomains
	policy.BlockedDomains = req.BlockedDomains
	policy.AllowedPaths = req.AllowedPaths
	policy.BlockedPaths = req.BlockedPaths
	if req.MaxFileSize > 0 {
		policy.MaxFileSize = req.MaxFileSize
	}
	if req.MaxOperationsPerMinute > 0 {
		policy.MaxOperationsPerMinute = req.MaxOperationsPerMinute
	}
	if req.MaxConcurrentOperations > 0 {
		policy.MaxConcurrentOperations = req.MaxConcurrentOperations
	}
	policy.RequireApproval = req.RequireApproval
	if req.RiskThreshold != "" {
		policy.RiskThreshold = models.RiskThreshold(req.RiskThreshold)
	}

	if err := h.controller.CreatePolicy(ctx, userID, policy); err != nil {
		if errors.Is(err, shared.ErrPolicyExists) {
			_ = utils.WriteConflict(w, "A policy with this name already exists", nil)
			return
		}
		_ = utils.WriteInternalServerError(w, "Failed to create policy")
		return
	}

	h.logger.Info("policy created",
		zap.String("request_id", requestID),
		zap.String("policy", policy.Name),
		zap.String("user_id", userID))
	_ = utils.WriteCreated(w, policy)
}

// HandleUpdatePolicy handles PATCH /policies/{name}. Unknown body fields
// are rejected so mistyped updates fail loudly instead of being dropped.
func (h *PolicyHandler) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	userID := middleware.GetUserIDFromContext(ctx)
	name := chi.URLParam(r, "name")

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var update models.PolicyUpdate
	if err := decoder.Decode(&update); err != nil {
		h.logger.Warn("failed to parse policy update",
			zap.String("request_id", requestID),
			zap.String("policy", name),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid or unknown policy fields", map[string]interface{}{
			"decode_error": err.Error(),
		})
		return
	}

	if err := h.controller.UpdatePolicy(ctx, userID, name, update); err != nil {
		_ = utils.WriteNotFound(w, "Policy not found")
		return
	}

	policy, _ := h.controller.Policy(name)
	h.logger.Info("policy updated",
		zap.String("request_id", requestID),
		zap.String("policy", name),
		zap.String("user_id", userID))
	_ = utils.WriteOK(w, policy)
}

// HandleActivatePolicy handles POST /policies/{name}/activate
func (h *PolicyHandler) HandleActivatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)
	name := chi.URLParam(r, "name")

	if err := h.controller.SetPolicy(ctx, userID, name); err != nil {
		_ = utils.WriteNotFound(w, "Policy not found")
		return
	}

	h.logger.Info("active policy changed",
		zap.String("policy", name),
		zap.String("user_id", userID))
	_ = utils.WriteOK(w, map[string]string{"active_policy": name})
}
