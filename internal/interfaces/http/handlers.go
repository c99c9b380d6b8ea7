package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/policy"
	"github.com/garyjia/policy-approval/internal/template"
	"github.com/garyjia/policy-approval/internal/version"
	"github.com/garyjia/policy-approval/internal/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger *zap.Logger) *Handlers {
	return &Handlers{services: services, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreatePolicyRequest is the body for POST /api/policies
type CreatePolicyRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	UserID      string          `json:"user_id" binding:"required"`
	Content     json.RawMessage `json:"content" binding:"required"`
}

// ReplaceContentRequest is the body for PUT /api/policies/:id/content
type ReplaceContentRequest struct {
	Content json.RawMessage `json:"content" binding:"required"`
}

// CreateTemplateRequest is the body for POST /api/templates
type CreateTemplateRequest struct {
	Name   string                 `json:"name" binding:"required"`
	Kind   string                 `json:"kind"`
	UserID string                 `json:"user_id" binding:"required"`
	Levels []TemplateLevelRequest `json:"levels" binding:"required"`
}

// TemplateLevelRequest is one level in a template creation request
type TemplateLevelRequest struct {
	LevelNumber int    `json:"level_number" binding:"required"`
	Role        string `json:"role" binding:"required"`
	IsParallel  bool   `json:"is_parallel"`
}

// SubmitRequest is the body for POST /api/policies/:id/submit
type SubmitRequest struct {
	TemplateID int64  `json:"template_id" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
}

// DecisionRequest is the body for approve and reject calls
type DecisionRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Comment string `json:"comment"`
}

// SnapshotRequest is the body for POST /api/policies/:id/versions
type SnapshotRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Note   string `json:"note"`
}

// LockRequest is the body for POST /api/policies/:id/versions/:number/lock
type LockRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// RollbackRequest is the body for POST /api/policies/:id/rollback
type RollbackRequest struct {
	Version int    `json:"version" binding:"required"`
	UserID  string `json:"user_id" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreatePolicy handles POST /api/policies
func (h *Handlers) CreatePolicy(c *gin.Context) {
	var req CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	created, err := h.services.Policies.Create(c.Request.Context(), req.Name, req.Description, req.UserID, req.Content)
	if err != nil {
		h.fail(c, "Failed to create policy", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// ListPolicies handles GET /api/policies
func (h *Handlers) ListPolicies(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	policies, err := h.services.Policies.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, "Failed to list policies", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: policies})
}

// GetPolicy handles GET /api/policies/:id
func (h *Handlers) GetPolicy(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.services.Policies.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get policy", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// ReplacePolicyContent handles PUT /api/policies/:id/content
func (h *Handlers) ReplacePolicyContent(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req ReplaceContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	if err := h.services.Policies.ReplaceContent(c.Request.Context(), id, req.Content); err != nil {
		h.fail(c, "Failed to replace policy content", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	kind := req.Kind
	if kind == "" {
		kind = models.TemplateKindSequential
	}

	levels := make([]*models.TemplateLevel, 0, len(req.Levels))
	for _, l := range req.Levels {
		levels = append(levels, &models.TemplateLevel{
			LevelNumber: l.LevelNumber,
			Role:        l.Role,
			IsParallel:  l.IsParallel,
		})
	}

	created, err := h.services.Templates.Create(c.Request.Context(), &models.ApprovalTemplate{
		Name:      req.Name,
		Kind:      kind,
		CreatedBy: req.UserID,
		Levels:    levels,
	})
	if err != nil {
		h.fail(c, "Failed to create template", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "true") == "true"

	templates, err := h.services.Templates.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.fail(c, "Failed to list templates", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: templates})
}

// GetTemplate handles GET /api/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	found, err := h.services.Templates.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get template", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: found})
}

// DeactivateTemplate handles DELETE /api/templates/:id
func (h *Handlers) DeactivateTemplate(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.services.Templates.Deactivate(c.Request.Context(), id); err != nil {
		h.fail(c, "Failed to deactivate template", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// SubmitPolicy handles POST /api/policies/:id/submit
func (h *Handlers) SubmitPolicy(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	instance, err := h.services.Engine.Submit(c.Request.Context(), id, req.TemplateID, req.UserID)
	if err != nil {
		h.fail(c, "Failed to submit policy", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: instance})
}

// ApproveWorkflow handles POST /api/workflows/:id/approve
func (h *Handlers) ApproveWorkflow(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	instance, err := h.services.Engine.Approve(c.Request.Context(), id, req.UserID, req.Comment)
	if err != nil {
		h.fail(c, "Failed to approve", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// RejectWorkflow handles POST /api/workflows/:id/reject
func (h *Handlers) RejectWorkflow(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	instance, err := h.services.Engine.Reject(c.Request.Context(), id, req.UserID, req.Comment)
	if err != nil {
		h.fail(c, "Failed to reject", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// GetPolicyWorkflowStatus handles GET /api/policies/:id/workflow
func (h *Handlers) GetPolicyWorkflowStatus(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	instance, err := h.services.Engine.GetPolicyStatus(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get policy workflow status", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// GetWorkflowStatus handles GET /api/workflows/:id
func (h *Handlers) GetWorkflowStatus(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	instance, err := h.services.Engine.GetInstanceStatus(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get workflow status", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// ListWorkflowQueue handles GET /api/workflows
func (h *Handlers) ListWorkflowQueue(c *gin.Context) {
	queue, err := h.services.Engine.GetQueue(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list workflow queue", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: queue})
}

// CreateSnapshot handles POST /api/policies/:id/versions
func (h *Handlers) CreateSnapshot(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	note := req.Note
	if note == "" {
		note = "Manual snapshot"
	}

	created, err := h.services.Versions.CreateSnapshot(c.Request.Context(), id, req.UserID, note)
	if err != nil {
		h.fail(c, "Failed to create snapshot", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// ListVersions handles GET /api/policies/:id/versions
func (h *Handlers) ListVersions(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	versions, err := h.services.Versions.List(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to list versions", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: versions})
}

// GetVersionDetail handles GET /api/policies/:id/versions/:number
func (h *Handlers) GetVersionDetail(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		h.badRequest(c, "invalid version number", err)
		return
	}

	detail, err := h.services.Versions.GetDetail(c.Request.Context(), id, number)
	if err != nil {
		h.fail(c, "Failed to get version", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// LockVersion handles POST /api/policies/:id/versions/:number/lock
func (h *Handlers) LockVersion(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		h.badRequest(c, "invalid version number", err)
		return
	}

	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	locked, err := h.services.Versions.Lock(c.Request.Context(), id, number, req.UserID)
	if err != nil {
		h.fail(c, "Failed to lock version", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: locked})
}

// RollbackPolicy handles POST /api/policies/:id/rollback
func (h *Handlers) RollbackPolicy(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	restored, err := h.services.Versions.Rollback(c.Request.Context(), id, req.Version, req.UserID)
	if err != nil {
		h.fail(c, "Failed to rollback policy", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: restored})
}

// CompareVersions handles GET /api/policies/:id/versions/compare
func (h *Handlers) CompareVersions(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	base, err := strconv.Atoi(c.Query("base"))
	if err != nil {
		h.badRequest(c, "invalid base version", err)
		return
	}
	compare, err := strconv.Atoi(c.Query("compare"))
	if err != nil {
		h.badRequest(c, "invalid compare version", err)
		return
	}

	diff, err := h.services.Versions.Compare(c.Request.Context(), id, base, compare)
	if err != nil {
		h.fail(c, "Failed to compare versions", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: diff})
}

// ListAuditRecords handles GET /api/audit
func (h *Handlers) ListAuditRecords(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	entityType := c.Query("entity_type")
	if entityType != "" {
		entityID, err := strconv.ParseInt(c.Query("entity_id"), 10, 64)
		if err != nil {
			h.badRequest(c, "invalid entity_id", err)
			return
		}
		records, err := h.services.Audit.ListByEntity(c.Request.Context(), entityType, entityID, limit)
		if err != nil {
			h.fail(c, "Failed to list audit records", err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: records})
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	records, err := h.services.Audit.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, "Failed to list audit records", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// pathID parses an int64 path parameter, answering the request on failure
func (h *Handlers) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		h.badRequest(c, "invalid "+name, err)
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, message string, err error) {
	h.logger.Warn("Bad request", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: message})
}

// fail maps business errors onto HTTP status codes. Unknown errors are
// reported as internal failures without leaking details.
func (h *Handlers) fail(c *gin.Context, logMessage string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(logMessage, zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	h.logger.Warn(logMessage, zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	var rejected *template.RejectedError
	switch {
	case errors.Is(err, workflow.ErrPolicyNotFound),
		errors.Is(err, workflow.ErrInstanceNotFound),
		errors.Is(err, workflow.ErrTemplateNotFound),
		errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, policy.ErrPolicyNotFound),
		errors.Is(err, version.ErrPolicyNotFound),
		errors.Is(err, version.ErrVersionNotFound):
		return http.StatusNotFound

	case errors.As(err, &rejected),
		errors.Is(err, workflow.ErrMissingValidatedStructure),
		errors.Is(err, template.ErrInvalidTemplate):
		return http.StatusUnprocessableEntity

	case errors.Is(err, workflow.ErrSelfApprovalForbidden),
		errors.Is(err, workflow.ErrUnauthorizedApprover):
		return http.StatusForbidden

	case errors.Is(err, workflow.ErrInvalidPolicyState),
		errors.Is(err, workflow.ErrPolicyLocked),
		errors.Is(err, workflow.ErrEmptyTemplate),
		errors.Is(err, workflow.ErrWorkflowNotActive),
		errors.Is(err, policy.ErrPolicyLocked),
		errors.Is(err, version.ErrAlreadyLocked),
		errors.Is(err, version.ErrCurrentVersionLocked),
		errors.Is(err, version.ErrSourceSnapshotMissing):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
