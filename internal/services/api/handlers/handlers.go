package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scho1ar-go/internal/domain/cloudaccount"
	"github.com/scho1ar-go/internal/domain/job"
	accountrepo "github.com/scho1ar-go/internal/services/cloudaccounts/repository"
	"github.com/scho1ar-go/internal/services/cloudaccounts/service"
	"github.com/scho1ar-go/internal/services/jobs/lifecycle"
	jobrepo "github.com/scho1ar-go/internal/services/jobs/repository"
	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/httpx"
	"github.com/scho1ar-go/pkg/logger"
	authmw "github.com/scho1ar-go/pkg/middleware/auth"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	accounts *service.CloudAccountService
	jobs     *lifecycle.Manager
	db       Pinger
	version  string
	logger   logger.Logger
}

func NewHandlers(accounts *service.CloudAccountService, jobs *lifecycle.Manager, db Pinger, version string, log logger.Logger) *Handlers {
	return &Handlers{
		accounts: accounts,
		jobs:     jobs,
		db:       db,
		version:  version,
		logger:   log,
	}
}

// Health reports liveness. A database outage is reported, not failed on.
func (h *Handlers) Health(c *gin.Context) {
	status := "connected"
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if h.db == nil || h.db.Ping(ctx) != nil {
		status = "disconnected"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  h.version,
		"database": status,
	})
}

func (h *Handlers) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handlers) Banner(c *gin.Context) {
	c.String(http.StatusOK, "Scho1ar API v"+h.version)
}

type meResponse struct {
	UserID           string `json:"userId"`
	Email            string `json:"email,omitempty"`
	OrganizationID   string `json:"organizationId,omitempty"`
	OrganizationRole string `json:"organizationRole"`
}

func (h *Handlers) Me(c *gin.Context) {
	p, _ := authmw.CurrentPrincipal(c)
	httpx.OK(c, meResponse{
		UserID:           p.SubjectID,
		Email:            p.Email,
		OrganizationID:   p.OrganizationID,
		OrganizationRole: p.Role.String(),
	})
}

func (h *Handlers) ListCloudAccounts(c *gin.Context) {
	p, _ := authmw.CurrentPrincipal(c)
	scope := accountrepo.Scope{
		OrganizationID: p.OrganizationID,
		Provider:       cloudaccount.Provider(c.Query("provider")),
		Status:         cloudaccount.Status(c.Query("status")),
	}

	req, err := listRequest(c)
	if err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	res, err := h.accounts.List(c.Request.Context(), req, scope)
	if err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	writePage(c, res)
}

func (h *Handlers) GetCloudAccount(c *gin.Context) {
	p, _ := authmw.CurrentPrincipal(c)
	a, err := h.accounts.Get(c.Request.Context(), p.OrganizationID, c.Param("accountId"))
	if err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	httpx.OK(c, a)
}

func (h *Handlers) CreateCloudAccount(c *gin.Context) {
	var req cloudaccount.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, h.logger, apperrors.NewValidationError("body", err.Error()))
		return
	}

	p, _ := authmw.CurrentPrincipal(c)
	a, err := h.accounts.Create(c.Request.Context(), p, req)
	if err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	httpx.Created(c, a, "Cloud account connected")
}

func (h *Handlers) UpdateCloudAccount(c *gin.Context) {
	var req cloudaccount.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, h.logger, apperrors.NewValidationError("body", err.Error()))
		return
	}

	p, _ := authmw.CurrentPrincipal(c)
	a, err := h.accounts.Update(c.Request.Context(), p.OrganizationID, c.Param("accountId"), req)
	if err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	httpx.OK(c, a)
}

func (h *Handlers) DeleteCloudAccount(c *gin.Context) {
	p, _ := authmw.CurrentPrincipal(c)
	if err := h.accounts.Delete(c.Request.Context(), p, c.Param("accountId")); err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	httpx.NoContent(c)
}

func (h *Handlers) SyncCloudAccount(c *gin.Context) {
	p, _ := authmw.CurrentPrincipal(c)
	j, err := h.accounts.Sync(c.Request.Context(), p, c.Param("accountId"))
	if err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	httpx.Accepted(c, j.Accepted(), "Sync started")
}

func (h *Handlers) ListJobs(c *gin.Context) {
	p, _ := authmw.CurrentPrincipal(c)
	scope := jobrepo.Scope{
		OrganizationID: p.OrganizationID,
		Status:         job.Status(c.Query("status")),
		Kind:           job.Kind(c.Query("kind")),
	}
	if scope.Status != "" && !scope.Status.Valid() {
		httpx.Error(c, h.logger, apperrors.NewValidationError("status", "unknown job status"))
		return
	}

	req, err := listRequest(c)
	if err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	res, err := h.jobs.List(c.Request.Context(), req, scope)
	if err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	writePage(c, res)
}

func (h *Handlers) GetJob(c *gin.Context) {
	p, _ := authmw.CurrentPrincipal(c)
	j, err := h.jobs.Get(c.Request.Context(), p.OrganizationID, c.Param("jobId"))
	if err != nil {
		httpx.Error(c, h.logger, err)
		return
	}
	httpx.OK(c, j)
}
