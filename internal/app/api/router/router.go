package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"aidledger/internal/db"
	"aidledger/internal/domain/campaign"
	"aidledger/internal/domain/claim"
	"aidledger/internal/domain/verification"
	"aidledger/internal/notify"
	"aidledger/internal/observability/metrics"
	"aidledger/internal/onchain"
	"aidledger/internal/queue"
	redisClient "aidledger/internal/redis"
)

// Dependencies enumerates services required by API handlers.
type Dependencies struct {
	CampaignService     *campaign.Service
	ClaimService        *claim.Service
	VerificationService *verification.Service
	Queue               *queue.Queue
	Store               *db.Store
	Redis               *redisClient.Client
}

// New builds a gin.Engine with all routes registered.
func New(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metrics.GinMiddleware())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h := &handler{deps: deps}

	router.GET("/healthz", h.health)

	router.POST("/campaigns", h.createCampaign)
	router.GET("/campaigns", h.listCampaigns)
	router.GET("/campaigns/:id", h.getCampaign)
	router.PATCH("/campaigns/:id", h.updateCampaign)
	router.POST("/campaigns/:id/archive", h.archiveCampaign)

	router.POST("/claims", h.createClaim)
	router.GET("/claims", h.listClaims)
	router.GET("/claims/:id", h.getClaim)
	router.POST("/claims/:id/verify", h.transition((*claim.Service).Verify))
	router.POST("/claims/:id/approve", h.transition((*claim.Service).Approve))
	router.POST("/claims/:id/disburse", h.transition((*claim.Service).Disburse))
	router.POST("/claims/:id/archive", h.transition((*claim.Service).Archive))

	router.POST("/verification/start", h.startVerification)
	router.POST("/verification/resend", h.resendVerification)
	router.POST("/verification/complete", h.completeVerification)

	router.GET("/jobs/status", h.jobStatus)
	router.GET("/audit", h.listAudit)

	return router
}

type handler struct {
	deps Dependencies
}

type campaignResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Budget     string            `json:"budget"`
	Status     string            `json:"status"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ArchivedAt *time.Time        `json:"archived_at,omitempty"`
}

func toCampaignResponse(c db.Campaign) campaignResponse {
	return campaignResponse{
		ID:         c.ID,
		Name:       c.Name,
		Budget:     c.Budget.StringFixed(2),
		Status:     c.Status,
		Metadata:   c.Metadata,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		ArchivedAt: c.ArchivedAt,
	}
}

type claimResponse struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	Amount       string    `json:"amount"`
	Status       string    `json:"status"`
	RecipientRef string    `json:"recipient_ref"`
	EvidenceRef  *string   `json:"evidence_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toClaimResponse(c db.Claim) claimResponse {
	return claimResponse{
		ID:           c.ID,
		CampaignID:   c.CampaignID,
		Amount:       c.Amount.StringFixed(2),
		Status:       c.Status,
		RecipientRef: c.RecipientRef,
		EvidenceRef:  c.EvidenceRef,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (h *handler) health(c *gin.Context) {
	if err := h.deps.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	if err := h.deps.Redis.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createCampaignRequest struct {
	Name     string            `json:"name" binding:"required"`
	Budget   decimal.Decimal   `json:"budget"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

func (h *handler) createCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.deps.CampaignService.Create(c.Request.Context(), campaign.CreateInput{
		Name:     req.Name,
		Budget:   req.Budget,
		Status:   req.Status,
		Metadata: req.Metadata,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toCampaignResponse(created))
}

func (h *handler) listCampaigns(c *gin.Context) {
	includeArchived := c.Query("include_archived") == "true"
	items, err := h.deps.CampaignService.FindAll(c.Request.Context(), includeArchived)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]campaignResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toCampaignResponse(item))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getCampaign(c *gin.Context) {
	found, err := h.deps.CampaignService.FindOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCampaignResponse(found))
}

type updateCampaignRequest struct {
	Name     *string           `json:"name"`
	Budget   *decimal.Decimal  `json:"budget"`
	Status   *string           `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

func (h *handler) updateCampaign(c *gin.Context) {
	var req updateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.deps.CampaignService.Update(c.Request.Context(), c.Param("id"), campaign.UpdateInput{
		Name:     req.Name,
		Budget:   req.Budget,
		Status:   req.Status,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.writeCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCampaignResponse(updated))
}

func (h *handler) archiveCampaign(c *gin.Context) {
	archived, already, err := h.deps.CampaignService.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeCampaignError(c, err)
		return
	}
	msg := "campaign archived"
	if already {
		msg = "campaign already archived"
	}
	c.JSON(http.StatusOK, gin.H{"campaign": toCampaignResponse(archived), "message": msg})
}

func (h *handler) writeCampaignError(c *gin.Context, err error) {
	if errors.Is(err, campaign.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

type createClaimRequest struct {
	CampaignID   string          `json:"campaign_id" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	RecipientRef string          `json:"recipient_ref" binding:"required"`
	EvidenceRef  string          `json:"evidence_ref"`
}

func (h *handler) createClaim(c *gin.Context) {
	var req createClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.deps.ClaimService.Create(c.Request.Context(), claim.CreateInput{
		CampaignID:   req.CampaignID,
		Amount:       req.Amount,
		RecipientRef: req.RecipientRef,
		EvidenceRef:  req.EvidenceRef,
	})
	if err != nil {
		h.writeClaimError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toClaimResponse(created))
}

func (h *handler) listClaims(c *gin.Context) {
	items, err := h.deps.ClaimService.FindAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]claimResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toClaimResponse(item))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getClaim(c *gin.Context) {
	found, err := h.deps.ClaimService.FindOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeClaimError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaimResponse(found))
}

// transition adapts one of the guarded lifecycle methods into a handler.
func (h *handler) transition(op func(*claim.Service, context.Context, string) (db.Claim, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, err := op(h.deps.ClaimService, c.Request.Context(), c.Param("id"))
		if err != nil {
			h.writeClaimError(c, err)
			return
		}
		c.JSON(http.StatusOK, toClaimResponse(updated))
	}
}

func (h *handler) writeClaimError(c *gin.Context, err error) {
	var invalidTransition *claim.InvalidTransitionError
	switch {
	case errors.Is(err, claim.ErrNotFound), errors.Is(err, claim.ErrCampaignNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &invalidTransition),
		errors.Is(err, claim.ErrInvalidAmount),
		errors.Is(err, claim.ErrMissingRecipient):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type startVerificationRequest struct {
	Channel string `json:"channel" binding:"required,oneof=email phone"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

func (h *handler) startVerification(c *gin.Context) {
	var req startVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.deps.VerificationService.Start(c.Request.Context(), verification.StartInput{
		Channel: req.Channel,
		Email:   req.Email,
		Phone:   req.Phone,
	})
	if err != nil {
		h.writeVerificationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type resendVerificationRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func (h *handler) resendVerification(c *gin.Context) {
	var req resendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.deps.VerificationService.Resend(c.Request.Context(), req.SessionID)
	if err != nil {
		h.writeVerificationError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type completeVerificationRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

func (h *handler) completeVerification(c *gin.Context) {
	var req completeVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.deps.VerificationService.Complete(c.Request.Context(), req.SessionID, req.Code)
	if err != nil {
		h.writeVerificationError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) writeVerificationError(c *gin.Context, err error) {
	var invalidState *verification.InvalidStateError
	switch {
	case errors.Is(err, verification.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, verification.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.As(err, &invalidState),
		errors.Is(err, verification.ErrInvalidCode),
		errors.Is(err, verification.ErrMissingIdentifier):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *handler) jobStatus(c *gin.Context) {
	queues := []string{notify.QueueName, onchain.QueueName}
	out := make(map[string]queue.Status, len(queues))
	for _, name := range queues {
		status, err := h.deps.Queue.Status(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out[name] = status
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) listAudit(c *gin.Context) {
	filter := db.AuditFilter{
		Entity:   c.Query("entity"),
		EntityID: c.Query("entity_id"),
		ActorID:  c.Query("actor_id"),
	}
	if raw := c.Query("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be RFC3339"})
			return
		}
		filter.Start = t
	}
	if raw := c.Query("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be RFC3339"})
			return
		}
		filter.End = t
	}
	entries, err := h.deps.Store.ListAuditEntries(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}
