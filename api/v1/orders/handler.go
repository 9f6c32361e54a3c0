package orders

import (
	"errors"
	"strconv"

	"go_certbot/internal/auth"
	"go_certbot/internal/httpx"
	"go_certbot/internal/model"
	"go_certbot/internal/order"
	"go_certbot/internal/query"

	"github.com/gin-gonic/gin"
)

// ListRequest represents list orders request
type ListRequest struct {
	Limit int `form:"limit"`
}

// Handler exposes read-only order projections to front ends
type Handler struct {
	users *auth.Service
	query *query.Service
}

// NewHandler creates a new orders handler
func NewHandler(users *auth.Service, query *query.Service) *Handler {
	return &Handler{users: users, query: query}
}

// List handles GET /api/v1/users/:externalId/orders
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 10
	}

	user, ok := h.user(c)
	if !ok {
		return
	}
	items, err := h.query.List(c.Request.Context(), user, req.Limit)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list orders", err))
		return
	}
	httpx.OK(c, gin.H{"items": items})
}

// Get handles GET /api/v1/users/:externalId/orders/:id
func (h *Handler) Get(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	id, ok := orderID(c)
	if !ok {
		return
	}

	o, err := h.query.StatusByID(c.Request.Context(), user, id)
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, o)
}

// Status handles GET /api/v1/users/:externalId/status?domain=example.com
func (h *Handler) Status(c *gin.Context) {
	domain := c.Query("domain")
	if domain == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("domain is required"))
		return
	}
	user, ok := h.user(c)
	if !ok {
		return
	}

	o, err := h.query.StatusByDomain(c.Request.Context(), user, domain)
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, o)
}

// Download handles GET /api/v1/users/:externalId/orders/:id/files/:kind
func (h *Handler) Download(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	id, ok := orderID(c)
	if !ok {
		return
	}

	art, err := h.query.File(c.Request.Context(), user, id, c.Param("kind"))
	if err != nil {
		fail(c, err)
		return
	}
	if !art.Exists {
		httpx.FailErr(c, httpx.ErrNotFound(art.Name+" is missing"))
		return
	}
	c.FileAttachment(art.Path, art.Name)
}

func (h *Handler) user(c *gin.Context) (*model.User, bool) {
	externalID, err := strconv.ParseInt(c.Param("externalId"), 10, 64)
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid user id"))
		return nil, false
	}
	user, err := h.users.FindByExternalID(c.Request.Context(), externalID)
	if errors.Is(err, auth.ErrUserNotFound) {
		httpx.FailErr(c, httpx.ErrNotFound("user not found"))
		return nil, false
	}
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to load user", err))
		return nil, false
	}
	return user, true
}

func orderID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid order id"))
		return 0, false
	}
	return id, true
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, query.ErrNotIssued):
		httpx.FailErr(c, httpx.ErrStateConflict(err.Error()))
	case errors.Is(err, order.ErrNotFound):
		httpx.FailErr(c, httpx.ErrNotFound("order not found"))
	case errors.Is(err, order.ErrValidation):
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
	default:
		httpx.FailErr(c, httpx.FromOrderError(err))
	}
}
