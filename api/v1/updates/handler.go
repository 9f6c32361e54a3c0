package updates

import (
	"go_certbot/internal/bot"
	"go_certbot/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handler feeds chat updates into the dispatcher
type Handler struct {
	dispatcher *bot.Dispatcher
}

// NewHandler creates a new updates handler
func NewHandler(dispatcher *bot.Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// Handle handles POST /api/v1/bot/updates
func (h *Handler) Handle(c *gin.Context) {
	var req bot.Update
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.Text != "" && req.Callback != "" {
		httpx.FailErr(c, httpx.ErrParamInvalid("text and callback are mutually exclusive"))
		return
	}

	reply, err := h.dispatcher.Handle(c.Request.Context(), req)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to resolve user", err))
		return
	}

	httpx.OK(c, reply)
}
