package ops

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"streamq/internal/constants"
	"streamq/internal/logger"
	"streamq/internal/queue"
	"streamq/pkg/errors"
	"streamq/pkg/metrics"
)

// Handler exposes operational endpoints over the poison streams and pending
// entry lists: inspect, purge, requeue, pending stats.
type Handler struct {
	poison *queue.PoisonRouter
	groups *queue.GroupManager
	logger logger.Logger
}

func NewHandler(poison *queue.PoisonRouter, groups *queue.GroupManager, log logger.Logger) *Handler {
	return &Handler{
		poison: poison,
		groups: groups,
		logger: log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/ops/v1")
	{
		queues := v1.Group("/queues/:queue")
		{
			queues.GET("/poison", h.ListPoison)
			queues.DELETE("/poison", h.PurgePoison)
			queues.POST("/poison/:id/requeue", h.RequeuePoison)
			queues.GET("/pending", h.ListPending)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error",
		"error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

func (h *Handler) ListPoison(c *gin.Context) {
	queueName := c.Param("queue")
	limit := parseLimit(c.Query("limit"), constants.PoisonInspectLimit)

	messages, err := h.poison.Messages(c.Request.Context(), queueName, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":    queueName,
		"count":    len(messages),
		"messages": messages,
	})
}

func (h *Handler) PurgePoison(c *gin.Context) {
	queueName := c.Param("queue")

	if err := h.poison.Purge(c.Request.Context(), queueName); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"queue": queueName, "purged": true})
}

func (h *Handler) RequeuePoison(c *gin.Context) {
	queueName := c.Param("queue")
	entryID := c.Param("id")

	newID, err := h.poison.Requeue(c.Request.Context(), queueName, entryID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":     queueName,
		"requeued":  entryID,
		"new_entry": newID,
	})
}

func (h *Handler) ListPending(c *gin.Context) {
	queueName := c.Param("queue")
	limit := parseLimit(c.Query("limit"), constants.PoisonInspectLimit)

	pending, err := h.groups.ListPending(c.Request.Context(), queueName, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	metrics.SetPendingEntries(queueName, len(pending))

	type pendingView struct {
		ID            string `json:"id"`
		Consumer      string `json:"consumer"`
		IdleMs        int64  `json:"idle_ms"`
		DeliveryCount int64  `json:"delivery_count"`
	}
	views := make([]pendingView, 0, len(pending))
	for _, p := range pending {
		views = append(views, pendingView{
			ID:            p.ID,
			Consumer:      p.Consumer,
			IdleMs:        p.Idle.Milliseconds(),
			DeliveryCount: p.DeliveryCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":   queueName,
		"count":   len(views),
		"pending": views,
	})
}

func parseLimit(raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
