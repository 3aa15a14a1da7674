// Package coachapi exposes the owner-facing coach over HTTP.
package coachapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bosun/internal/coach"
	"bosun/internal/gateway"
	"bosun/pkg/auth"
	"bosun/pkg/ctxkeys"
	"bosun/pkg/logging"
	"bosun/pkg/middleware"
)

const (
	maxMessageLength = 8000
	maxBodyBytes     = 256 << 10
)

// Coach is the slice of *coach.Agent the handler needs.
type Coach interface {
	ProcessCoachMessage(ctx context.Context, workspaceID, message string, history []coach.Turn) (coach.Reply, error)
}

type MessageRequest struct {
	Message string       `json:"message"`
	History []coach.Turn `json:"history"`
}

type MessageResponse struct {
	Reply string             `json:"reply"`
	Tools []coach.ToolResult `json:"tools"`
}

type Handler struct {
	coach  Coach
	logger logging.Logger
}

func NewHandler(c Coach, logger logging.Logger) *Handler {
	return &Handler{coach: c, logger: logging.OrDiscard(logger)}
}

// Register mounts the coach routes under /api/v1 behind workspace JWT auth.
func (h *Handler) Register(r gin.IRouter, jwtSecret []byte, serviceToken string) {
	v1 := r.Group("/api/v1")
	v1.Use(middleware.BodyLimit(maxBodyBytes), auth.JWTAuthMiddleware(jwtSecret, serviceToken))
	v1.POST("/coach/messages", h.HandleMessage)
}

func (h *Handler) HandleMessage(c *gin.Context) {
	workspaceID := ctxkeys.GetWorkspaceID(c.Request.Context())
	if workspaceID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "workspace_id missing"})
		return
	}

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if len(req.Message) > maxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	reply, err := h.coach.ProcessCoachMessage(c.Request.Context(), workspaceID, req.Message, req.History)
	if err != nil {
		status, msg := errorStatus(err)
		middleware.GetContextLogger(c, h.logger).WithError(err).Warn("Coach message failed")
		c.JSON(status, gin.H{"error": msg, "code": gateway.ErrorCode(err)})
		return
	}

	tools := reply.ToolResults
	if tools == nil {
		tools = []coach.ToolResult{}
	}
	c.JSON(http.StatusOK, MessageResponse{Reply: reply.Text, Tools: tools})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, gateway.ErrBudgetExceeded), errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case gateway.IsAccessError(err):
		return http.StatusForbidden, "ai is not available for this workspace"
	case errors.Is(err, gateway.ErrQuotaUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "coach temporarily unavailable"
	default:
		return http.StatusBadGateway, "coach failed"
	}
}
