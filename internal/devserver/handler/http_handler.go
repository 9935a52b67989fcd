package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tasklane/chatkit/internal/devserver/store"
	"github.com/tasklane/chatkit/internal/domain"
	"github.com/tasklane/chatkit/pkg/jwt"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// HTTPHandler serves the history endpoint the client core seeds from.
type HTTPHandler struct {
	history store.HistoryStore
	tokens  *jwt.Manager
}

func NewHTTPHandler(history store.HistoryStore, tokens *jwt.Manager) *HTTPHandler {
	return &HTTPHandler{
		history: history,
		tokens:  tokens,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.Use(h.requireBearer)
	{
		api.GET("/rooms/:room_id/messages", h.GetMessages)
	}

	r.GET("/health", h.HealthCheck)
}

func (h *HTTPHandler) requireBearer(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, domain.APIResponse{
			Success: false,
			Error:   "missing bearer token",
		})
		return
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, domain.APIResponse{
			Success: false,
			Error:   "invalid or expired token",
		})
		return
	}

	c.Set("user_id", claims.UserID)
	c.Next()
}

func (h *HTTPHandler) GetMessages(c *gin.Context) {
	roomID := c.Param("room_id")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, domain.APIResponse{
			Success: false,
			Error:   "room_id is required",
		})
		return
	}

	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, domain.APIResponse{
				Success: false,
				Error:   "limit must be a positive integer",
			})
			return
		}
		limit = parsed
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	msgs, err := h.history.List(c.Request.Context(), roomID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.APIResponse{
			Success: false,
			Error:   "failed to load history",
		})
		return
	}

	c.JSON(http.StatusOK, domain.APIResponse{
		Success: true,
		Data:    domain.HistoryPage{Messages: msgs},
	})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
