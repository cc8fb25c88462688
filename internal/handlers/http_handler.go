// internal/handlers/http_handler.go

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JosueRDx/DotsGo-backend/internal/apperr"
	"github.com/JosueRDx/DotsGo-backend/internal/service"
)

// HTTPHandler serves the REST side: room creation and pre-join lookup.
// Everything in-game goes over the websocket.
type HTTPHandler struct {
	rooms *service.RoomService
}

func NewHTTPHandler(rooms *service.RoomService) *HTTPHandler {
	return &HTTPHandler{rooms: rooms}
}

// CreateRoom handles POST /api/rooms.
func (h *HTTPHandler) CreateRoom(c *gin.Context) {
	var params service.CreateRoomParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request format",
		})
		return
	}

	room, err := h.rooms.CreateRoom(params)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"pin":     room.PIN,
		"name":    room.Name,
		"mode":    room.Mode,
		"config": gin.H{
			"max_players":     room.Config.MaxPlayers,
			"max_lives":       room.Config.MaxLives,
			"target_position": room.Config.TargetPosition,
			"win_condition":   room.Config.WinCondition,
		},
		"time_limit":      room.TimeLimit,
		"total_questions": len(room.QuestionIDs),
	})
}

// InspectRoom handles GET /api/rooms/:pin, the pre-join lookup clients
// use to validate a typed code before opening the websocket.
func (h *HTTPHandler) InspectRoom(c *gin.Context) {
	room, err := h.rooms.InspectRoom(c.Param("pin"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"pin":             room.PIN,
		"name":            room.Name,
		"mode":            room.Mode,
		"status":          room.Status,
		"player_count":    len(room.Players),
		"max_players":     room.Config.MaxPlayers,
		"time_limit":      room.TimeLimit,
		"total_questions": len(room.QuestionIDs),
	})
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.Use(corsMiddleware())
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	{
		api.POST("/rooms", h.CreateRoom)
		api.GET("/rooms/:pin", h.InspectRoom)
	}
}

// respondError maps application errors to HTTP statuses without leaking
// internals.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeConflict:
		status = http.StatusConflict
	case apperr.CodeUnauthorized:
		status = http.StatusForbidden
	case apperr.CodeRateLimited:
		status = http.StatusTooManyRequests
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   apperr.UserMessage(err),
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
