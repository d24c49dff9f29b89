package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"geochat/internal/adapters/store"
	"geochat/internal/app"
	"geochat/internal/core"
	"geochat/internal/domain"
)

type roomHandlers struct {
	store    *store.Bolt
	registry *app.Registry
}

type roomView struct {
	domain.Room
	ActiveConnections int `json:"active_connections"`
}

type createRoomRequest struct {
	Name      string  `json:"name" binding:"required"`
	Type      string  `json:"type" binding:"required"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	IsPublic  *bool   `json:"is_public"`
	CreatedBy string  `json:"created_by"`
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
}

func (h roomHandlers) list(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}

	counts := h.registry.RoomCounts()
	out := make([]roomView, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomView{Room: *room, ActiveConnections: counts[room.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (h roomHandlers) create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and type are required"})
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	room, err := h.store.CreateRoom(c.Request.Context(), &domain.Room{
		Name:      req.Name,
		Type:      domain.RoomType(req.Type),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		IsPublic:  isPublic,
		CreatedBy: domain.UserID(req.CreatedBy),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNameEmpty),
			errors.Is(err, domain.ErrRoomNameTooLong),
			errors.Is(err, domain.ErrBadRoomType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Error().Err(err).Str("module", "adapters.httpapi").Msg("create room")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		}
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h roomHandlers) get(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	room, err := h.store.GetRoom(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.httpapi").Msg("get room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	c.JSON(http.StatusOK, roomView{Room: *room, ActiveConnections: h.registry.Count(id)})
}

func (h roomHandlers) messages(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	if _, err := h.store.GetRoom(c.Request.Context(), id); err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), id, limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
