package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/internal/registry"
)

type roomHandlers struct {
	reg registry.Registry
}

type CreateRoomResponse struct {
	RoomID   string `json:"roomId"`
	JoinCode string `json:"joinCode"`
}

type ValidateRoomRequest struct {
	JoinCode string `json:"joinCode" binding:"required"`
}

type ValidateRoomResponse struct {
	RoomID string `json:"roomId"`
}

type RoomInfoResponse struct {
	JoinCode         string `json:"joinCode"`
	ParticipantCount int    `json:"participantCount"`
}

func (h *roomHandlers) createRoom(c *gin.Context) {
	room, err := h.reg.CreateRoom()
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}
	c.JSON(http.StatusOK, CreateRoomResponse{
		RoomID:   string(room.ID),
		JoinCode: string(room.JoinCode),
	})
}

func (h *roomHandlers) validateRoom(c *gin.Context) {
	var req ValidateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Join code is required"})
		return
	}
	room, err := h.reg.LookupByCode(domain.JoinCode(req.JoinCode))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	c.JSON(http.StatusOK, ValidateRoomResponse{RoomID: string(room.ID)})
}

func (h *roomHandlers) getRoomInfo(c *gin.Context) {
	room, err := h.reg.LookupByID(domain.RoomID(c.Param("roomId")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	c.JSON(http.StatusOK, RoomInfoResponse{
		JoinCode:         string(room.JoinCode),
		ParticipantCount: len(room.Participants),
	})
}
