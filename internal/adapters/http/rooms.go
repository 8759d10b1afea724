package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
)

const sessionRoomKey = "room"

type CreateRoomRequest struct {
	GroupName  string `json:"groupName" binding:"required,max=64"`
	MaxMembers int    `json:"maxMembers" binding:"gte=0,lte=1000"`
}

type RoomResponse struct {
	domain.RoomInfo
	Online int `json:"online"`
}

type SessionResponse struct {
	ClientToken string        `json:"clientToken"`
	RoomID      domain.RoomID `json:"roomId,omitempty"`
}

type roomHandlers struct {
	orch *orch.Orchestrator
}

func roomCode(c *gin.Context) domain.RoomID {
	return domain.RoomID(c.Param("code"))
}

func (h *roomHandlers) create(c *gin.Context) {
	if h.orch.Directory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "room directory disabled"})
		return
	}
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid room parameters"})
		return
	}
	info, err := h.orch.Directory.Create(c.Request.Context(), req.GroupName, req.MaxMembers)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": protocol.CodeInternal})
		return
	}
	c.JSON(http.StatusCreated, RoomResponse{RoomInfo: *info})
}

// get returns the directory record and remembers the code in the session
// so a reloaded page can rejoin.
func (h *roomHandlers) get(c *gin.Context) {
	if h.orch.Directory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "room directory disabled"})
		return
	}
	code := roomCode(c)
	info, err := h.orch.Directory.Lookup(c.Request.Context(), code)
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": protocol.CodeRoomNotFound})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(code)).Msg("lookup room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": protocol.CodeInternal})
		return
	}

	s := sessions.Default(c)
	s.Set(sessionRoomKey, string(code))
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
	}
	c.JSON(http.StatusOK, RoomResponse{RoomInfo: *info, Online: online(h.orch.Presence.Members(code))})
}

func (h *roomHandlers) members(c *gin.Context) {
	roster := h.orch.Presence.Members(roomCode(c))
	c.JSON(http.StatusOK, gin.H{"users": protocol.NewRoomUsers(0, roster).Users})
}

func (h *roomHandlers) session(c *gin.Context) {
	resp := SessionResponse{ClientToken: c.GetString(clientTokenKey)}
	if room, ok := sessions.Default(c).Get(sessionRoomKey).(string); ok {
		resp.RoomID = domain.RoomID(room)
	}
	c.JSON(http.StatusOK, resp)
}

func online(members []domain.Member) int {
	n := 0
	for _, m := range members {
		if m.Online {
			n++
		}
	}
	return n
}
