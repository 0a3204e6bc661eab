package http_room

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	http_common "github.com/humanbelnik/towerduels/internal/delivery/http/common"
	"github.com/humanbelnik/towerduels/internal/logger"
	"github.com/humanbelnik/towerduels/internal/model"
	usecase_room "github.com/humanbelnik/towerduels/internal/usecase/room"
	"go.uber.org/zap"
)

const snapshotEvent = "snapshot"

type Controller struct {
	usecase *usecase_room.Usecase
	logger  *zap.Logger
}

func New(usecase *usecase_room.Usecase) *Controller {
	return &Controller{
		usecase: usecase,
		logger:  logger.L().Named("http_room"),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rooms := router.Group("/rooms")
	{
		rooms.POST("", c.create)
		rooms.GET("/:code", c.get)
		rooms.POST("/:code/participations", c.participate)
		rooms.GET("/id/:room_id/events", c.events)
		rooms.POST("/id/:room_id/finish", c.finish)
	}
}

type PlayerRequestDTO struct {
	PlayerID string `json:"player_id" binding:"required"`
}

type CreateResponseDTO struct {
	RoomID string `json:"room_id"`
	Code   string `json:"code"`
}

// Create allocates a room owned by the caller
// @Summary Create room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param request body PlayerRequestDTO true "Owner"
// @Success 201 {object} CreateResponseDTO
// @Failure 400 {object} http_common.ErrorResponse
// @Failure 503 {object} http_common.ErrorResponse
// @Router /rooms [post]
func (c *Controller) create(ctx *gin.Context) {
	var req PlayerRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.badRequest(ctx, "invalid request format")
		return
	}

	roomID, code, err := c.usecase.CreateRoom(ctx.Request.Context(), req.PlayerID)
	if err != nil {
		c.fail(ctx, "failed to create room", err)
		return
	}

	ctx.JSON(http.StatusCreated, CreateResponseDTO{
		RoomID: roomID.String(),
		Code:   code,
	})
}

// Participate seats the caller in the free slot of the room
// @Summary Join room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param code path string true "Room code"
// @Param request body PlayerRequestDTO true "Challenger"
// @Success 200 {object} model.Snapshot
// @Failure 400 {object} http_common.ErrorResponse
// @Failure 404 {object} http_common.ErrorResponse
// @Failure 409 {object} http_common.ErrorResponse
// @Failure 503 {object} http_common.ErrorResponse
// @Router /rooms/{code}/participations [post]
func (c *Controller) participate(ctx *gin.Context) {
	var req PlayerRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.badRequest(ctx, "invalid request format")
		return
	}

	snapshot, err := c.usecase.JoinRoom(ctx.Request.Context(), ctx.Param("code"), req.PlayerID)
	if err != nil {
		c.fail(ctx, "failed to join room", err)
		return
	}

	ctx.JSON(http.StatusOK, snapshot)
}

// Get returns the active room behind a code
// @Summary Room by code
// @Tags Rooms
// @Produce json
// @Param code path string true "Room code"
// @Success 200 {object} model.Snapshot
// @Failure 404 {object} http_common.ErrorResponse
// @Router /rooms/{code} [get]
func (c *Controller) get(ctx *gin.Context) {
	snapshot, err := c.usecase.GetRoom(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		c.fail(ctx, "failed to get room", err)
		return
	}

	ctx.JSON(http.StatusOK, snapshot)
}

// Events streams room snapshots as server-sent events until the client leaves
// @Summary Observe room
// @Tags Rooms
// @Produce text/event-stream
// @Param room_id path string true "Room id"
// @Success 200 {object} model.Snapshot
// @Failure 404 {object} http_common.ErrorResponse
// @Router /rooms/id/{room_id}/events [get]
func (c *Controller) events(ctx *gin.Context) {
	roomID, ok := c.roomID(ctx)
	if !ok {
		return
	}

	sub, err := c.usecase.ObserveRoom(ctx.Request.Context(), roomID)
	if err != nil {
		c.fail(ctx, "failed to observe room", err)
		return
	}
	defer sub.Close()

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.Stream(func(w io.Writer) bool {
		select {
		case snapshot, ok := <-sub.C():
			if !ok {
				return false
			}
			ctx.SSEvent(snapshotEvent, snapshot)
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
}

type FinishRequestDTO struct {
	Status string `json:"status" binding:"required"`
}

// Finish closes the room with a terminal status
// @Summary Finish room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param room_id path string true "Room id"
// @Param request body FinishRequestDTO true "finished or abandoned"
// @Success 200 {object} model.Snapshot
// @Failure 404 {object} http_common.ErrorResponse
// @Failure 409 {object} http_common.ErrorResponse
// @Router /rooms/id/{room_id}/finish [post]
func (c *Controller) finish(ctx *gin.Context) {
	roomID, ok := c.roomID(ctx)
	if !ok {
		return
	}

	var req FinishRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.badRequest(ctx, "invalid request format")
		return
	}
	status := model.RoomStatus(req.Status)
	if !status.Valid() {
		c.badRequest(ctx, "unknown status")
		return
	}

	snapshot, err := c.usecase.FinishRoom(ctx.Request.Context(), roomID, status)
	if err != nil {
		c.fail(ctx, "failed to finish room", err)
		return
	}

	ctx.JSON(http.StatusOK, snapshot)
}

func (c *Controller) roomID(ctx *gin.Context) (uuid.UUID, bool) {
	roomID, err := uuid.Parse(ctx.Param("room_id"))
	if err != nil {
		c.badRequest(ctx, "invalid room id")
		return uuid.Nil, false
	}
	return roomID, true
}

func (c *Controller) badRequest(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
		Message: message,
		Code:    http_common.CodeInvalidArgument,
	})
}

func (c *Controller) fail(ctx *gin.Context, msg string, err error) {
	status, body := http_common.FromError(err)
	if status >= http.StatusInternalServerError {
		c.logger.Error(msg, zap.Error(err))
	} else {
		c.logger.Info(msg, zap.String("code", body.Code), zap.Error(err))
	}
	ctx.JSON(status, body)
}
