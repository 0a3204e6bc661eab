package ws_room

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	http_common "github.com/humanbelnik/towerduels/internal/delivery/http/common"
	"github.com/humanbelnik/towerduels/internal/logger"
	"github.com/humanbelnik/towerduels/internal/model"
	"github.com/humanbelnik/towerduels/internal/service/roomfeed"
	usecase_room "github.com/humanbelnik/towerduels/internal/usecase/room"
	"go.uber.org/zap"
)

const EventRoomSnapshot = "ROOM_SNAPSHOT"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	disconnectTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Event struct {
	Type    string         `json:"type"`
	Payload model.Snapshot `json:"payload"`
}

type Controller struct {
	uc       *usecase_room.Usecase
	sessions *sessions
	logger   *zap.Logger
}

func New(uc *usecase_room.Usecase) *Controller {
	return &Controller{
		uc:       uc,
		sessions: newSessions(),
		logger:   logger.L().Named("ws_room"),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws/rooms/:room_id", c.roomWS)
}

// roomWS pushes a snapshot of the room on every change. A player_id query
// parameter marks that player connected while at least one of their
// sockets is open.
func (c *Controller) roomWS(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("room_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid room id",
			Code:    http_common.CodeInvalidArgument,
		})
		return
	}
	playerID := ctx.Query("player_id")

	sessionCtx, cancel := context.WithCancel(ctx.Request.Context())
	defer cancel()

	sub, err := c.uc.ObserveRoom(sessionCtx, roomID)
	if err != nil {
		status, body := http_common.FromError(err)
		ctx.JSON(status, body)
		return
	}
	defer sub.Close()

	if playerID != "" {
		key := sessionKey{roomID: roomID, playerID: playerID}
		sess, err := c.sessions.attach(key, func() error {
			_, err := c.uc.Reconnect(sessionCtx, roomID, playerID)
			return err
		})
		if err != nil {
			status, body := http_common.FromError(err)
			ctx.JSON(status, body)
			return
		}
		defer c.sessions.detach(key, sess, func() { c.disconnect(roomID, playerID) })
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c.logger.Info("observer attached",
		zap.String("room_id", roomID.String()),
		zap.String("player_id", playerID))

	go c.readLoop(conn, cancel)
	c.writeLoop(sessionCtx, conn, sub)

	c.logger.Info("observer detached",
		zap.String("room_id", roomID.String()),
		zap.String("player_id", playerID))
}

// readLoop discards client frames and keeps the read deadline fresh.
// Any read error ends the session.
func (c *Controller) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Controller) writeLoop(ctx context.Context, conn *websocket.Conn, sub *roomfeed.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case snapshot, ok := <-sub.C():
			if !ok {
				// The room is closed; nothing will follow.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Event{Type: EventRoomSnapshot, Payload: snapshot}); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnect runs after the request context is gone, so it gets its own.
func (c *Controller) disconnect(roomID uuid.UUID, playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if _, err := c.uc.Disconnect(ctx, roomID, playerID); err != nil {
		c.logger.Info("disconnect not recorded",
			zap.String("room_id", roomID.String()),
			zap.String("player_id", playerID),
			zap.Error(err))
	}
}
