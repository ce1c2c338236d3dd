package ws_session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/scrumdeck/core/internal/gateway"
	"github.com/scrumdeck/core/internal/model"
	"github.com/scrumdeck/core/internal/realtime"
)

// Inbound envelope. data is type-specific: a bare bool for the flag
// categories, a room action for "room".
type inboundEnvelope struct {
	Type   model.Category  `json:"type"`
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data"`
}

type roomAction struct {
	Action model.Action `json:"action"`
	RoomID model.RoomID `json:"roomId"`
	User   *struct {
		Name string `json:"name"`
	} `json:"user"`
}

type Controller struct {
	registry *realtime.Registry
	gateway  *gateway.Gateway
	newID    gateway.IDSource
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewController(registry *realtime.Registry, gw *gateway.Gateway, newID gateway.IDSource, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		registry: registry,
		gateway:  gw,
		newID:    newID,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws", c.serve)
}

func (c *Controller) serve(ctx *gin.Context) {
	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	connID := c.newID()
	client := newClient(connID, conn)
	c.registry.Register(connID, client)
	c.logger.Debug("connection opened", "conn_id", connID, "remote", conn.RemoteAddr().String())

	go client.writePump()
	c.readLoop(ctx.Request.Context(), connID, client)
}

// readLoop handles one connection's messages in arrival order. When it
// returns the connection is gone: the registry entry is removed so no focus
// or flag can dangle past the session.
func (c *Controller) readLoop(ctx context.Context, connID string, client *Client) {
	defer func() {
		c.registry.Unregister(connID)
		client.close()
		client.conn.Close()
		c.logger.Debug("connection closed", "conn_id", connID)
	}()

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handle(ctx, connID, raw)
	}
}

func (c *Controller) handle(ctx context.Context, connID string, raw []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("malformed message dropped", "conn_id", connID, "error", err)
		return
	}

	if env.UserID != "" {
		if err := c.registry.BindUser(connID, env.UserID); err != nil {
			// Best-effort impersonation guard: dropped silently, the
			// client is never told.
			c.logger.Warn("rejected message for bound connection",
				"conn_id", connID, "declared_user", env.UserID, "error", err)
			return
		}
	}

	switch env.Type {
	case model.CategoryList, model.CategorySets:
		var on bool
		if err := json.Unmarshal(env.Data, &on); err != nil {
			c.logger.Warn("malformed subscription flag dropped", "conn_id", connID, "error", err)
			return
		}
		c.registry.SetFlag(connID, env.Type, on)

	case model.CategoryRoom:
		var action roomAction
		if err := json.Unmarshal(env.Data, &action); err != nil {
			c.logger.Warn("malformed room action dropped", "conn_id", connID, "error", err)
			return
		}
		c.handleRoom(ctx, connID, env.UserID, action)

	default:
		c.logger.Warn("unknown message type dropped", "conn_id", connID, "type", string(env.Type))
	}
}

// handleRoom joins or leaves a room. A join upserts the user into the room's
// unit first; focus is only granted once the user durably exists there.
func (c *Controller) handleRoom(ctx context.Context, connID, userID string, action roomAction) {
	if action.Action == model.ActionRemove {
		c.registry.Unfocus(connID, action.RoomID)
		return
	}
	if action.User == nil {
		c.logger.Warn("cannot add or modify a missing user", "conn_id", connID, "room_id", string(action.RoomID))
		return
	}

	err := c.gateway.AddUserToRoom(ctx, action.RoomID, model.User{ID: userID, Name: action.User.Name})
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			c.logger.Warn("join to unknown room dropped", "conn_id", connID, "room_id", string(action.RoomID))
			return
		}
		c.logger.Error("failed to join room", "conn_id", connID, "room_id", string(action.RoomID), "error", err)
		return
	}
	c.registry.Focus(connID, action.RoomID)
}
