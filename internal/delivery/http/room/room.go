package http_room

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	http_common "github.com/scrumdeck/core/internal/delivery/http/common"
	"github.com/scrumdeck/core/internal/gateway"
	"github.com/scrumdeck/core/internal/model"
)

type Controller struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

func New(gw *gateway.Gateway) *Controller {
	return &Controller{
		gateway: gw,
		logger:  slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rooms := router.Group("/rooms")
	{
		rooms.GET("", c.list)
		rooms.POST("", c.create)
		rooms.GET("/:room_id", c.get)
		rooms.DELETE("/:room_id", c.remove)

		rooms.POST("/:room_id/tasks", c.addTask)
		rooms.PATCH("/:room_id/tasks/:task_id", c.patchTask)
		rooms.DELETE("/:room_id/tasks/:task_id", c.deleteTask)
		rooms.PATCH("/:room_id/tasks/:task_id/votes/:user_id", c.vote)

		rooms.POST("/:room_id/voting/:task_id", c.beginVoting)
		rooms.POST("/:room_id/voting/:task_id/reveal", c.revealVotes)

		rooms.PATCH("/:room_id/users/:user_id", c.moderation)
	}
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required"`
	Persisted   bool   `json:"persisted"`
	TaskPattern string `json:"taskPattern"`
	Owner       struct {
		ID   string `json:"id" binding:"required"`
		Name string `json:"name" binding:"required"`
	} `json:"owner" binding:"required"`
	CardSetID string       `json:"cardSetId"`
	Cards     []model.Card `json:"cards"`
	Tasks     []model.Task `json:"tasks"`
}

type createRoomResponse struct {
	Created model.RoomID `json:"created"`
}

func (c *Controller) create(ctx *gin.Context) {
	var req createRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request format"})
		return
	}

	deck := req.Cards
	if req.CardSetID != "" {
		sets, err := c.gateway.CardSets(ctx)
		if err != nil {
			c.fail(ctx, "failed to read catalog", err)
			return
		}
		set, ok := sets[req.CardSetID]
		if !ok {
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{Message: "not found"})
			return
		}
		deck = set.Cards
	}

	owner := model.User{ID: req.Owner.ID, Name: req.Owner.Name, Moderator: true}
	id, err := c.gateway.CreateRoom(ctx, req.Name, req.Persisted, owner, deck, req.TaskPattern, req.Tasks)
	if err != nil {
		c.fail(ctx, "failed to create room", err)
		return
	}

	ctx.JSON(http.StatusCreated, createRoomResponse{Created: id})
}

type roomListEntry struct {
	ID model.RoomID `json:"id"`
	model.RoomSummary
}

func (c *Controller) list(ctx *gin.Context) {
	entries := lo.MapToSlice(c.gateway.RoomList(), func(id model.RoomID, summary model.RoomSummary) roomListEntry {
		return roomListEntry{ID: id, RoomSummary: summary}
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	ctx.JSON(http.StatusOK, entries)
}

func (c *Controller) get(ctx *gin.Context) {
	id := model.RoomID(ctx.Param("room_id"))

	room, err := c.gateway.GetRoom(ctx, id)
	if err != nil {
		c.fail(ctx, "failed to get room", err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

func (c *Controller) remove(ctx *gin.Context) {
	id := model.RoomID(ctx.Param("room_id"))

	if err := c.gateway.DeleteRoom(ctx, id); err != nil {
		c.fail(ctx, "failed to delete room", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"roomDeleted": id})
}

type addTaskRequest struct {
	Num  string `json:"num"`
	Name string `json:"name" binding:"required"`
}

func (c *Controller) addTask(ctx *gin.Context) {
	id := model.RoomID(ctx.Param("room_id"))

	var req addTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request format"})
		return
	}

	taskID, err := c.gateway.AddTaskToRoom(ctx, id, model.Task{Num: req.Num, Name: req.Name})
	if err != nil {
		c.fail(ctx, "failed to add task", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"created": taskID})
}

type patchTaskRequest struct {
	CardID  string `json:"cardId"`
	Comment string `json:"comment"`
}

// patchTask carries either an accepted card or a comment; an accepted card
// wins when both are present.
func (c *Controller) patchTask(ctx *gin.Context) {
	id := model.RoomID(ctx.Param("room_id"))
	taskID := ctx.Param("task_id")

	var req patchTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request format"})
		return
	}

	var err error
	if req.CardID != "" {
		err = c.gateway.AcceptVote(ctx, id, taskID, req.CardID)
	} else {
		err = c.gateway.SaveComment(ctx, id, taskID, req.Comment)
	}
	if err != nil {
		c.fail(ctx, "failed to update task", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Controller) deleteTask(ctx *gin.Context) {
	id := model.RoomID(ctx.Param("room_id"))
	taskID := ctx.Param("task_id")

	if err := c.gateway.DeleteTask(ctx, id, taskID); err != nil {
		c.fail(ctx, "failed to delete task", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"roomId": id, "taskId": taskID})
}

type voteRequest struct {
	CardID string `json:"cardId" binding:"required"`
}

func (c *Controller) vote(ctx *gin.Context) {
	id := model.RoomID(ctx.Param("room_id"))
	taskID := ctx.Param("task_id")
	userID := ctx.Param("user_id")

	var req voteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request format"})
		return
	}

	if err := c.gateway.Vote(ctx, id, taskID, userID, req.CardID); err != nil {
		c.fail(ctx, "failed to record vote", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Controller) beginVoting(ctx *gin.Context) {
	id := model.RoomID(ctx.Param("room_id"))
	taskID := ctx.Param("task_id")

	if err := c.gateway.BeginVoting(ctx, id, taskID); err != nil {
		c.fail(ctx, "failed to begin voting", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Controller) revealVotes(ctx *gin.Context) {
	id := model.RoomID(ctx.Param("room_id"))
	taskID := ctx.Param("task_id")

	if err := c.gateway.RevealVotes(ctx, id, taskID); err != nil {
		c.fail(ctx, "failed to reveal votes", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

type moderationRequest struct {
	Name      string `json:"name" binding:"required"`
	Moderator bool   `json:"moderator"`
}

func (c *Controller) moderation(ctx *gin.Context) {
	id := model.RoomID(ctx.Param("room_id"))
	userID := ctx.Param("user_id")

	var req moderationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request format"})
		return
	}

	user := model.User{ID: userID, Name: req.Name, Moderator: req.Moderator}
	if err := c.gateway.Moderation(ctx, id, user); err != nil {
		c.fail(ctx, "failed to update moderation", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Controller) fail(ctx *gin.Context, msg string, err error) {
	c.logger.Error(msg, slog.String("error", err.Error()))
	if errors.Is(err, gateway.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{Message: "not found"})
		return
	}
	ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "internal error"})
}
