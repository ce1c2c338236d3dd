package http_catalog

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
	sets := router.Group("/sets")
	{
		sets.GET("", c.list)
		sets.POST("", c.create)
		sets.PUT("/:set_id", c.modify)
		sets.DELETE("/:set_id", c.remove)
	}
}

type setListEntry struct {
	ID string `json:"id"`
	model.CardSet
}

func (c *Controller) list(ctx *gin.Context) {
	sets, err := c.gateway.CardSets(ctx)
	if err != nil {
		c.fail(ctx, "failed to list card sets", err)
		return
	}

	entries := lo.MapToSlice(sets, func(id string, set model.CardSet) setListEntry {
		return setListEntry{ID: id, CardSet: set}
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	ctx.JSON(http.StatusOK, entries)
}

type createSetRequest struct {
	Name  string       `json:"name" binding:"required"`
	Cards []model.Card `json:"cards"`
}

func (c *Controller) create(ctx *gin.Context) {
	var req createSetRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request format"})
		return
	}

	set := model.CardSet{Name: req.Name, Cards: req.Cards}
	if len(set.Cards) == 0 {
		// Minimal starter deck; the set can be edited afterwards.
		set.Cards = []model.Card{
			{Value: 1, Label: "1"},
			{Value: 2, Label: "2"},
		}
	}

	id, err := c.gateway.CreateCardSet(ctx, set)
	if err != nil {
		c.fail(ctx, "failed to create card set", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"created": id})
}

func (c *Controller) modify(ctx *gin.Context) {
	id := ctx.Param("set_id")

	var set model.CardSet
	if err := ctx.ShouldBindJSON(&set); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request format"})
		return
	}

	if err := c.gateway.ModifySet(ctx, id, set); err != nil {
		c.fail(ctx, "failed to modify card set", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"setId": id})
}

func (c *Controller) remove(ctx *gin.Context) {
	id := ctx.Param("set_id")

	if err := c.gateway.DeleteSet(ctx, id); err != nil {
		c.fail(ctx, "failed to delete card set", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"setId": id})
}

func (c *Controller) fail(ctx *gin.Context, msg string, err error) {
	c.logger.Error(msg, slog.String("error", err.Error()))
	if errors.Is(err, gateway.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{Message: "not found"})
		return
	}
	ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "internal error"})
}
