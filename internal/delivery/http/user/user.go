package http_user

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	http_common "github.com/scrumdeck/core/internal/delivery/http/common"
	"github.com/scrumdeck/core/internal/gateway"
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
	router.PUT("/users/:user_id", c.rename)
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// rename updates the user's display name in every room their live
// connections have open.
func (c *Controller) rename(ctx *gin.Context) {
	userID := ctx.Param("user_id")

	var req renameRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request format"})
		return
	}

	if err := c.gateway.ChangeName(ctx, userID, req.Name); err != nil {
		c.logger.Error("failed to rename user", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "internal error"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"userId": userID, "name": req.Name})
}
