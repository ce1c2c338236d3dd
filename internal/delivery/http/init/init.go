package http_init

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api/v1"

type Controller interface {
	RegisterRoutes(router *gin.RouterGroup)
}

type ControllerPool struct {
	pool   []Controller
	rg     *gin.RouterGroup
	engine *gin.Engine
}

func NewControllerPool() *ControllerPool {
	engine := gin.Default()
	rg := engine.Group(apiPrefix)
	return &ControllerPool{
		pool:   make([]Controller, 0, 8),
		rg:     rg,
		engine: engine,
	}
}

func (pool *ControllerPool) Add(c Controller) {
	pool.pool = append(pool.pool, c)
}

func (pool *ControllerPool) Register() {
	for _, c := range pool.pool {
		c.RegisterRoutes(pool.rg)
	}
}

// Server builds the http.Server so the caller owns startup and graceful
// shutdown; the pool only wires routes.
func (pool *ControllerPool) Server(addr string) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: pool.engine,
	}
}
