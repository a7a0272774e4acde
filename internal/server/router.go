// Package server exposes a minimal gin HTTP surface for inspecting
// completed and in-flight piece runs. It never touches a live
// PieceState: it only reads history.Store records and NDJSON log files,
// and a run's log file can be streamed while that run is still writing it.
package server

import (
	"github.com/gin-gonic/gin"

	"github.com/cadenzalabs/ensemble/internal/history"
)

// routerDeps holds the dependencies route registration needs, adapted
// from the provider stack's own router wiring.
type routerDeps struct {
	store  history.Store
	logDir string
}

// Router wraps a gin.Engine configured with the inspection routes.
type Router struct {
	engine *gin.Engine
	deps   *routerDeps
}

// NewRouter builds a Router reading run records from store and NDJSON
// log files rooted at logDir.
func NewRouter(store history.Store, logDir string) *Router {
	g := gin.New()
	deps := &routerDeps{store: store, logDir: logDir}
	initRouter(g, deps)
	return &Router{engine: g, deps: deps}
}

// Handler returns the underlying gin.Engine, suitable for
// http.ListenAndServe.
func (r *Router) Handler() *gin.Engine {
	return r.engine
}

func initRouter(g *gin.Engine, deps *routerDeps) {
	installMiddleware(g)
	installController(g, deps)
}

func installMiddleware(g *gin.Engine) {
	g.Use(gin.Recovery())
}

func installController(g *gin.Engine, deps *routerDeps) {
	healthHandler := NewHealthHandler()
	runHandler := NewRunHandler(deps.store, deps.logDir)

	g.GET("/healthz", healthHandler.Healthz)

	runs := g.Group("/runs")
	{
		runs.GET("/:id", runHandler.Get)
		runs.GET("/:id/log", runHandler.StreamLog)
	}
}
