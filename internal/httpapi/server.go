// Package httpapi exposes the settings service and the versioned catalogs over
// HTTP. Every mutating endpoint takes the observed version in its body and
// failures use the {code, message} envelope.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-settings/pkg/catalog"
	"github.com/goliatone/go-settings/pkg/state"
	"github.com/goliatone/go-settings/schema/openapi"
)

// Deps are the services the API serves. Nil catalog services leave their
// routes unmounted.
type Deps struct {
	Settings  *state.Service
	Statuses  *catalog.Statuses
	Relations *catalog.Relations
	Templates *catalog.Templates
	Schema    openapi.Generator
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

type Server struct {
	settings  *state.Service
	statuses  *catalog.Statuses
	relations *catalog.Relations
	templates *catalog.Templates
	schema    openapi.Generator
	logger    *slog.Logger
}

// New builds the gin engine with every route mounted.
func New(deps Deps) *gin.Engine {
	s := &Server{
		settings:  deps.Settings,
		statuses:  deps.Statuses,
		relations: deps.Relations,
		templates: deps.Templates,
		schema:    deps.Schema,
		logger:    deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api", identityMiddleware())
	if s.settings != nil {
		api.GET("/settings", s.listSettings)
		api.PUT("/settings", s.putSetting)
		api.DELETE("/settings", s.resetSetting)
		api.GET("/settings/schema", s.settingsSchema)
		api.GET("/settings/trace", s.traceSetting)
	}
	if s.statuses != nil {
		api.GET("/statuses", s.listStatuses)
		api.POST("/statuses", s.createStatus)
		api.PUT("/statuses/:id", s.updateStatus)
		api.POST("/statuses/:id/toggle-active", s.toggleStatus)
		api.DELETE("/statuses/:id", s.deleteStatus)
	}
	if s.relations != nil {
		api.POST("/relations", s.createRelation)
		api.GET("/relations/:id", s.getRelation)
		api.POST("/relations/:id/members", s.addRelationMember)
		api.DELETE("/relations/:id/members/:member", s.removeRelationMember)
	}
	if s.templates != nil {
		api.GET("/templates", s.listTemplates)
		api.POST("/templates", s.createTemplate)
		api.GET("/templates/:id", s.getTemplate)
		api.PUT("/templates/:id", s.updateTemplate)
		api.DELETE("/templates/:id", s.deleteTemplate)
		api.POST("/templates/:id/render", s.renderTemplate)
	}
	return router
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
