package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xxxsen/docrank/internal/middleware"
)

type RouterDeps struct {
	Analysis    *AnalysisHandler
	Properties  *PropertiesHandler
	Health      *HealthHandler
	RateLimit   gin.HandlerFunc
	MaxBodySize int64
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Health.Get)
	api.GET("/properties", deps.Properties.Get)
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))

	analyze := api.Group("/documents")
	if deps.RateLimit != nil {
		analyze.Use(deps.RateLimit)
	}
	if deps.MaxBodySize > 0 {
		analyze.Use(middleware.BodyLimit(deps.MaxBodySize))
	}
	analyze.POST("/analyze", deps.Analysis.Analyze)
}
