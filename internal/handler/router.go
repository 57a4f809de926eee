package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/middleware"
)

type RouterDeps struct {
	Collections     *CollectionHandler
	JWTSecret       []byte
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	group := api.Group("/collections/:name")
	if len(deps.JWTSecret) > 0 {
		group.Use(middleware.JWTAuth(deps.JWTSecret))
	}
	limited := middleware.RateLimit(deps.RateLimitWindow)

	group.POST("/ingest", limited, deps.Collections.Ingest)
	group.POST("/search", deps.Collections.Search)
	group.POST("/answer", limited, deps.Collections.Answer)
	group.DELETE("/documents", deps.Collections.DeleteDocument)
}
