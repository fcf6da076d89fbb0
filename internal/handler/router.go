package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"GISData-App/internal/logging"
)

const serviceName = "GISData-App"

// HealthChecker /health で疎通確認する依存先
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Metrics ルーターに組み込むメトリクス
type Metrics interface {
	Middleware() gin.HandlerFunc
	Handler() http.Handler
}

// RouterDeps ルーター構築に必要なハンドラーと依存
type RouterDeps struct {
	Files    *FileHandler
	Features *FeatureHandler
	Health   HealthChecker // nil の場合は常に healthy
	Metrics  Metrics       // nil の場合は /metrics を公開しない
}

// NewRouter APIのルーティングを設定した gin.Engine を返す
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger())
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	r.GET("/health", healthHandler(deps.Health))

	files := r.Group("/files")
	{
		files.POST("/upload", deps.Files.Upload)
		files.POST("/download", deps.Files.Download)
		files.GET("", deps.Files.ListFiles)
		files.GET("/states", deps.Files.ListStates)
		files.GET("/districts", deps.Files.ListDistricts)
		files.GET("/:id", deps.Files.GetFile)
		files.GET("/:id/features", deps.Files.GetFileFeatures)
		files.GET("/:id/report", deps.Files.GetReport)
		files.GET("/:id/download", deps.Files.DownloadFile)
		files.DELETE("/:id", deps.Files.DeleteFile)
	}

	features := r.Group("/features")
	{
		features.GET("", deps.Features.ListFeatures)
		features.GET("/states", deps.Features.ListStates)
		features.GET("/districts", deps.Features.ListDistricts)
		features.GET("/taluks", deps.Features.ListTaluks)
		features.GET("/villages", deps.Features.ListVillages)
		features.POST("/spatial/:operation", deps.Features.Spatial)
		features.GET("/:id", deps.Features.GetFeature)
		features.PUT("/:id", deps.Features.UpdateFeature)
		features.DELETE("/:id", deps.Features.DeleteFeature)
	}

	return r
}

func healthHandler(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()
			if err := checker.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": serviceName,
					"details": err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	}
}
