package app

import (
	"github.com/osvaldoandrade/typhoonlens/internal/controllers"
	"github.com/osvaldoandrade/typhoonlens/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	api := app.Engine.Group("/api")
	{
		api.POST("/ai",
			middleware.RateLimitAnalyze(app.RateLimiter, app.Config),
			controllers.NewAnalyzeController(app.Analysis, app.Config.MaxBodyBytes).Handle,
		)
	}

	app.Engine.GET("/healthz", controllers.NewHealthController(app.Cache, app.Config.Cache.Provider).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
