package api

import (
	"github.com/LENAX/pipeline-engine/pkg/api/handler"
	"github.com/LENAX/pipeline-engine/pkg/api/middleware"
	"github.com/LENAX/pipeline-engine/pkg/core/engine"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter(eng *engine.Engine, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	workflowHandler := handler.NewWorkflowHandler(eng)
	taskHandler := handler.NewTaskHandler(eng)
	eventsHandler := handler.NewEventsHandler(eng.EventBus())
	healthHandler := handler.NewHealthHandler(version)

	router.GET("/health", healthHandler.Health)

	v1 := router.Group("/api/v1")
	{
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", workflowHandler.List)
			workflows.POST("", workflowHandler.Create)
			workflows.GET("/:id", workflowHandler.Get)
			workflows.DELETE("/:id", workflowHandler.Delete)
			workflows.POST("/:id/execute", workflowHandler.Execute)
			workflows.POST("/:id/cancel", workflowHandler.Cancel)
			workflows.POST("/:id/schedule", workflowHandler.EnableSchedule)
			workflows.DELETE("/:id/schedule", workflowHandler.DisableSchedule)
			workflows.GET("/:id/tasks", taskHandler.List)
			workflows.POST("/:id/tasks", taskHandler.Add)
			workflows.DELETE("/:id/tasks/:taskId", taskHandler.Remove)
		}

		v1.GET("/executors", taskHandler.Executors)
		v1.GET("/events/ws", eventsHandler.Stream)
	}

	return router
}
