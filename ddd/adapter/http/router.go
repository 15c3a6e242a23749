package http

import (
	"github.com/gin-gonic/gin"

	"render-engine/ddd/application/app"
	"render-engine/pkg/config"
	"render-engine/pkg/middleware"
)

// Router 路由配置
type Router struct {
	cfg       *config.Config
	renderApp app.RenderApp
}

// NewRouter 创建路由配置
func NewRouter(cfg *config.Config, renderApp app.RenderApp) *Router {
	return &Router{
		cfg:       cfg,
		renderApp: renderApp,
	}
}

// SetupRoutes 设置路由
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(middleware.RequestContextMiddleware())
	if r.cfg != nil && r.cfg.JWT.Secret != "" {
		engine.Use(middleware.AuthClaimsMiddleware(r.cfg.JWT))
	}

	jobController := NewRenderJobController(r.renderApp)

	// API v1 路由组
	v1 := engine.Group("/api/v1")
	{
		jobs := v1.Group("/render-jobs")
		{
			jobs.POST("", jobController.CreateRenderJob) // 创建渲染任务
			jobs.GET("", jobController.ListRenderJobs)   // 获取任务列表

			jobs.GET("/:job_id", jobController.GetRenderJob)               // 获取任务详情
			jobs.GET("/:job_id/progress", jobController.GetRenderProgress) // 获取任务进度
			jobs.POST("/:job_id/cancel", jobController.CancelRenderJob)    // 取消任务
			jobs.POST("/:job_id/resume", jobController.ResumeRenderJob)    // 重新排队
		}

		// 分段渲染独立成组，避免与 :job_id 路由冲突
		segments := v1.Group("/render-segments")
		{
			segments.POST("/plan", jobController.PlanSegments)      // 计算分段窗口
			segments.POST("", jobController.CreateSegmentJobs)      // 创建分段任务
			segments.POST("/stitch", jobController.StitchSegments)  // 拼接分段
		}
	}

	// 健康检查路由
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "render-engine",
			"version": "1.0.0",
		})
	})

	engine.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Render Engine API",
			"version": "1.0.0",
		})
	})
}
