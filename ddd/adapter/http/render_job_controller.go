package http

import (
	"github.com/gin-gonic/gin"

	"render-engine/ddd/application/app"
	"render-engine/ddd/application/cqe"
	"render-engine/pkg/restapi"
)

// RenderJobController 渲染任务控制器
type RenderJobController struct {
	renderApp app.RenderApp
}

// NewRenderJobController 创建渲染任务控制器
func NewRenderJobController(renderApp app.RenderApp) *RenderJobController {
	return &RenderJobController{
		renderApp: renderApp,
	}
}

// identity 从请求上下文取租户身份（由中间件注入）
func identity(ctx *gin.Context) (tenantID, env, userID string) {
	return ctx.GetString("tenant_id"), ctx.GetString("env"), ctx.GetString("user_id")
}

// CreateRenderJob 创建渲染任务
func (c *RenderJobController) CreateRenderJob(ctx *gin.Context) {
	var req cqe.CreateRenderJobReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		restapi.Failed(ctx, err)
		return
	}
	req.TenantID, req.Env, req.UserID = identity(ctx)

	resp, err := c.renderApp.CreateRenderJob(ctx.Request.Context(), &req)
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

// GetRenderJob 获取任务详情
func (c *RenderJobController) GetRenderJob(ctx *gin.Context) {
	resp, err := c.renderApp.GetRenderJob(ctx.Request.Context(), ctx.Param("job_id"))
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

// GetRenderProgress 获取任务进度
func (c *RenderJobController) GetRenderProgress(ctx *gin.Context) {
	resp, err := c.renderApp.GetRenderProgress(ctx.Request.Context(), ctx.Param("job_id"))
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

// ListRenderJobs 获取任务列表
func (c *RenderJobController) ListRenderJobs(ctx *gin.Context) {
	var req cqe.ListRenderJobsReq
	if err := ctx.ShouldBindQuery(&req); err != nil {
		restapi.Failed(ctx, err)
		return
	}
	req.TenantID, req.Env, _ = identity(ctx)

	resp, err := c.renderApp.ListRenderJobs(ctx.Request.Context(), &req)
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

// CancelRenderJob 取消任务
func (c *RenderJobController) CancelRenderJob(ctx *gin.Context) {
	if err := c.renderApp.CancelRenderJob(ctx.Request.Context(), ctx.Param("job_id")); err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, nil)
}

// ResumeRenderJob 把失败/已取消的任务重新排队
func (c *RenderJobController) ResumeRenderJob(ctx *gin.Context) {
	resp, err := c.renderApp.ResumeRenderJob(ctx.Request.Context(), ctx.Param("job_id"))
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

// PlanSegments 计算分段窗口，不创建任务
func (c *RenderJobController) PlanSegments(ctx *gin.Context) {
	var req cqe.CreateSegmentJobsReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		restapi.Failed(ctx, err)
		return
	}
	req.TenantID, req.Env, req.UserID = identity(ctx)

	resp, err := c.renderApp.PlanSegments(ctx.Request.Context(), &req)
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

// CreateSegmentJobs 为整条序列创建分段渲染任务
func (c *RenderJobController) CreateSegmentJobs(ctx *gin.Context) {
	var req cqe.CreateSegmentJobsReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		restapi.Failed(ctx, err)
		return
	}
	req.TenantID, req.Env, req.UserID = identity(ctx)

	resp, err := c.renderApp.CreateSegmentJobs(ctx.Request.Context(), &req)
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

// StitchSegments 把成功的分段拼接成成片任务
func (c *RenderJobController) StitchSegments(ctx *gin.Context) {
	var req cqe.StitchSegmentsReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		restapi.Failed(ctx, err)
		return
	}
	req.TenantID, req.Env, req.UserID = identity(ctx)

	resp, err := c.renderApp.StitchSegments(ctx.Request.Context(), &req)
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}
