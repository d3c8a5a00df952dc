package handler

import (
	"net/http"
	"strings"

	"github.com/LENAX/pipeline-engine/pkg/api/dto"
	"github.com/LENAX/pipeline-engine/pkg/core/engine"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/gin-gonic/gin"
)

// WorkflowHandler Workflow API处理器
type WorkflowHandler struct {
	engine *engine.Engine
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(eng *engine.Engine) *WorkflowHandler {
	return &WorkflowHandler{engine: eng}
}

// List 列出Workflow，支持按状态过滤和分页
// GET /api/v1/workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	var req dto.ListQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	var status types.Status
	if req.Status != "" {
		s, ok := types.ParseStatus(strings.ToUpper(req.Status))
		if !ok {
			respondError(c, errors.Mark(errors.Newf("unknown status %q", req.Status), errors.ErrInvalidRequest))
			return
		}
		status = s
	}

	workflows, err := h.engine.ListWorkflows(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]dto.WorkflowSummary, 0, len(workflows))
	for _, wf := range workflows {
		if status != "" && wf.Status != status {
			continue
		}
		items = append(items, dto.NewWorkflowSummary(wf))
	}

	total := len(items)
	limit := req.GetDefaultLimit()
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.WorkflowSummary]{
		Total:   total,
		Items:   items[start:end],
		HasMore: end < total,
	}))
}

// Create 创建Workflow及其Task
// POST /api/v1/workflows
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	wf, tasks := req.ToWorkflow()
	created, err := h.engine.CreateWorkflow(c.Request.Context(), wf, tasks)
	if err != nil {
		respondError(c, err)
		return
	}
	types.SortTasks(tasks)

	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.WorkflowDetail{
		Workflow: created,
		Progress: dto.NewProgressInfo(tasks),
		Tasks:    tasks,
	}))
}

// Get 获取Workflow详情（含Task列表和进度）
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	wf, err := h.engine.GetWorkflow(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	tasks, err := h.engine.ListTasks(ctx, wf.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.WorkflowDetail{
		Workflow: wf,
		Progress: dto.NewProgressInfo(tasks),
		Tasks:    tasks,
	}))
}

// Delete 删除Workflow，运行中的Workflow需先取消
// DELETE /api/v1/workflows/:id
func (h *WorkflowHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	wf, err := h.engine.GetWorkflow(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if wf.Status == types.StatusRunning {
		respondError(c, errors.Mark(errors.Newf("workflow %s is running, cancel it first", id), errors.ErrConflict))
		return
	}
	if err := h.engine.DeleteWorkflow(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{"id": id}))
}

// Execute 派发一次Workflow运行，立即返回
// POST /api/v1/workflows/:id/execute
func (h *WorkflowHandler) Execute(c *gin.Context) {
	id := c.Param("id")
	handle, err := h.engine.Dispatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.ExecuteResponse{
		WorkflowID:      id,
		ExecutionHandle: handle,
		Message:         "Workflow已提交执行",
	}))
}

// Cancel 取消Workflow运行
// POST /api/v1/workflows/:id/cancel
func (h *WorkflowHandler) Cancel(c *gin.Context) {
	wf, err := h.engine.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewWorkflowSummary(wf)))
}

// EnableSchedule 开启定时调度
// POST /api/v1/workflows/:id/schedule
func (h *WorkflowHandler) EnableSchedule(c *gin.Context) {
	var req dto.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	wf, err := h.engine.EnableSchedule(c.Request.Context(), c.Param("id"), req.CronExpression, req.Timezone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewWorkflowSummary(wf)))
}

// DisableSchedule 关闭定时调度
// DELETE /api/v1/workflows/:id/schedule
func (h *WorkflowHandler) DisableSchedule(c *gin.Context) {
	wf, err := h.engine.DisableSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewWorkflowSummary(wf)))
}
