package handler

import (
	"net/http"

	"github.com/LENAX/pipeline-engine/pkg/api/dto"
	"github.com/LENAX/pipeline-engine/pkg/core/engine"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/gin-gonic/gin"
)

// TaskHandler Task API处理器
type TaskHandler struct {
	engine *engine.Engine
}

// NewTaskHandler 创建TaskHandler
func NewTaskHandler(eng *engine.Engine) *TaskHandler {
	return &TaskHandler{engine: eng}
}

// List 列出Workflow下的Task
// GET /api/v1/workflows/:id/tasks
func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.engine.ListTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[*types.Task]{
		Total: len(tasks),
		Items: tasks,
	}))
}

// Add 向Workflow追加Task，order为0时排在最后
// POST /api/v1/workflows/:id/tasks
func (h *TaskHandler) Add(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	existing, err := h.engine.ListTasks(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	next := 1
	for _, t := range existing {
		if t.Order >= next {
			next = t.Order + 1
		}
	}

	created, err := h.engine.AddTask(ctx, id, req.ToTask(id, next))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(created))
}

// Remove 删除Task
// DELETE /api/v1/workflows/:id/tasks/:taskId
func (h *TaskHandler) Remove(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.engine.RemoveTask(c.Request.Context(), c.Param("id"), taskID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{"id": taskID}))
}

// Executors 列出可用执行器
// GET /api/v1/executors
func (h *TaskHandler) Executors(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ExecutorsResponse{
		Default:   h.engine.DefaultExecutor(),
		Executors: h.engine.Executors(),
	}))
}
