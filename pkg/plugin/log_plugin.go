package plugin

import (
	"context"

	"github.com/LENAX/pipeline-engine/pkg/logger"
	"go.uber.org/zap"
)

// LogPlugin 把通知写入结构化日志（对外导出）
type LogPlugin struct {
	log *zap.SugaredLogger
}

// NewLogPlugin 创建日志插件
func NewLogPlugin() *LogPlugin {
	return &LogPlugin{log: logger.Named("notification")}
}

// Name 插件名称（实现Plugin接口）
func (l *LogPlugin) Name() string {
	return "log"
}

// Init 无需参数（实现Plugin接口）
func (l *LogPlugin) Init(map[string]string) error {
	return nil
}

// Execute 写日志（实现Plugin接口）
func (l *LogPlugin) Execute(_ context.Context, n Notification) DeliveryResult {
	fields := []interface{}{
		"event", n.Event,
		"priority", n.Priority,
		"workflow_id", n.WorkflowID,
		"workflow", n.WorkflowName,
	}
	if n.TaskID != "" {
		fields = append(fields, "task_id", n.TaskID, "task", n.TaskName)
	}
	if n.ErrorMessage != "" {
		fields = append(fields, "error", n.ErrorMessage)
	}
	for k, v := range n.Metadata {
		fields = append(fields, k, v)
	}

	switch {
	case n.Priority.Level() >= PriorityHigh.Level():
		l.log.Warnw(n.Title(), fields...)
	case n.Priority == PriorityLow:
		l.log.Debugw(n.Title(), fields...)
	default:
		l.log.Infow(n.Title(), fields...)
	}
	return Delivered("log", "Logged")
}

var _ Plugin = (*LogPlugin)(nil)
