package plugin

import (
	"fmt"
	"strings"
	"time"
)

// Event 通知事件类型（对外导出）
type Event string

const (
	EventTaskStarted       Event = "task_started"
	EventTaskCompleted     Event = "task_completed"
	EventTaskFailed        Event = "task_failed"
	EventWorkflowStarted   Event = "workflow_started"
	EventWorkflowCompleted Event = "workflow_completed"
	EventWorkflowFailed    Event = "workflow_failed"
	EventWorkflowScheduled Event = "workflow_scheduled"

	// EventAll 绑定时表示所有事件
	EventAll Event = "*"
)

// AllEvents 全部具体事件
var AllEvents = []Event{
	EventTaskStarted,
	EventTaskCompleted,
	EventTaskFailed,
	EventWorkflowStarted,
	EventWorkflowCompleted,
	EventWorkflowFailed,
	EventWorkflowScheduled,
}

// Priority 通知优先级（对外导出）
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Level 优先级数值，未知值按normal处理
func (p Priority) Level() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// ParsePriority 解析优先级，大小写不敏感
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	case "":
		return PriorityNormal, nil
	default:
		return "", fmt.Errorf("unknown priority: %s", s)
	}
}

// Notification 一条待投递的通知（对外导出）
type Notification struct {
	Event        Event          `json:"event"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowName string         `json:"workflow_name"`
	TaskID       string         `json:"task_id,omitempty"`
	TaskName     string         `json:"task_name,omitempty"`
	Priority     Priority       `json:"priority"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// DeliveryResult 单个插件的投递结果（对外导出）
type DeliveryResult struct {
	Success   bool      `json:"success"`
	Provider  string    `json:"provider"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// Delivered 构造成功结果
func Delivered(provider, message string) DeliveryResult {
	return DeliveryResult{Success: true, Provider: provider, Message: message, SentAt: time.Now().UTC()}
}

// Failed 构造失败结果
func Failed(provider string, err error) DeliveryResult {
	return DeliveryResult{Success: false, Provider: provider, Error: err.Error(), SentAt: time.Now().UTC()}
}

// Title 通知标题
func (n Notification) Title() string {
	switch n.Event {
	case EventTaskStarted:
		return "Task Started: " + n.TaskName
	case EventTaskCompleted:
		return "Task Completed: " + n.TaskName
	case EventTaskFailed:
		return "Task Failed: " + n.TaskName
	case EventWorkflowStarted:
		return "Workflow Started: " + n.WorkflowName
	case EventWorkflowCompleted:
		return "Workflow Completed: " + n.WorkflowName
	case EventWorkflowFailed:
		return "Workflow Failed: " + n.WorkflowName
	case EventWorkflowScheduled:
		return "Workflow Scheduled: " + n.WorkflowName
	}
	if n.TaskName != "" {
		return "Task Update: " + n.TaskName
	}
	return "Workflow Update: " + n.WorkflowName
}

// Message 通知正文
func (n Notification) Message() string {
	var msg string
	switch n.Event {
	case EventTaskStarted:
		msg = fmt.Sprintf("Task '%s' in workflow '%s' has started execution.", n.TaskName, n.WorkflowName)
	case EventTaskCompleted:
		msg = fmt.Sprintf("Task '%s' in workflow '%s' has completed successfully.", n.TaskName, n.WorkflowName)
	case EventTaskFailed:
		msg = fmt.Sprintf("Task '%s' in workflow '%s' has failed.", n.TaskName, n.WorkflowName)
	case EventWorkflowStarted:
		msg = fmt.Sprintf("Workflow '%s' has started execution.", n.WorkflowName)
	case EventWorkflowCompleted:
		msg = fmt.Sprintf("Workflow '%s' has completed successfully.", n.WorkflowName)
	case EventWorkflowFailed:
		msg = fmt.Sprintf("Workflow '%s' has failed.", n.WorkflowName)
	case EventWorkflowScheduled:
		msg = fmt.Sprintf("Workflow '%s' has been scheduled for execution.", n.WorkflowName)
	default:
		msg = fmt.Sprintf("Workflow '%s' - %s", n.WorkflowName, n.Event)
	}
	if n.ErrorMessage != "" && (n.Event == EventTaskFailed || n.Event == EventWorkflowFailed) {
		msg += "\n\nError: " + n.ErrorMessage
	}
	return msg
}
