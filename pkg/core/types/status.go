package types

// Status Workflow/Task状态（对外导出）
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal 是否为终态（COMPLETED/FAILED/CANCELLED）
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// String 实现Stringer
func (s Status) String() string {
	return string(s)
}

// ParseStatus 解析状态字符串，未知值返回false
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(s), true
	default:
		return "", false
	}
}
