package types

// ExecutionResult 隔离后端的执行结果（对外导出）
// ExitCode非0且未解析到结构化输出时Success必为false
type ExecutionResult struct {
	Success       bool           `json:"success"`
	Output        string         `json:"output"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ExecutionTime float64        `json:"execution_time"` // 秒
	ExitCode      *int           `json:"exit_code,omitempty"`
	TaskOutputs   map[string]any `json:"task_outputs"`
	// Cause 错误分类（ErrInstall/ErrTimeout等），不序列化
	Cause error `json:"-"`
}

// IntPtr 返回int指针
func IntPtr(v int) *int {
	return &v
}
