package task

import "github.com/LENAX/pipeline-engine/pkg/core/types"

// UpstreamFailurePrefix 上游失败导致短路时的错误前缀
const UpstreamFailurePrefix = "Upstream task failed: "

// Outcome 一次Task运行的结果，作为链上下一个单元的输入（对外导出）
type Outcome struct {
	TaskID        string         `json:"task_id"`
	TaskName      string         `json:"task_name"`
	Status        types.Status   `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ExecutionTime float64        `json:"execution_time"`
	TaskOutputs   map[string]any `json:"task_outputs"`
	// RootError 一串短路中最初的失败信息，原样向下游传递
	RootError string `json:"root_error,omitempty"`
	// Err 基础设施错误（如存储不可用），非nil时链应当中止
	Err error `json:"-"`
}

// Failed 是否失败
func (o *Outcome) Failed() bool {
	return o != nil && o.Status == types.StatusFailed
}

// rootError 下游短路时转发的失败信息
func (o *Outcome) rootError() string {
	if o.RootError != "" {
		return o.RootError
	}
	return o.ErrorMessage
}
