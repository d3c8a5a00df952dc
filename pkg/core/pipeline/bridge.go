package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
)

const (
	// OutputsStartMarker 结构化输出起始标记
	OutputsStartMarker = "__TASK_OUTPUTS_START__"
	// OutputsEndMarker 结构化输出结束标记
	OutputsEndMarker = "__TASK_OUTPUTS_END__"
)

var outputsPattern = regexp.MustCompile(regexp.QuoteMeta(OutputsStartMarker) + `(.*?)` + regexp.QuoteMeta(OutputsEndMarker))

// UpstreamOutput 上游已完成Task的输出记录（对外导出）
type UpstreamOutput struct {
	TaskName  string         `json:"task_name"`
	TaskOrder int            `json:"task_order"`
	Outputs   map[string]any `json:"outputs"`
	RawOutput string         `json:"raw_output"`
}

// Bridge Task之间的数据通道（对外导出）
// Prepare 在执行前把上游输出注入脚本，Extract 在执行后从stdout中取回结构化输出。
// 默认实现为SentinelBridge，可替换为其他传输方式（如输出文件）而不影响Runner。
type Bridge interface {
	Prepare(script string, previous []UpstreamOutput) (string, error)
	Extract(stdout string) map[string]any
}

// SentinelBridge 基于stdout标记行的数据通道（对外导出）
type SentinelBridge struct{}

// NewSentinelBridge 创建默认数据通道
func NewSentinelBridge() *SentinelBridge {
	return &SentinelBridge{}
}

// Prepare 在脚本前拼接运行时shim和上游输出
// 脚本开头的docstring和 from __future__ 语句会被提到shim之前，否则Python会报语法错误
func (b *SentinelBridge) Prepare(script string, previous []UpstreamOutput) (string, error) {
	items := make([]UpstreamOutput, len(previous))
	copy(items, previous)
	for i := range items {
		if items[i].Outputs == nil {
			items[i].Outputs = map[string]any{}
		}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return "", errors.Wrap(err, "序列化上游输出失败")
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	header, body := splitFutureImports(script)

	var sb strings.Builder
	for _, line := range header {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf(shimTemplate, encoded, OutputsStartMarker, OutputsEndMarker))
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Extract 解析stdout中最后一组标记之间的JSON对象
// 没有标记、JSON非法或不是对象时返回空map，不视为错误
func (b *SentinelBridge) Extract(stdout string) map[string]any {
	return ParseOutputs(stdout)
}

// ParseOutputs 从stdout中解析结构化输出（对外导出）
func ParseOutputs(stdout string) map[string]any {
	result := map[string]any{}
	matches := outputsPattern.FindAllStringSubmatch(stdout, -1)
	if len(matches) == 0 {
		return result
	}
	last := matches[len(matches)-1][1]
	var parsed map[string]any
	if err := json.Unmarshal([]byte(last), &parsed); err != nil || parsed == nil {
		return result
	}
	return parsed
}

// Collect 从Task列表中挑出已完成的Task，按执行顺序生成上游输出（对外导出）
func Collect(tasks []*types.Task) []UpstreamOutput {
	completed := make([]*types.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == types.StatusCompleted {
			completed = append(completed, t)
		}
	}
	types.SortTasks(completed)

	outputs := make([]UpstreamOutput, 0, len(completed))
	for _, t := range completed {
		taskOutputs := t.TaskOutputs
		if taskOutputs == nil {
			taskOutputs = map[string]any{}
		}
		outputs = append(outputs, UpstreamOutput{
			TaskName:  t.Name,
			TaskOrder: t.Order,
			Outputs:   taskOutputs,
			RawOutput: t.Output,
		})
	}
	return outputs
}

// splitFutureImports 拆出脚本开头的模块docstring和 from __future__ 语句
// 两者都必须位于文件最前（允许空行和注释），因此一起提到shim之前
func splitFutureImports(script string) ([]string, string) {
	lines := strings.Split(script, "\n")
	var header []string
	rest := make([]string, 0, len(lines))
	inHeader, seenDoc := true, false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case !inHeader:
		case strings.HasPrefix(trimmed, "from __future__ import"):
			header = append(header, trimmed)
			continue
		case !seenDoc && len(header) == 0 && docstringQuote(trimmed) != "":
			seenDoc = true
			end := docstringEnd(lines, i)
			header = append(header, lines[i:end+1]...)
			i = end
			continue
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
		default:
			inHeader = false
		}
		rest = append(rest, line)
	}
	return header, strings.Join(rest, "\n")
}

// docstringQuote 返回字符串字面量的起始引号，不是字符串时返回空
func docstringQuote(trimmed string) string {
	s := strings.TrimLeft(trimmed, "rRuU")
	if len(trimmed)-len(s) > 2 {
		return ""
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if !strings.HasPrefix(s, q) {
			continue
		}
		// 单引号字符串必须独占一行才算docstring
		if len(q) == 1 && (len(s) < 2 || !strings.HasSuffix(s, q)) {
			return ""
		}
		return q
	}
	return ""
}

// docstringEnd 返回从start开始的docstring结束所在行，未闭合时返回最后一行
func docstringEnd(lines []string, start int) int {
	trimmed := strings.TrimSpace(lines[start])
	quote := docstringQuote(trimmed)
	if len(quote) == 1 {
		return start
	}
	body := strings.TrimLeft(trimmed, "rRuU")[len(quote):]
	if strings.Contains(body, quote) {
		return start
	}
	for i := start + 1; i < len(lines); i++ {
		if strings.Contains(lines[i], quote) {
			return i
		}
	}
	return len(lines) - 1
}

var _ Bridge = (*SentinelBridge)(nil)
