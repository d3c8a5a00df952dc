package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Writer 所有输出的目标，默认为支持颜色的标准输出
var Writer io.Writer = color.Output

// PrintJSON 输出JSON格式
func PrintJSON(data interface{}) error {
	encoder := json.NewEncoder(Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Printf 输出普通文本
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(Writer, format, args...)
}

// Success 输出成功消息
func Success(format string, args ...interface{}) {
	green := color.New(color.FgGreen, color.Bold)
	green.Fprintf(Writer, "✅ "+format+"\n", args...)
}

// Error 输出错误消息
func Error(format string, args ...interface{}) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprintf(Writer, "❌ "+format+"\n", args...)
}

// Info 输出信息
func Info(format string, args ...interface{}) {
	cyan := color.New(color.FgCyan)
	cyan.Fprintf(Writer, "ℹ️  "+format+"\n", args...)
}

// Warning 输出警告
func Warning(format string, args ...interface{}) {
	yellow := color.New(color.FgYellow)
	yellow.Fprintf(Writer, "⚠️  "+format+"\n", args...)
}
