package output

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table 简单表格输出
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建表格
func NewTable(headers []string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		widths:  widths,
	}
}

// AddRow 添加行
func (t *Table) AddRow(row []string) {
	for i, cell := range row {
		if i < len(t.widths) && utf8.RuneCountInString(cell) > t.widths[i] {
			t.widths[i] = utf8.RuneCountInString(cell)
		}
	}
	t.rows = append(t.rows, row)
}

// Render 渲染表格
func (t *Table) Render() {
	headerColor := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		headerColor.Fprint(Writer, pad(h, t.widths[i]))
	}
	fmt.Fprintln(Writer)

	for i := range t.headers {
		fmt.Fprint(Writer, strings.Repeat("-", t.widths[i])+"  ")
	}
	fmt.Fprintln(Writer)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(t.widths) {
				fmt.Fprint(Writer, pad(cell, t.widths[i]))
			}
		}
		fmt.Fprintln(Writer)
	}
}

// pad 按字符数补齐，宽度计算不受多字节字符影响
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s + "  "
	}
	return s + strings.Repeat(" ", width-n) + "  "
}

// Status 带颜色的状态文本
func Status(status string) string {
	switch status {
	case "COMPLETED":
		return color.GreenString(status)
	case "FAILED":
		return color.RedString(status)
	case "RUNNING":
		return color.CyanString(status)
	case "CANCELLED":
		return color.YellowString(status)
	default:
		return status
	}
}

// Truncate 截断过长文本
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
