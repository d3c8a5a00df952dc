package cmd

import (
	"strconv"
	"strings"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
)

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func taskDuration(t *types.Task) string {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return "-"
	}
	return t.CompletedAt.Sub(*t.StartedAt).Round(time.Millisecond).String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
