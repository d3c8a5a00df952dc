package plugin

import (
	"fmt"
	"time"
)

// Filter 全局通知过滤规则（对外导出）
// 优先级不足、事件未开启、或处于免打扰时段（HIGH及以上除外）的通知会被跳过
type Filter struct {
	MinPriority Priority
	Events      []Event // 为空表示全部事件
	QuietStart  string  // "HH:MM"，与QuietEnd同时设置才生效
	QuietEnd    string
	Location    *time.Location
}

// Validate 校验免打扰时段格式
func (f Filter) Validate() error {
	if f.QuietStart == "" && f.QuietEnd == "" {
		return nil
	}
	if _, err := parseClock(f.QuietStart); err != nil {
		return fmt.Errorf("invalid quiet hours start %q: %w", f.QuietStart, err)
	}
	if _, err := parseClock(f.QuietEnd); err != nil {
		return fmt.Errorf("invalid quiet hours end %q: %w", f.QuietEnd, err)
	}
	return nil
}

// Allow 判断通知是否放行，不放行时返回原因
func (f Filter) Allow(n Notification, now time.Time) (bool, string) {
	if f.inQuietHours(n, now) {
		return false, "Notification skipped due to quiet hours"
	}
	if f.MinPriority != "" && n.Priority.Level() < f.MinPriority.Level() {
		return false, "Notification skipped due to priority filter"
	}
	if len(f.Events) > 0 && !containsEvent(f.Events, n.Event) {
		return false, "Notification skipped due to event filter"
	}
	return true, ""
}

func (f Filter) inQuietHours(n Notification, now time.Time) bool {
	if f.QuietStart == "" || f.QuietEnd == "" {
		return false
	}
	if n.Priority.Level() >= PriorityHigh.Level() {
		return false
	}
	start, err := parseClock(f.QuietStart)
	if err != nil {
		return false
	}
	end, err := parseClock(f.QuietEnd)
	if err != nil {
		return false
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	current := local.Hour()*60 + local.Minute()

	// 跨午夜，如 22:00 - 08:00
	if start > end {
		return current >= start || current <= end
	}
	return current >= start && current <= end
}

// parseClock 解析 HH:MM，返回当天分钟数
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func containsEvent(events []Event, e Event) bool {
	for _, candidate := range events {
		if candidate == e || candidate == EventAll {
			return true
		}
	}
	return false
}
