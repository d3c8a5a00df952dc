package plugin

import (
	"context"
	"fmt"
	"time"
)

// Plugin 通知插件基础接口（对外导出）
type Plugin interface {
	// Name 插件名称，同一个Manager中唯一
	Name() string
	// Init 使用字符串参数初始化插件
	Init(params map[string]string) error
	// Execute 投递一条通知，失败记录在返回结果中而不是panic
	Execute(ctx context.Context, n Notification) DeliveryResult
}

// Notifier 引擎核心依赖的通知出口（对外导出）
// 实现必须自行吞掉投递错误，调用方只记录结果
type Notifier interface {
	Notify(ctx context.Context, n Notification) []DeliveryResult
}

// NopNotifier 不发送任何通知
type NopNotifier struct{}

// Notify 实现Notifier接口
func (NopNotifier) Notify(context.Context, Notification) []DeliveryResult {
	return nil
}

// Notifiers 依次调用多个Notifier并合并结果
type Notifiers []Notifier

// Notify 实现Notifier接口
func (ns Notifiers) Notify(ctx context.Context, n Notification) []DeliveryResult {
	var results []DeliveryResult
	for _, notifier := range ns {
		if notifier == nil {
			continue
		}
		results = append(results, notifier.Notify(ctx, n)...)
	}
	return results
}

// Direct 不经过过滤规则直接投递到单个插件，用于事件总线等实时消费者
func Direct(p Plugin) Notifier {
	return directNotifier{plugin: p}
}

type directNotifier struct {
	plugin Plugin
}

func (d directNotifier) Notify(ctx context.Context, n Notification) (results []DeliveryResult) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	defer func() {
		if r := recover(); r != nil {
			results = []DeliveryResult{Failed(d.plugin.Name(), fmt.Errorf("plugin panic: %v", r))}
		}
	}()
	return []DeliveryResult{d.plugin.Execute(ctx, n)}
}
