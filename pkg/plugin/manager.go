package plugin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"go.uber.org/zap"
)

// PluginBinding 插件绑定规则（对外导出）
type PluginBinding struct {
	PluginName string                    // 插件名称
	Event      Event                     // 触发事件，EventAll表示全部
	Condition  func(n Notification) bool // 可选：条件函数，满足条件才触发
}

// PluginManager 插件管理器接口（对外导出）
type PluginManager interface {
	Notifier
	// Register 注册插件
	Register(plugin Plugin) error
	// RegisterWithInit 注册并初始化插件
	RegisterWithInit(plugin Plugin, params map[string]string) error
	// Bind 绑定插件到事件
	Bind(binding PluginBinding) error
	// GetPlugin 获取已注册的插件
	GetPlugin(name string) (Plugin, bool)
	// ListPlugins 列出所有已注册的插件
	ListPlugins() []string
	// Unregister 取消注册插件
	Unregister(name string) error
}

// pluginManagerImpl 插件管理器实现（内部实现）
type pluginManagerImpl struct {
	plugins  map[string]Plugin         // 已注册的插件（插件名称 -> 插件实例）
	bindings map[Event][]PluginBinding // 事件绑定（事件类型 -> 绑定列表）
	filter   Filter
	now      func() time.Time
	log      *zap.SugaredLogger
	mu       sync.RWMutex
}

// NewPluginManager 创建插件管理器（对外导出）
func NewPluginManager(filter Filter) PluginManager {
	return &pluginManagerImpl{
		plugins:  make(map[string]Plugin),
		bindings: make(map[Event][]PluginBinding),
		filter:   filter,
		now:      time.Now,
		log:      logger.Named("plugin"),
	}
}

// Register 注册插件（实现PluginManager接口）
func (pm *pluginManagerImpl) Register(plugin Plugin) error {
	if plugin == nil {
		return errors.New("插件不能为空")
	}

	name := plugin.Name()
	if name == "" {
		return errors.New("插件名称不能为空")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; exists {
		return errors.Mark(errors.Newf("插件 %s 已注册", name), errors.ErrConflict)
	}

	pm.plugins[name] = plugin
	return nil
}

// RegisterWithInit 注册并初始化插件（实现PluginManager接口）
func (pm *pluginManagerImpl) RegisterWithInit(plugin Plugin, params map[string]string) error {
	if err := pm.Register(plugin); err != nil {
		return err
	}

	if err := plugin.Init(params); err != nil {
		// 初始化失败，移除已注册的插件
		pm.mu.Lock()
		delete(pm.plugins, plugin.Name())
		pm.mu.Unlock()
		return errors.Mark(errors.Wrapf(err, "插件 %s 初始化失败", plugin.Name()), errors.ErrConfiguration)
	}

	return nil
}

// Bind 绑定插件到事件（实现PluginManager接口）
func (pm *pluginManagerImpl) Bind(binding PluginBinding) error {
	if binding.PluginName == "" {
		return errors.New("插件名称不能为空")
	}
	if binding.Event == "" {
		return errors.New("触发事件不能为空")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[binding.PluginName]; !exists {
		return errors.Mark(errors.Newf("插件 %s 未注册", binding.PluginName), errors.ErrNotFound)
	}

	pm.bindings[binding.Event] = append(pm.bindings[binding.Event], binding)
	return nil
}

// Notify 按过滤规则和绑定关系投递通知（实现Notifier接口）
// 插件错误和panic都转换为失败结果，不会传给调用方
func (pm *pluginManagerImpl) Notify(ctx context.Context, n Notification) []DeliveryResult {
	if n.Timestamp.IsZero() {
		n.Timestamp = pm.now().UTC()
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}

	if ok, reason := pm.filter.Allow(n, pm.now()); !ok {
		pm.log.Debugw("通知被过滤", "event", n.Event, "workflow", n.WorkflowID, "reason", reason)
		return []DeliveryResult{{Success: false, Provider: "all", Message: reason, SentAt: pm.now().UTC()}}
	}

	pm.mu.RLock()
	bindings := make([]PluginBinding, 0, len(pm.bindings[n.Event])+len(pm.bindings[EventAll]))
	bindings = append(bindings, pm.bindings[n.Event]...)
	bindings = append(bindings, pm.bindings[EventAll]...)
	pm.mu.RUnlock()

	if len(bindings) == 0 {
		return nil // 没有绑定，直接返回
	}

	results := make([]DeliveryResult, 0, len(bindings))
	for _, binding := range bindings {
		if binding.Condition != nil && !binding.Condition(n) {
			continue
		}

		pm.mu.RLock()
		plugin, exists := pm.plugins[binding.PluginName]
		pm.mu.RUnlock()
		if !exists {
			continue // 插件已注销，跳过
		}

		result := pm.execute(ctx, plugin, n)
		if !result.Success {
			pm.log.Warnw("通知投递失败", "plugin", plugin.Name(), "event", n.Event, "error", result.Error)
		}
		results = append(results, result)
	}
	return results
}

func (pm *pluginManagerImpl) execute(ctx context.Context, plugin Plugin, n Notification) (result DeliveryResult) {
	defer func() {
		if r := recover(); r != nil {
			result = Failed(plugin.Name(), errors.Newf("plugin panic: %v", r))
		}
	}()
	result = plugin.Execute(ctx, n)
	if result.Provider == "" {
		result.Provider = plugin.Name()
	}
	return result
}

// GetPlugin 获取已注册的插件（实现PluginManager接口）
func (pm *pluginManagerImpl) GetPlugin(name string) (Plugin, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	plugin, exists := pm.plugins[name]
	return plugin, exists
}

// ListPlugins 列出所有已注册的插件（实现PluginManager接口）
func (pm *pluginManagerImpl) ListPlugins() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	names := make([]string, 0, len(pm.plugins))
	for name := range pm.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister 取消注册插件（实现PluginManager接口）
func (pm *pluginManagerImpl) Unregister(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; !exists {
		return errors.Mark(errors.Newf("插件 %s 未注册", name), errors.ErrNotFound)
	}

	delete(pm.plugins, name)

	// 移除所有相关的绑定
	for event := range pm.bindings {
		filtered := make([]PluginBinding, 0, len(pm.bindings[event]))
		for _, binding := range pm.bindings[event] {
			if binding.PluginName != name {
				filtered = append(filtered, binding)
			}
		}
		pm.bindings[event] = filtered
	}

	return nil
}
