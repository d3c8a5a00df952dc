package engine

import (
	"github.com/LENAX/pipeline-engine/internal/storage"
	"github.com/LENAX/pipeline-engine/pkg/config"
	"github.com/LENAX/pipeline-engine/pkg/core/executor"
	"github.com/LENAX/pipeline-engine/pkg/core/queue"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/plugin"
	pkgstorage "github.com/LENAX/pipeline-engine/pkg/storage"
)

// EngineBuilder 引擎构建器（链式调用）
// 未指定的组件按配置创建：存储、执行器注册表、工作队列、通知插件
type EngineBuilder struct {
	cfg            *config.EngineConfig
	store          pkgstorage.Store
	backends       Backends
	queue          queue.WorkQueue
	plugins        []plugin.Plugin
	pluginBindings []plugin.PluginBinding
	withTicker     bool
	err            error
}

// NewEngineBuilder 创建引擎构建器（入口）
// cfg为nil时使用默认配置
func NewEngineBuilder(cfg *config.EngineConfig) *EngineBuilder {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &EngineBuilder{cfg: cfg}
}

// WithStore 使用已创建的存储，Stop时不会关闭它（链式）
func (b *EngineBuilder) WithStore(store pkgstorage.Store) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if store == nil {
		b.err = errors.New("store cannot be nil")
		return b
	}
	b.store = store
	return b
}

// WithBackends 使用自定义执行器注册表（链式）
func (b *EngineBuilder) WithBackends(backends Backends) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if backends == nil {
		b.err = errors.New("backends cannot be nil")
		return b
	}
	b.backends = backends
	return b
}

// WithQueue 使用自定义工作队列（链式）
func (b *EngineBuilder) WithQueue(wq queue.WorkQueue) *EngineBuilder {
	if b.err != nil {
		return b
	}
	b.queue = wq
	return b
}

// WithPlugin 注册已初始化的插件（链式）
func (b *EngineBuilder) WithPlugin(p plugin.Plugin) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if p == nil {
		b.err = errors.New("plugin cannot be nil")
		return b
	}
	if p.Name() == "" {
		b.err = errors.New("plugin name cannot be empty")
		return b
	}
	b.plugins = append(b.plugins, p)
	return b
}

// WithPluginBinding 绑定插件到事件（链式）
func (b *EngineBuilder) WithPluginBinding(binding plugin.PluginBinding) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if binding.PluginName == "" {
		b.err = errors.New("plugin name cannot be empty")
		return b
	}
	if binding.Event == "" {
		b.err = errors.New("trigger event cannot be empty")
		return b
	}
	b.pluginBindings = append(b.pluginBindings, binding)
	return b
}

// WithTicker 启动后运行定时调度和过期清理（链式）
// 受 scheduler.enabled 控制
func (b *EngineBuilder) WithTicker() *EngineBuilder {
	b.withTicker = true
	return b
}

// Build 构建引擎实例（最终步骤）
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}

	// 1. 校验配置
	if err := b.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate engine config failed")
	}
	pe := b.cfg.PipelineEngine

	// 2. 初始化存储层
	var closers []func() error
	store := b.store
	if store == nil {
		created, err := storage.NewStore(b.cfg.GetDatabaseType(), b.cfg.GetDatabaseDSN(), b.cfg.PoolOptions())
		if err != nil {
			return nil, errors.Wrap(err, "init storage failed")
		}
		store = created
		closers = append(closers, created.Close)
	}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	// 3. 执行器与工作队列
	backends := b.backends
	if backends == nil {
		backends = executor.NewDefaultRegistry(b.cfg.ExecutorOptions())
	}
	if !backends.Has(pe.Execution.DefaultExecutor) {
		closeAll()
		return nil, errors.WithHintf(
			errors.Configurationf("unknown executor: %s", pe.Execution.DefaultExecutor),
			"available executors: %v", backends.Names())
	}
	wq := b.queue
	if wq == nil {
		wq = queue.NewChainQueue(b.cfg.GetWorkerConcurrency())
	}

	// 4. 通知插件
	manager, eventBus, err := b.buildPlugins()
	if err != nil {
		closeAll()
		return nil, err
	}

	eng := NewEngine(store, wq, backends, plugin.Notifiers{plugin.Direct(eventBus), manager}, Options{
		DefaultExecutor: pe.Execution.DefaultExecutor,
		TaskTimeout:     b.cfg.GetDefaultTaskTimeout(),
		RetryInterval:   pe.Scheduler.RetryInterval,
	})
	eng.plugins = manager
	eng.eventBus = eventBus
	eng.closers = closers
	eng.cleaner = NewCleaner(store, pe.Cleanup.RetentionDays)
	if b.withTicker && b.cfg.SchedulerEnabled() {
		eng.ticker = NewTicker(eng, eng.cleaner, pe.Scheduler.PollInterval, pe.Cleanup.Interval)
	}
	return eng, nil
}

// buildPlugins 按配置创建插件管理器，事件总线始终注册且不受过滤规则影响
func (b *EngineBuilder) buildPlugins() (plugin.PluginManager, *plugin.EventBusPlugin, error) {
	notifications := b.cfg.PipelineEngine.Notifications
	manager := plugin.NewPluginManager(b.cfg.NotificationFilter())

	for _, pc := range notifications.Plugins {
		if !pc.IsEnabled() {
			continue
		}
		var p plugin.Plugin
		switch pc.Type {
		case config.PluginTypeEmail:
			p = plugin.NewEmailPlugin()
		case config.PluginTypeWebhook:
			p = plugin.NewWebhookPlugin()
		case config.PluginTypeLog:
			p = plugin.NewLogPlugin()
		default:
			return nil, nil, errors.Configurationf("unsupported notification plugin: %s", pc.Type)
		}
		if err := manager.RegisterWithInit(p, pc.Params); err != nil {
			return nil, nil, errors.Mark(errors.Wrapf(err, "init %s plugin failed", pc.Type), errors.ErrConfiguration)
		}
		events := pc.Events
		if len(events) == 0 {
			events = []string{string(plugin.EventAll)}
		}
		for _, event := range events {
			if err := manager.Bind(plugin.PluginBinding{PluginName: p.Name(), Event: plugin.Event(event)}); err != nil {
				return nil, nil, err
			}
		}
	}

	for _, p := range b.plugins {
		if err := manager.Register(p); err != nil {
			return nil, nil, errors.Wrapf(err, "register plugin %s failed", p.Name())
		}
	}
	for _, binding := range b.pluginBindings {
		if err := manager.Bind(binding); err != nil {
			return nil, nil, errors.Wrapf(err, "bind plugin %s failed", binding.PluginName)
		}
	}

	return manager, plugin.NewEventBusPlugin(nil), nil
}
