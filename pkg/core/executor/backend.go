package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/pipeline"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
)

// 内置执行器名称
const (
	NameDirect     = "direct"
	NameVirtualenv = "virtualenv"
	NameDocker     = "docker"
)

// Backend 隔离执行后端（对外导出）
// 每次Task运行独占一个实例，运行结束后必须调用Cleanup。
type Backend interface {
	// Name 执行器名称
	Name() string
	// Execute 安装依赖并执行脚本，所有失败都体现在返回结果中
	Execute(ctx context.Context, script string, requirements []string, timeout time.Duration, previous []pipeline.UpstreamOutput) *types.ExecutionResult
	// Cleanup 释放资源，幂等，可在失败的Execute之后多次调用
	Cleanup()
}

// Factory 执行器构造函数
type Factory func() (Backend, error)

// Registry 执行器注册表（对外导出）
// 由调用方构造并注入Runner，不使用进程级全局变量
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry 创建空注册表（对外导出）
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry 创建注册了 direct/virtualenv/docker 的注册表（对外导出）
func NewDefaultRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	r := NewRegistry()
	table := map[string]Factory{
		NameDirect: func() (Backend, error) {
			return NewProcessBackend(opts), nil
		},
		NameVirtualenv: func() (Backend, error) {
			return NewVirtualenvBackend(opts), nil
		},
		NameDocker: dockerFactory(opts),
	}
	for name, factory := range table {
		// 内置名称不会重复
		_ = r.Register(name, factory)
	}
	return r
}

// Register 注册执行器，名称重复返回错误
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.Configurationf("执行器名称不能为空")
	}
	if factory == nil {
		return errors.Configurationf("执行器 %s 的构造函数不能为空", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Configurationf("执行器 %s 已注册", name)
	}
	r.factories[name] = factory
	return nil
}

// Create 按名称创建执行器实例，未知名称返回ErrConfiguration
func (r *Registry) Create(name string) (Backend, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WithHintf(
			errors.Configurationf("unknown executor: %s", name),
			"available executors: %v", r.Names(),
		)
	}
	return factory()
}

// Has 是否已注册
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// Names 返回已注册的执行器名称（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
