package executor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/pipeline"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"go.uber.org/zap"
)

// ProcessBackend 在当前Python运行时中直接执行脚本（对外导出）
// 适合已预装常用依赖的镜像内部署
type ProcessBackend struct {
	opts       Options
	log        *zap.SugaredLogger
	mu         sync.Mutex
	scriptPath string
}

// NewProcessBackend 创建direct执行器（对外导出）
func NewProcessBackend(opts Options) *ProcessBackend {
	return &ProcessBackend{
		opts: opts.withDefaults(),
		log:  logger.Named("executor.direct"),
	}
}

// Name 实现Backend接口
func (b *ProcessBackend) Name() string {
	return NameDirect
}

// Execute 实现Backend接口
func (b *ProcessBackend) Execute(ctx context.Context, script string, requirements []string, timeout time.Duration, previous []pipeline.UpstreamOutput) *types.ExecutionResult {
	start := time.Now()
	env := os.Environ()

	toInstall := FilterPreinstalled(requirements, b.opts.PreinstalledPackages)
	if len(toInstall) > 0 {
		b.log.Infow("安装依赖", "packages", toInstall)
		if pkg, res, ok := installRequirements(ctx, b.opts, "", env, b.opts.PythonBin, toInstall); !ok {
			b.log.Warnw("依赖安装失败", "package", pkg, "stderr", res.Stderr)
			return installResult(start, pkg, res)
		}
	}

	prepared, err := b.opts.Bridge.Prepare(script, previous)
	if err != nil {
		return failedResult(start, err, "")
	}

	path, err := b.writeScript(prepared)
	if err != nil {
		return failedResult(start, err, "")
	}
	defer b.removeScript()

	res := runCommand(ctx, timeout, "", env, b.opts.PythonBin, path)
	switch {
	case res.Cancelled:
		return cancelledResult(start, res.Stdout)
	case res.TimedOut:
		b.log.Warnw("脚本执行超时", "timeout", timeout)
		return timeoutResult(start, timeout, res.Stdout)
	case res.Err != nil:
		return failedResult(start, res.Err, res.Stdout)
	}
	return scriptResult(start, b.opts, b.opts.Bridge, res.Stdout, res.Stderr, res.Stdout, res.ExitCode, "")
}

// Cleanup 实现Backend接口，删除残留的临时脚本
func (b *ProcessBackend) Cleanup() {
	b.removeScript()
}

func (b *ProcessBackend) writeScript(content string) (string, error) {
	f, err := os.CreateTemp("", "task_*.py")
	if err != nil {
		return "", errors.Wrap(err, "创建临时脚本失败")
	}
	b.mu.Lock()
	b.scriptPath = f.Name()
	b.mu.Unlock()

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", errors.Wrap(err, "写入临时脚本失败")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "关闭临时脚本失败")
	}
	return f.Name(), nil
}

func (b *ProcessBackend) removeScript() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scriptPath == "" {
		return
	}
	if err := os.Remove(b.scriptPath); err != nil && !os.IsNotExist(err) {
		b.log.Warnw("删除临时脚本失败", "path", b.scriptPath, "error", err)
	}
	b.scriptPath = ""
}

var _ Backend = (*ProcessBackend)(nil)
