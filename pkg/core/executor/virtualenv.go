package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/pipeline"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const venvScriptName = "task_script.py"

// VirtualenvBackend 每次执行创建独立虚拟环境（对外导出）
type VirtualenvBackend struct {
	opts    Options
	log     *zap.SugaredLogger
	mu      sync.Mutex
	envPath string
}

// NewVirtualenvBackend 创建virtualenv执行器（对外导出）
func NewVirtualenvBackend(opts Options) *VirtualenvBackend {
	return &VirtualenvBackend{
		opts: opts.withDefaults(),
		log:  logger.Named("executor.virtualenv"),
	}
}

// Name 实现Backend接口
func (b *VirtualenvBackend) Name() string {
	return NameVirtualenv
}

// EnvPath 当前虚拟环境目录，未创建或已清理时为空
func (b *VirtualenvBackend) EnvPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.envPath
}

// Execute 实现Backend接口
func (b *VirtualenvBackend) Execute(ctx context.Context, script string, requirements []string, timeout time.Duration, previous []pipeline.UpstreamOutput) *types.ExecutionResult {
	start := time.Now()

	envPath, err := b.createEnv(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cancelledResult(start, "")
		}
		return failedResult(start, err, "")
	}
	python := venvPython(envPath)
	env := venvEnviron(envPath)

	// 校验SSL支持，缺失时pip无法访问HTTPS源
	check := runCommand(ctx, b.opts.InstallTimeout, envPath, env, python, "-c", "import ssl")
	if check.Cancelled {
		return cancelledResult(start, "")
	}
	if !check.ok() {
		detail := strings.TrimSpace(check.Stderr)
		if check.Err != nil {
			detail = check.Err.Error()
		}
		return &types.ExecutionResult{
			Success:       false,
			ErrorMessage:  fmt.Sprintf("Virtual environment is missing SSL support: %s", detail),
			ExecutionTime: elapsed(start),
			TaskOutputs:   map[string]any{},
			Cause:         errors.ErrInfrastructure,
		}
	}

	installs := append(cleanRequirements(b.opts.Virtualenv.BaselinePackages), cleanRequirements(requirements)...)
	if len(installs) > 0 {
		b.log.Infow("安装依赖", "env", envPath, "packages", installs)
		if pkg, res, ok := installRequirements(ctx, b.opts, envPath, env, python, installs); !ok {
			b.log.Warnw("依赖安装失败", "package", pkg, "stderr", res.Stderr)
			return installResult(start, pkg, res)
		}
	}

	prepared, err := b.opts.Bridge.Prepare(script, previous)
	if err != nil {
		return failedResult(start, err, "")
	}
	scriptPath := filepath.Join(envPath, venvScriptName)
	if err := os.WriteFile(scriptPath, []byte(prepared), 0o600); err != nil {
		return failedResult(start, errors.Wrap(err, "写入脚本失败"), "")
	}

	res := runCommand(ctx, timeout, envPath, env, python, scriptPath)
	switch {
	case res.Cancelled:
		return cancelledResult(start, res.Stdout)
	case res.TimedOut:
		b.log.Warnw("脚本执行超时", "env", envPath, "timeout", timeout)
		b.Cleanup()
		return timeoutResult(start, timeout, res.Stdout)
	case res.Err != nil:
		return failedResult(start, res.Err, res.Stdout)
	}
	return scriptResult(start, b.opts, b.opts.Bridge, res.Stdout, res.Stderr, res.Stdout, res.ExitCode, "")
}

// Cleanup 实现Backend接口，删除虚拟环境目录
func (b *VirtualenvBackend) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.envPath == "" {
		return
	}
	if err := os.RemoveAll(b.envPath); err != nil {
		b.log.Warnw("删除虚拟环境失败", "env", b.envPath, "error", err)
	}
	b.envPath = ""
}

// createEnv 在基础目录下创建唯一命名的虚拟环境
func (b *VirtualenvBackend) createEnv(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.opts.Virtualenv.BasePath, 0o755); err != nil {
		return "", errors.Wrapf(err, "创建虚拟环境目录 %s 失败", b.opts.Virtualenv.BasePath)
	}
	envPath := filepath.Join(
		b.opts.Virtualenv.BasePath,
		fmt.Sprintf("venv_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
	)

	// 先记录路径，创建中途失败也能被Cleanup删除
	b.mu.Lock()
	b.envPath = envPath
	b.mu.Unlock()

	res := runCommand(ctx, b.opts.InstallTimeout, "", os.Environ(), b.opts.PythonBin, "-m", "venv", envPath)
	if !res.ok() {
		detail := strings.TrimSpace(res.Stderr)
		switch {
		case res.TimedOut:
			detail = "timed out"
		case res.Err != nil:
			detail = res.Err.Error()
		}
		return "", errors.Newf("failed to create virtual environment: %s", detail)
	}
	b.log.Debugw("虚拟环境已创建", "env", envPath)
	return envPath, nil
}

func venvPython(envPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(envPath, "Scripts", "python.exe")
	}
	return filepath.Join(envPath, "bin", "python")
}

// venvEnviron 复制当前环境变量并激活虚拟环境
func venvEnviron(envPath string) []string {
	binDir := filepath.Dir(venvPython(envPath))
	env := make([]string, 0, len(os.Environ())+2)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "PYTHONHOME=") || strings.HasPrefix(kv, "VIRTUAL_ENV=") {
			continue
		}
		if strings.HasPrefix(kv, "PATH=") {
			kv = "PATH=" + binDir + string(os.PathListSeparator) + strings.TrimPrefix(kv, "PATH=")
		}
		env = append(env, kv)
	}
	return append(env, "VIRTUAL_ENV="+envPath)
}

var _ Backend = (*VirtualenvBackend)(nil)
