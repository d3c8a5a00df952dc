package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/pipeline"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
)

// commandResult 子进程执行结果
type commandResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Cancelled bool
	Err       error // 进程无法启动等非退出码错误
}

func (r commandResult) ok() bool {
	return !r.TimedOut && !r.Cancelled && r.Err == nil && r.ExitCode == 0
}

// runCommand 在独立进程组中执行命令，超时或取消时杀掉整个进程组
func runCommand(ctx context.Context, timeout time.Duration, dir string, env []string, name string, args ...string) commandResult {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second
	setProcessGroup(cmd)

	err := cmd.Run()
	res := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}

	switch {
	case ctx.Err() != nil:
		res.Cancelled = true
	case runCtx.Err() == context.DeadlineExceeded:
		res.TimedOut = true
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.Err = err
		}
	default:
		res.ExitCode = 0
	}
	return res
}

// installRequirements 逐个安装依赖，返回第一个失败的包及其结果
func installRequirements(ctx context.Context, opts Options, dir string, env []string, python string, requirements []string) (string, commandResult, bool) {
	for _, pkg := range requirements {
		res := runCommand(ctx, opts.InstallTimeout, dir, env, python, "-m", "pip", "install", pkg, "--no-cache-dir")
		if !res.ok() {
			return pkg, res, false
		}
	}
	return "", commandResult{ExitCode: 0}, true
}

// formatSeconds 以秒为单位格式化时长，整数秒不带小数
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func elapsed(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func timeoutResult(start time.Time, timeout time.Duration, output string) *types.ExecutionResult {
	return &types.ExecutionResult{
		Success:       false,
		Output:        output,
		ErrorMessage:  fmt.Sprintf("Task execution timed out after %s seconds", formatSeconds(timeout)),
		ExecutionTime: elapsed(start),
		TaskOutputs:   map[string]any{},
		Cause:         errors.ErrTimeout,
	}
}

func cancelledResult(start time.Time, output string) *types.ExecutionResult {
	return &types.ExecutionResult{
		Success:       false,
		Output:        output,
		ErrorMessage:  "Task execution cancelled",
		ExecutionTime: elapsed(start),
		TaskOutputs:   map[string]any{},
		Cause:         context.Canceled,
	}
}

func failedResult(start time.Time, err error, output string) *types.ExecutionResult {
	return &types.ExecutionResult{
		Success:       false,
		Output:        output,
		ErrorMessage:  fmt.Sprintf("Execution failed: %v", err),
		ExecutionTime: elapsed(start),
		TaskOutputs:   map[string]any{},
		Cause:         errors.Mark(err, errors.ErrInfrastructure),
	}
}

func installFailedResult(start time.Time, pkg string, detail string, output string) *types.ExecutionResult {
	return &types.ExecutionResult{
		Success:       false,
		Output:        output,
		ErrorMessage:  fmt.Sprintf("Failed to install %s: %s", pkg, strings.TrimSpace(detail)),
		ExecutionTime: elapsed(start),
		TaskOutputs:   map[string]any{},
		Cause:         errors.ErrInstall,
	}
}

// installResult 将安装失败的命令结果转换为执行结果
func installResult(start time.Time, pkg string, res commandResult) *types.ExecutionResult {
	switch {
	case res.Cancelled:
		return cancelledResult(start, res.Stdout)
	case res.TimedOut:
		return installFailedResult(start, pkg, "install timed out", res.Stdout)
	case res.Err != nil:
		return installFailedResult(start, pkg, res.Err.Error(), res.Stdout)
	default:
		return installFailedResult(start, pkg, res.Stderr, res.Stdout)
	}
}

// scriptResult 根据退出码和结构化输出生成最终结果
func scriptResult(start time.Time, opts Options, bridge pipeline.Bridge, stdout, stderr, output string, exitCode int, exitMessage string) *types.ExecutionResult {
	outputs := bridge.Extract(stdout)
	result := &types.ExecutionResult{
		Output:        output,
		ExecutionTime: elapsed(start),
		ExitCode:      types.IntPtr(exitCode),
		TaskOutputs:   outputs,
	}

	switch {
	case exitCode == 0:
		result.Success = true
	case len(outputs) > 0 && opts.OutputsOverrideExitCode:
		result.Success = true
	default:
		result.Success = false
		switch msg := strings.TrimSpace(stderr); {
		case exitMessage != "":
			result.ErrorMessage = exitMessage
		case msg != "":
			result.ErrorMessage = msg
		default:
			result.ErrorMessage = fmt.Sprintf("Script exited with code %d", exitCode)
		}
	}
	return result
}
