package executor

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/pipeline"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

const (
	containerScriptDir  = "/tmp"
	containerScriptName = "task_script.py"
	// installFailedExitCode 包装脚本安装依赖失败时的退出码
	installFailedExitCode = 97
	installFailedMarker   = "__INSTALL_FAILED__:"
	containerStopSeconds  = 10
	cleanupTimeout        = 30 * time.Second
)

// ContainerAPI DockerBackend用到的Docker Engine API子集（对外导出）
// *client.Client 满足该接口，测试中可替换为假实现
type ContainerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// DockerBackend 每次执行启动一个短生命周期容器（对外导出）
// 默认禁用网络，限制内存和CPU
type DockerBackend struct {
	api         ContainerAPI
	opts        Options
	log         *zap.SugaredLogger
	mu          sync.Mutex
	containerID string
}

// NewDockerBackend 创建docker执行器（对外导出）
func NewDockerBackend(api ContainerAPI, opts Options) *DockerBackend {
	return &DockerBackend{
		api:  api,
		opts: opts.withDefaults(),
		log:  logger.Named("executor.docker"),
	}
}

// dockerFactory 共享一个Docker客户端，首次创建执行器时初始化
func dockerFactory(opts Options) Factory {
	var (
		once   sync.Once
		cli    *client.Client
		cliErr error
	)
	return func() (Backend, error) {
		once.Do(func() {
			cli, cliErr = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		})
		if cliErr != nil {
			return nil, errors.Mark(errors.Wrap(cliErr, "创建Docker客户端失败"), errors.ErrConfiguration)
		}
		return NewDockerBackend(cli, opts), nil
	}
}

// Name 实现Backend接口
func (b *DockerBackend) Name() string {
	return NameDocker
}

// ContainerID 当前容器ID，未创建或已清理时为空
func (b *DockerBackend) ContainerID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.containerID
}

// Execute 实现Backend接口
func (b *DockerBackend) Execute(ctx context.Context, script string, requirements []string, timeout time.Duration, previous []pipeline.UpstreamOutput) *types.ExecutionResult {
	start := time.Now()

	prepared, err := b.opts.Bridge.Prepare(script, previous)
	if err != nil {
		return failedResult(start, err, "")
	}

	id, err := b.createContainer(ctx, cleanRequirements(requirements))
	if err != nil {
		if ctx.Err() != nil {
			return cancelledResult(start, "")
		}
		return failedResult(start, err, "")
	}

	archive, err := tarFile(containerScriptName, []byte(prepared))
	if err != nil {
		return failedResult(start, err, "")
	}
	if err := b.api.CopyToContainer(ctx, id, containerScriptDir, archive, container.CopyToContainerOptions{}); err != nil {
		return failedResult(start, errors.Wrap(err, "复制脚本到容器失败"), "")
	}
	if err := b.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return failedResult(start, errors.Wrap(err, "启动容器失败"), "")
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exitCode, waitErr := b.wait(waitCtx, id)
	timedOut := waitErr != nil && ctx.Err() == nil && waitCtx.Err() == context.DeadlineExceeded
	cancelled := waitErr != nil && ctx.Err() != nil
	if timedOut || cancelled {
		b.stop(id)
	}

	stdout, stderr, logErr := b.logs(id)
	if logErr != nil {
		b.log.Warnw("读取容器日志失败", "container", id, "error", logErr)
	}
	output := combineOutput(stdout, stderr)

	switch {
	case cancelled:
		return cancelledResult(start, output)
	case timedOut:
		b.log.Warnw("容器执行超时", "container", id, "timeout", timeout)
		return timeoutResult(start, timeout, output)
	case waitErr != nil:
		return failedResult(start, waitErr, output)
	}

	if exitCode == installFailedExitCode {
		if pkg, ok := failedPackage(stderr); ok {
			return installFailedResult(start, pkg, stripInstallMarker(stderr), output)
		}
	}
	return scriptResult(start, b.opts, b.opts.Bridge, stdout, stderr, output, exitCode,
		fmt.Sprintf("Container exited with code %d", exitCode))
}

// Cleanup 实现Backend接口，强制删除容器并忽略错误
func (b *DockerBackend) Cleanup() {
	b.mu.Lock()
	id := b.containerID
	b.containerID = ""
	b.mu.Unlock()

	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := b.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		b.log.Debugw("删除容器失败（已忽略）", "container", id, "error", err)
	}
}

func (b *DockerBackend) createContainer(ctx context.Context, requirements []string) (string, error) {
	name := "task_executor_" + uuid.NewString()[:8]
	config := &container.Config{
		Image:      b.opts.Docker.Image,
		Cmd:        []string{"sh", "-c", buildWrapper(requirements)},
		Env:        []string{"PYTHONUNBUFFERED=1"},
		WorkingDir: containerScriptDir,
		Tty:        false,
		Labels:     map[string]string{"pipeline-engine.role": "task-executor"},
	}
	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(b.opts.Docker.NetworkMode),
		Resources: container.Resources{
			Memory:   b.opts.Docker.MemoryMB * 1024 * 1024,
			NanoCPUs: int64(b.opts.Docker.CPULimit * 1e9),
		},
	}

	resp, err := b.api.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil && client.IsErrNotFound(err) {
		b.log.Infow("镜像不存在，开始拉取", "image", b.opts.Docker.Image)
		if pullErr := b.pullImage(ctx); pullErr != nil {
			return "", pullErr
		}
		resp, err = b.api.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	}
	if err != nil {
		return "", errors.Wrapf(err, "创建容器 %s 失败", name)
	}

	b.mu.Lock()
	b.containerID = resp.ID
	b.mu.Unlock()
	b.log.Debugw("容器已创建", "container", resp.ID, "name", name)
	return resp.ID, nil
}

func (b *DockerBackend) pullImage(ctx context.Context) error {
	rc, err := b.api.ImagePull(ctx, b.opts.Docker.Image, image.PullOptions{})
	if err != nil {
		return errors.Wrapf(err, "拉取镜像 %s 失败", b.opts.Docker.Image)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// wait 等待容器退出，返回退出码
func (b *DockerBackend) wait(ctx context.Context, id string) (int, error) {
	statusCh, errCh := b.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return int(status.StatusCode), errors.Newf("wait container: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case err := <-errCh:
		return -1, err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (b *DockerBackend) stop(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	timeout := containerStopSeconds
	if err := b.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		b.log.Debugw("停止容器失败", "container", id, "error", err)
	}
}

// logs 读取容器stdout/stderr（非TTY模式需要stdcopy分流）
func (b *DockerBackend) logs(id string) (string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	rc, err := b.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return stdout.String(), stderr.String(), err
	}
	return stdout.String(), stderr.String(), nil
}

// buildWrapper 生成容器内执行的shell脚本：逐个安装依赖后运行Task脚本
func buildWrapper(requirements []string) string {
	var sb strings.Builder
	for _, pkg := range requirements {
		quoted := shellQuote(pkg)
		fmt.Fprintf(&sb, "pip install --no-cache-dir --quiet %s || { echo %s%s >&2; exit %d; }\n",
			quoted, installFailedMarker, quoted, installFailedExitCode)
	}
	fmt.Fprintf(&sb, "exec python %s/%s\n", containerScriptDir, containerScriptName)
	return sb.String()
}

// shellQuote 单引号转义
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// failedPackage 从stderr中找出安装失败的包名
func failedPackage(stderr string) (string, bool) {
	idx := strings.LastIndex(stderr, installFailedMarker)
	if idx < 0 {
		return "", false
	}
	rest := stderr[idx+len(installFailedMarker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	pkg := strings.TrimSpace(rest)
	return pkg, pkg != ""
}

func stripInstallMarker(stderr string) string {
	lines := strings.Split(stderr, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), installFailedMarker) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func combineOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" || strings.HasSuffix(stdout, "\n") {
		return stdout + stderr
	}
	return stdout + "\n" + stderr
}

// tarFile 将单个文件打包成tar流，用于CopyToContainer
func tarFile(name string, data []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return nil, errors.Wrap(err, "写入tar头失败")
	}
	if _, err := tw.Write(data); err != nil {
		return nil, errors.Wrap(err, "写入tar内容失败")
	}
	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "关闭tar失败")
	}
	return &buf, nil
}

var (
	_ Backend      = (*DockerBackend)(nil)
	_ ContainerAPI = (*client.Client)(nil)
)
