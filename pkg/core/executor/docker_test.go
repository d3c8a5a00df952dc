package executor

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notFoundError struct{}

func (notFoundError) Error() string { return "No such image: python:3.11-slim" }
func (notFoundError) NotFound()     {}

// fakeDocker 记录调用的假Docker API
type fakeDocker struct {
	mu sync.Mutex

	exitCode   int64
	stdout     string
	stderr     string
	block      bool // ContainerWait一直不返回
	createErrs []error
	removeErr  error

	config     *container.Config
	hostConfig *container.HostConfig
	script     string
	pulled     []string
	started    int
	stopped    int
	removed    []string
}

func (f *fakeDocker) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return container.CreateResponse{}, err
	}
	f.config = config
	f.hostConfig = hostConfig
	return container.CreateResponse{ID: "c-123"}, nil
}

func (f *fakeDocker) CopyToContainer(_ context.Context, _, _ string, content io.Reader, _ container.CopyToContainerOptions) error {
	tr := tar.NewReader(content)
	if _, err := tr.Next(); err != nil {
		return err
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.script = string(data)
	f.mu.Unlock()
	return nil
}

func (f *fakeDocker) ContainerStart(context.Context, string, container.StartOptions) error {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	return nil
}

func (f *fakeDocker) ContainerWait(ctx context.Context, _ string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.block {
		go func() {
			<-ctx.Done()
			errCh <- ctx.Err()
		}()
		return statusCh, errCh
	}
	statusCh <- container.WaitResponse{StatusCode: f.exitCode}
	return statusCh, errCh
}

func (f *fakeDocker) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	if f.stdout != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout))
	}
	if f.stderr != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr))
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeDocker) ContainerStop(context.Context, string, container.StopOptions) error {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	return nil
}

func (f *fakeDocker) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return f.removeErr
}

func (f *fakeDocker) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	f.pulled = append(f.pulled, ref)
	f.mu.Unlock()
	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func TestDockerBackend_Success(t *testing.T) {
	api := &fakeDocker{
		stdout: "hello\n__TASK_OUTPUTS_START__{\"key\": \"value\"}__TASK_OUTPUTS_END__\n",
	}
	b := NewDockerBackend(api, DefaultOptions())

	result := b.Execute(context.Background(), "print('hello')", []string{"httpx==0.27.0"}, time.Minute, nil)
	b.Cleanup()

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, map[string]any{"key": "value"}, result.TaskOutputs)
	assert.Contains(t, result.Output, "hello")

	// 资源限制与网络隔离
	assert.Equal(t, "python:3.11-slim", api.config.Image)
	assert.Equal(t, container.NetworkMode("none"), api.hostConfig.NetworkMode)
	assert.Equal(t, int64(512*1024*1024), api.hostConfig.Resources.Memory)
	assert.Equal(t, int64(500_000_000), api.hostConfig.Resources.NanoCPUs)
	assert.Contains(t, api.config.Cmd[2], "pip install --no-cache-dir --quiet 'httpx==0.27.0'")
	assert.Contains(t, api.script, "def set_task_output(")
	assert.Equal(t, 1, api.started)
	assert.Equal(t, []string{"c-123"}, api.removed)
}

func TestDockerBackend_NonZeroExit(t *testing.T) {
	api := &fakeDocker{exitCode: 2, stderr: "Traceback...\n"}
	b := NewDockerBackend(api, DefaultOptions())
	defer b.Cleanup()

	result := b.Execute(context.Background(), "raise SystemExit(2)", nil, time.Minute, nil)

	assert.False(t, result.Success)
	assert.Equal(t, "Container exited with code 2", result.ErrorMessage)
	assert.Contains(t, result.Output, "Traceback")
}

func TestDockerBackend_InstallFailure(t *testing.T) {
	api := &fakeDocker{
		exitCode: installFailedExitCode,
		stderr:   "ERROR: No matching distribution found for nosuchpkg\n__INSTALL_FAILED__:nosuchpkg\n",
	}
	b := NewDockerBackend(api, DefaultOptions())
	defer b.Cleanup()

	result := b.Execute(context.Background(), "print(1)", []string{"nosuchpkg"}, time.Minute, nil)

	assert.False(t, result.Success)
	assert.Equal(t, "Failed to install nosuchpkg: ERROR: No matching distribution found for nosuchpkg", result.ErrorMessage)
	assert.True(t, errors.Is(result.Cause, errors.ErrInstall))
}

func TestDockerBackend_TimeoutStopsContainer(t *testing.T) {
	api := &fakeDocker{block: true, stdout: "partial\n"}
	b := NewDockerBackend(api, DefaultOptions())

	result := b.Execute(context.Background(), "import time; time.sleep(60)", nil, 50*time.Millisecond, nil)

	assert.False(t, result.Success)
	assert.Equal(t, "Task execution timed out after 0.05 seconds", result.ErrorMessage)
	assert.Equal(t, "partial\n", result.Output)
	assert.Equal(t, 1, api.stopped)

	b.Cleanup()
	assert.Equal(t, []string{"c-123"}, api.removed)
}

func TestDockerBackend_PullsMissingImage(t *testing.T) {
	api := &fakeDocker{createErrs: []error{notFoundError{}}}
	b := NewDockerBackend(api, DefaultOptions())
	defer b.Cleanup()

	result := b.Execute(context.Background(), "print(1)", nil, time.Minute, nil)

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, []string{"python:3.11-slim"}, api.pulled)
}

func TestDockerBackend_CleanupIsIdempotentAndSwallowsErrors(t *testing.T) {
	api := &fakeDocker{removeErr: errors.New("No such container: c-123")}
	b := NewDockerBackend(api, DefaultOptions())

	// 未执行时Cleanup为空操作
	b.Cleanup()
	assert.Empty(t, api.removed)

	b.Execute(context.Background(), "print(1)", nil, time.Minute, nil)
	assert.Equal(t, "c-123", b.ContainerID())

	assert.NotPanics(t, func() {
		b.Cleanup()
		b.Cleanup()
	})
	assert.Equal(t, []string{"c-123"}, api.removed)
	assert.Empty(t, b.ContainerID())
}

func TestBuildWrapper(t *testing.T) {
	wrapper := buildWrapper([]string{"pandas>=2", "it's"})

	assert.Contains(t, wrapper, "pip install --no-cache-dir --quiet 'pandas>=2' || { echo __INSTALL_FAILED__:'pandas>=2' >&2; exit 97; }")
	assert.Contains(t, wrapper, `'it'"'"'s'`)
	assert.True(t, strings.HasSuffix(wrapper, "exec python /tmp/task_script.py\n"))
}
