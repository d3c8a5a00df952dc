package executor

import (
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/pipeline"
)

// DefaultPreinstalledPackages 运行环境中已预装的包，direct执行器跳过安装
var DefaultPreinstalledPackages = []string{
	"requests", "urllib3", "certifi", "python-dateutil", "pytz", "pyyaml",
	"pandas", "numpy", "openpyxl", "beautifulsoup4", "lxml",
}

// DefaultBaselinePackages 虚拟环境创建后固定安装的基础版本
var DefaultBaselinePackages = []string{
	"pip==24.0", "setuptools==69.5.1", "wheel==0.43.0",
}

// Options 执行器公共配置（对外导出）
type Options struct {
	PythonBin            string          // Python解释器，默认python3
	InstallTimeout       time.Duration   // 单个依赖安装超时，默认300s
	PreinstalledPackages []string        // direct执行器跳过的包
	Bridge               pipeline.Bridge // 数据通道，默认SentinelBridge
	// OutputsOverrideExitCode 解析到结构化输出时，非0退出码也视为成功
	OutputsOverrideExitCode bool

	Virtualenv VirtualenvOptions
	Docker     DockerOptions
}

// VirtualenvOptions 虚拟环境执行器配置
type VirtualenvOptions struct {
	BasePath         string
	BaselinePackages []string
}

// DockerOptions 容器执行器配置
type DockerOptions struct {
	Image       string
	MemoryMB    int64
	CPULimit    float64
	NetworkMode string // none/bridge/自定义网络
}

// DefaultOptions 返回默认配置（对外导出）
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.PythonBin == "" {
		o.PythonBin = "python3"
	}
	if o.InstallTimeout <= 0 {
		o.InstallTimeout = 300 * time.Second
	}
	if o.PreinstalledPackages == nil {
		o.PreinstalledPackages = DefaultPreinstalledPackages
	}
	if o.Bridge == nil {
		o.Bridge = pipeline.NewSentinelBridge()
	}
	if o.Virtualenv.BasePath == "" {
		o.Virtualenv.BasePath = "/tmp/task_venvs"
	}
	if o.Virtualenv.BaselinePackages == nil {
		o.Virtualenv.BaselinePackages = DefaultBaselinePackages
	}
	if o.Docker.Image == "" {
		o.Docker.Image = "python:3.11-slim"
	}
	if o.Docker.MemoryMB <= 0 {
		o.Docker.MemoryMB = 512
	}
	if o.Docker.CPULimit <= 0 {
		o.Docker.CPULimit = 0.5
	}
	if o.Docker.NetworkMode == "" {
		o.Docker.NetworkMode = "none"
	}
	return o
}
