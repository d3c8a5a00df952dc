package config

import (
	"time"
)

// EngineConfig 引擎框架配置（对外导出）
type EngineConfig struct {
	PipelineEngine struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			LogJSON      bool   `yaml:"log_json"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
		} `yaml:"storage"`
		Execution struct {
			DefaultExecutor         string        `yaml:"default_executor"`
			DefaultTaskTimeout      time.Duration `yaml:"default_task_timeout"`
			WorkerConcurrency       int           `yaml:"worker_concurrency"`
			InstallTimeout          time.Duration `yaml:"install_timeout"`
			PythonBin               string        `yaml:"python_bin"`
			PreinstalledPackages    []string      `yaml:"preinstalled_packages"`
			OutputsOverrideExitCode bool          `yaml:"outputs_override_exit_code"`
			Virtualenv              struct {
				BasePath         string   `yaml:"base_path"`
				BaselinePackages []string `yaml:"baseline_packages"`
			} `yaml:"virtualenv"`
			Docker struct {
				Image       string  `yaml:"image"`
				MemoryMB    int64   `yaml:"memory_mb"`
				CPULimit    float64 `yaml:"cpu_limit"`
				NetworkMode string  `yaml:"network_mode"`
			} `yaml:"docker"`
		} `yaml:"execution"`
		Scheduler struct {
			Enabled       *bool         `yaml:"enabled"`
			PollInterval  time.Duration `yaml:"poll_interval"`
			RetryInterval time.Duration `yaml:"retry_interval"`
		} `yaml:"scheduler"`
		Cleanup struct {
			RetentionDays int           `yaml:"retention_days"`
			Interval      time.Duration `yaml:"interval"`
		} `yaml:"cleanup"`
		API struct {
			Host         string        `yaml:"host"`
			Port         int           `yaml:"port"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
		} `yaml:"api"`
		Notifications NotificationConfig `yaml:"notifications"`
	} `yaml:"pipeline-engine"`
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	MinPriority string   `yaml:"min_priority"`
	Events      []string `yaml:"events"`
	QuietHours  struct {
		Start    string `yaml:"start"`
		End      string `yaml:"end"`
		Timezone string `yaml:"timezone"`
	} `yaml:"quiet_hours"`
	Plugins []PluginConfig `yaml:"plugins"`
}

// PluginConfig 单个通知插件的配置
// Type: email/webhook/log；Events为空时绑定全部事件
type PluginConfig struct {
	Type    string            `yaml:"type"`
	Enabled *bool             `yaml:"enabled"`
	Events  []string          `yaml:"events"`
	Params  map[string]string `yaml:"params"`
}

// IsEnabled 未显式关闭即视为开启
func (p PluginConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.PipelineEngine.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.PipelineEngine.Storage.Database.DSN
}

// GetWorkerConcurrency 获取Worker并发数
func (c *EngineConfig) GetWorkerConcurrency() int {
	concurrency := c.PipelineEngine.Execution.WorkerConcurrency
	if concurrency <= 0 {
		return 10 // 默认值
	}
	return concurrency
}

// GetDefaultTaskTimeout 获取默认任务超时时间
func (c *EngineConfig) GetDefaultTaskTimeout() time.Duration {
	timeout := c.PipelineEngine.Execution.DefaultTaskTimeout
	if timeout <= 0 {
		return time.Hour // 默认值
	}
	return timeout
}

// SchedulerEnabled 是否启动定时调度，默认开启
func (c *EngineConfig) SchedulerEnabled() bool {
	enabled := c.PipelineEngine.Scheduler.Enabled
	return enabled == nil || *enabled
}

// DefaultConfig 返回填充了默认值的配置（对外导出）
func DefaultConfig() *EngineConfig {
	cfg := &EngineConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	pe := &c.PipelineEngine

	// General默认值
	if pe.General.InstanceName == "" {
		pe.General.InstanceName = "pipeline-engine"
	}
	if pe.General.LogLevel == "" {
		pe.General.LogLevel = "info"
	}
	if pe.General.Env == "" {
		pe.General.Env = "dev"
	}

	// Database默认值
	if pe.Storage.Database.Type == "" {
		pe.Storage.Database.Type = "sqlite"
	}
	if pe.Storage.Database.DSN == "" && pe.Storage.Database.Type == "sqlite" {
		pe.Storage.Database.DSN = "./pipeline_engine.db"
	}
	if pe.Storage.Database.MaxOpenConns <= 0 {
		pe.Storage.Database.MaxOpenConns = 10
	}
	if pe.Storage.Database.MaxIdleConns <= 0 {
		pe.Storage.Database.MaxIdleConns = 5
	}
	if pe.Storage.Database.ConnMaxLifetime <= 0 {
		pe.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if pe.Storage.Database.ConnMaxIdleTime <= 0 {
		pe.Storage.Database.ConnMaxIdleTime = time.Hour
	}

	// Execution默认值
	if pe.Execution.DefaultExecutor == "" {
		pe.Execution.DefaultExecutor = "virtualenv"
	}
	if pe.Execution.DefaultTaskTimeout <= 0 {
		pe.Execution.DefaultTaskTimeout = time.Hour
	}
	if pe.Execution.WorkerConcurrency <= 0 {
		pe.Execution.WorkerConcurrency = 10
	}
	if pe.Execution.InstallTimeout <= 0 {
		pe.Execution.InstallTimeout = 300 * time.Second
	}
	if pe.Execution.PythonBin == "" {
		pe.Execution.PythonBin = "python3"
	}
	if pe.Execution.Virtualenv.BasePath == "" {
		pe.Execution.Virtualenv.BasePath = "/tmp/task_venvs"
	}
	if pe.Execution.Docker.Image == "" {
		pe.Execution.Docker.Image = "python:3.11-slim"
	}
	if pe.Execution.Docker.MemoryMB <= 0 {
		pe.Execution.Docker.MemoryMB = 512
	}
	if pe.Execution.Docker.CPULimit <= 0 {
		pe.Execution.Docker.CPULimit = 0.5
	}
	if pe.Execution.Docker.NetworkMode == "" {
		pe.Execution.Docker.NetworkMode = "none"
	}

	// Scheduler默认值
	if pe.Scheduler.PollInterval <= 0 {
		pe.Scheduler.PollInterval = time.Minute
	}
	if pe.Scheduler.RetryInterval <= 0 {
		pe.Scheduler.RetryInterval = 5 * time.Minute
	}

	// Cleanup默认值
	if pe.Cleanup.RetentionDays == 0 {
		pe.Cleanup.RetentionDays = 7
	}
	if pe.Cleanup.Interval <= 0 {
		pe.Cleanup.Interval = time.Hour
	}

	// API默认值
	if pe.API.Host == "" {
		pe.API.Host = "0.0.0.0"
	}
	if pe.API.Port <= 0 {
		pe.API.Port = 8000
	}
	if pe.API.ReadTimeout <= 0 {
		pe.API.ReadTimeout = 30 * time.Second
	}
	if pe.API.WriteTimeout <= 0 {
		pe.API.WriteTimeout = 30 * time.Second
	}

	// Notifications默认值
	if pe.Notifications.MinPriority == "" {
		pe.Notifications.MinPriority = "low"
	}
	if pe.Notifications.QuietHours.Timezone == "" {
		pe.Notifications.QuietHours.Timezone = "UTC"
	}
}
