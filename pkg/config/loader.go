package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultDotEnvFile 启动时自动加载的环境变量文件
const DefaultDotEnvFile = ".env"

// 覆盖配置文件的环境变量
const (
	EnvDefaultExecutor = "DEFAULT_EXECUTOR"
	EnvTaskTimeout     = "TASK_TIMEOUT" // 秒
	EnvVenvBasePath    = "VENV_BASE_PATH"
	EnvDockerImage     = "DOCKER_IMAGE"
	EnvCleanupDays     = "CLEANUP_DAYS"
	EnvDatabaseType    = "DATABASE_TYPE"
	EnvDatabaseDSN     = "DATABASE_DSN"
)

// LoadDotEnv 加载.env文件，文件不存在时忽略（对外导出）
// 已存在的环境变量不会被覆盖
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultDotEnvFile}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Mark(errors.Wrapf(err, "加载环境变量文件 %s 失败", p), errors.ErrConfiguration)
		}
	}
	return nil
}

// LoadFrameworkConfig 加载引擎配置文件（对外导出）
// 文件中的 ${VAR} 会先用环境变量替换；path为空或文件不存在时使用默认配置。
// 加载顺序：配置文件 -> 环境变量覆盖 -> 默认值
func LoadFrameworkConfig(path string) (*EngineConfig, error) {
	cfg := &EngineConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "解析配置文件 %s 失败", path)
			}
		case os.IsNotExist(err):
			// 使用默认配置
		default:
			return nil, errors.Mark(errors.Wrapf(err, "读取配置文件 %s 失败", path), errors.ErrConfiguration)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func decode(data []byte, cfg *EngineConfig) error {
	text, _ := ReplacePlaceholders(string(data), os.LookupEnv)
	// 未设置且没有默认值的环境变量替换为空
	text, _ = ReplacePlaceholders(text, func(string) (string, bool) { return "", true })
	if err := yaml.Unmarshal([]byte(text), cfg); err != nil {
		return errors.Mark(err, errors.ErrConfiguration)
	}
	return nil
}

func applyEnvOverrides(cfg *EngineConfig) error {
	pe := &cfg.PipelineEngine
	if v, ok := lookupEnv(EnvDefaultExecutor); ok {
		pe.Execution.DefaultExecutor = v
	}
	if v, ok := lookupEnv(EnvTaskTimeout); ok {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return errors.Configurationf("%s must be a positive number of seconds, got %q", EnvTaskTimeout, v)
		}
		pe.Execution.DefaultTaskTimeout = time.Duration(seconds) * time.Second
	}
	if v, ok := lookupEnv(EnvVenvBasePath); ok {
		pe.Execution.Virtualenv.BasePath = v
	}
	if v, ok := lookupEnv(EnvDockerImage); ok {
		pe.Execution.Docker.Image = v
	}
	if v, ok := lookupEnv(EnvCleanupDays); ok {
		days, err := strconv.Atoi(v)
		if err != nil {
			return errors.Configurationf("%s must be a number of days, got %q", EnvCleanupDays, v)
		}
		pe.Cleanup.RetentionDays = days
	}
	if v, ok := lookupEnv(EnvDatabaseType); ok {
		pe.Storage.Database.Type = v
	}
	if v, ok := lookupEnv(EnvDatabaseDSN); ok {
		pe.Storage.Database.DSN = v
	}
	return nil
}

// lookupEnv 空字符串视为未设置
func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
