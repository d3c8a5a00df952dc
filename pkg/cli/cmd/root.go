package cmd

import (
	"os"
	"strings"

	"github.com/LENAX/pipeline-engine/pkg/cli/output"
	"github.com/LENAX/pipeline-engine/pkg/config"
	"github.com/LENAX/pipeline-engine/pkg/core/engine"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 环境变量前缀，例如 PIPELINE_ENGINE_CONFIG、PIPELINE_ENGINE_LOG_LEVEL
const envPrefix = "PIPELINE_ENGINE"

var outputJSON bool

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "pipeline-engine",
	Short: "Pipeline Engine - Python脚本流水线引擎",
	Long: `Pipeline Engine 按顺序执行由Python脚本组成的Workflow。

支持的功能：
  - 从YAML定义创建并运行Workflow
  - 查看Workflow状态、取消运行
  - Cron定时调度
  - 清理过期的运行记录
  - 启动HTTP API服务

使用示例：
  # 运行一个Workflow定义并等待结束
  pipeline-engine run ./workflows/etl.yaml

  # 列出所有Workflow
  pipeline-engine workflow list

  # 开启定时调度
  pipeline-engine schedule enable <workflow-id> --cron "0 2 * * *" --timezone Asia/Shanghai

  # 启动HTTP服务（含调度器）
  pipeline-engine server --config ./configs/engine.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "引擎配置文件路径（YAML）")
	flags.String("log-level", "", "日志级别 debug/info/warn/error，覆盖配置文件")
	flags.Bool("log-json", false, "输出JSON格式日志")
	flags.BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	for _, name := range []string{"config", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig 加载.env和配置文件，命令行与 PIPELINE_ENGINE_* 环境变量优先，并初始化日志
func loadConfig() (*config.EngineConfig, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFrameworkConfig(viper.GetString("config"))
	if err != nil {
		return nil, err
	}

	general := &cfg.PipelineEngine.General
	if level := viper.GetString("log-level"); level != "" {
		general.LogLevel = level
	}
	if viper.IsSet("log-json") {
		general.LogJSON = viper.GetBool("log-json")
	}
	if err := logger.Initialize(general.LogLevel, general.LogJSON); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newEngine 按配置构建Engine，调用方负责Stop
// withTicker 仅在常驻进程中开启，避免短命令触发调度
func newEngine(cfg *config.EngineConfig, withTicker bool) (*engine.Engine, error) {
	builder := engine.NewEngineBuilder(cfg)
	if withTicker {
		builder = builder.WithTicker()
	}
	return builder.Build()
}

// withEngine 加载配置并构建Engine，执行fn后释放
func withEngine(fn func(eng *engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg, false)
	if err != nil {
		return err
	}
	defer eng.Stop()
	return fn(eng)
}
