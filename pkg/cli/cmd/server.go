package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LENAX/pipeline-engine/pkg/api"
	"github.com/LENAX/pipeline-engine/pkg/cli/output"
	"github.com/spf13/cobra"
)

var (
	serverHost string
	serverPort int
)

// serverCmd 启动常驻服务：引擎、调度器和HTTP API
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动HTTP API服务（含定时调度和过期清理）",
	Long: `启动Pipeline Engine常驻服务。

服务启动时会把上次遗留的RUNNING Workflow标记为FAILED，
随后按 scheduler.poll_interval 轮询到期的定时Workflow，
按 cleanup.interval 清理过期的运行记录。

示例：
  # 使用默认配置启动
  pipeline-engine server

  # 指定配置文件和端口
  pipeline-engine server --config ./configs/engine.yaml --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.PipelineEngine.API.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.PipelineEngine.API.Port = serverPort
		}

		eng, err := newEngine(cfg, true)
		if err != nil {
			return err
		}
		defer eng.Stop()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := eng.Start(ctx); err != nil {
			return err
		}

		serverCfg := api.ServerConfigFrom(cfg)
		apiServer := api.NewAPIServer(eng, serverCfg, Version)

		errCh := make(chan error, 1)
		go func() {
			errCh <- apiServer.Start()
		}()
		output.Success("Pipeline Engine Server started on %s", apiServer.Addr())

		select {
		case <-ctx.Done():
			output.Info("正在关闭服务...")
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.WriteTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭API服务器失败: %v", err)
		}
		output.Success("服务已停止")
		return nil
	},
}

func init() {
	serverCmd.Flags().StringVarP(&serverHost, "host", "H", "", "监听地址，覆盖配置文件")
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "监听端口，覆盖配置文件")
}
