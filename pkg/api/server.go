package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/config"
	"github.com/LENAX/pipeline-engine/pkg/core/engine"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"go.uber.org/zap"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Host         string        // 监听地址
	Port         int           // 监听端口
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8000,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ServerConfigFrom 从引擎配置的api段生成服务器配置，缺省项使用默认值
func ServerConfigFrom(cfg *config.EngineConfig) ServerConfig {
	sc := DefaultServerConfig()
	if cfg == nil {
		return sc
	}
	apiCfg := cfg.PipelineEngine.API
	if apiCfg.Host != "" {
		sc.Host = apiCfg.Host
	}
	if apiCfg.Port > 0 {
		sc.Port = apiCfg.Port
	}
	if apiCfg.ReadTimeout > 0 {
		sc.ReadTimeout = apiCfg.ReadTimeout
	}
	if apiCfg.WriteTimeout > 0 {
		sc.WriteTimeout = apiCfg.WriteTimeout
	}
	return sc
}

// APIServer HTTP API服务器
type APIServer struct {
	engine     *engine.Engine
	httpServer *http.Server
	config     ServerConfig
	version    string
	log        *zap.SugaredLogger
}

// NewAPIServer 创建API服务器
func NewAPIServer(eng *engine.Engine, config ServerConfig, version string) *APIServer {
	return &APIServer{
		engine:  eng,
		config:  config,
		version: version,
		log:     logger.Named("api"),
	}
}

// Start 启动服务器，阻塞直到Shutdown
func (s *APIServer) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.Addr(),
		Handler:      SetupRouter(s.engine, s.version),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Infow("API服务启动", "addr", s.Addr(), "version", s.version)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server listen failed")
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.log.Infow("正在关闭API服务")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server shutdown failed")
	}
	s.log.Infow("API服务已停止")
	return nil
}

// Addr 获取服务器地址
func (s *APIServer) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
