package config

import (
	"strings"
	"time"

	internalstorage "github.com/LENAX/pipeline-engine/internal/storage"
	"github.com/LENAX/pipeline-engine/pkg/core/executor"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/plugin"
)

// 支持的通知插件类型
const (
	PluginTypeEmail   = "email"
	PluginTypeWebhook = "webhook"
	PluginTypeLog     = "log"
)

// ValidateFrameworkConfig 校验框架配置合法性
func ValidateFrameworkConfig(cfg *EngineConfig) error {
	if cfg == nil {
		return errors.Configurationf("配置不能为空")
	}
	pe := cfg.PipelineEngine

	// 校验General
	if pe.General.InstanceName == "" {
		return errors.Configurationf("instance_name不能为空")
	}
	if pe.General.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[pe.General.LogLevel] {
			return errors.Configurationf("log_level必须是debug/info/warn/error之一")
		}
	}

	// 校验Storage.Database
	if !internalstorage.IsSupported(pe.Storage.Database.Type) {
		return errors.WithHintf(
			errors.Configurationf("unsupported database type: %s", pe.Storage.Database.Type),
			"supported types: %s", strings.Join(internalstorage.SupportedDatabaseTypes, ", "))
	}
	if pe.Storage.Database.DSN == "" {
		return errors.Configurationf("database.dsn不能为空")
	}
	if pe.Storage.Database.MaxIdleConns < 0 {
		return errors.Configurationf("database.max_idle_conns不能为负数")
	}

	// 校验Execution
	builtin := []string{executor.NameDirect, executor.NameVirtualenv, executor.NameDocker}
	if !contains(builtin, pe.Execution.DefaultExecutor) {
		return errors.WithHintf(
			errors.Configurationf("unknown executor: %s", pe.Execution.DefaultExecutor),
			"available executors: %s", strings.Join(builtin, ", "))
	}
	if pe.Execution.WorkerConcurrency <= 0 {
		return errors.Configurationf("execution.worker_concurrency必须大于0")
	}
	if pe.Execution.DefaultTaskTimeout <= 0 {
		return errors.Configurationf("execution.default_task_timeout必须大于0")
	}
	if pe.Execution.Docker.CPULimit < 0 {
		return errors.Configurationf("execution.docker.cpu_limit不能为负数")
	}

	// 校验Scheduler与Cleanup
	if pe.Scheduler.PollInterval < time.Second {
		return errors.Configurationf("scheduler.poll_interval不能小于1s")
	}
	if pe.Cleanup.RetentionDays < 0 {
		return errors.Configurationf("cleanup.retention_days不能为负数")
	}

	// 校验API
	if pe.API.Port <= 0 || pe.API.Port > 65535 {
		return errors.Configurationf("api.port必须在1-65535之间")
	}

	return validateNotifications(pe.Notifications)
}

func validateNotifications(n NotificationConfig) error {
	if _, err := plugin.ParsePriority(n.MinPriority); err != nil {
		return errors.Mark(errors.Wrap(err, "notifications.min_priority"), errors.ErrConfiguration)
	}
	if err := validateEvents("notifications.events", n.Events); err != nil {
		return err
	}
	if _, err := time.LoadLocation(n.QuietHours.Timezone); err != nil {
		return errors.Mark(errors.Wrap(err, "notifications.quiet_hours.timezone"), errors.ErrConfiguration)
	}
	filter := plugin.Filter{QuietStart: n.QuietHours.Start, QuietEnd: n.QuietHours.End}
	if err := filter.Validate(); err != nil {
		return errors.Mark(err, errors.ErrConfiguration)
	}
	if (n.QuietHours.Start == "") != (n.QuietHours.End == "") {
		return errors.Configurationf("notifications.quiet_hours需要同时设置start和end")
	}

	seen := make(map[string]bool)
	for i, p := range n.Plugins {
		switch p.Type {
		case PluginTypeEmail, PluginTypeWebhook, PluginTypeLog:
		default:
			return errors.Configurationf("notifications.plugins[%d].type %q 不支持，可选 email/webhook/log", i, p.Type)
		}
		if seen[p.Type] {
			return errors.Configurationf("notifications.plugins中存在重复的type: %s", p.Type)
		}
		seen[p.Type] = true
		if err := validateEvents("notifications.plugins.events", p.Events); err != nil {
			return err
		}
	}
	return nil
}

func validateEvents(field string, events []string) error {
	for _, e := range events {
		if plugin.Event(e) == plugin.EventAll {
			continue
		}
		if !contains(eventNames(), e) {
			return errors.Configurationf("%s 包含未知事件: %s", field, e)
		}
	}
	return nil
}

func eventNames() []string {
	names := make([]string, 0, len(plugin.AllEvents))
	for _, e := range plugin.AllEvents {
		names = append(names, string(e))
	}
	return names
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Validate 校验配置
func (c *EngineConfig) Validate() error {
	return ValidateFrameworkConfig(c)
}

// NotificationFilter 转换为插件管理器的过滤规则
func (c *EngineConfig) NotificationFilter() plugin.Filter {
	n := c.PipelineEngine.Notifications
	priority, _ := plugin.ParsePriority(n.MinPriority)
	loc, err := time.LoadLocation(n.QuietHours.Timezone)
	if err != nil {
		loc = time.UTC
	}
	events := make([]plugin.Event, 0, len(n.Events))
	for _, e := range n.Events {
		events = append(events, plugin.Event(e))
	}
	return plugin.Filter{
		MinPriority: priority,
		Events:      events,
		QuietStart:  n.QuietHours.Start,
		QuietEnd:    n.QuietHours.End,
		Location:    loc,
	}
}

// ExecutorOptions 转换为执行器配置
func (c *EngineConfig) ExecutorOptions() executor.Options {
	ex := c.PipelineEngine.Execution
	opts := executor.Options{
		PythonBin:               ex.PythonBin,
		InstallTimeout:          ex.InstallTimeout,
		PreinstalledPackages:    ex.PreinstalledPackages,
		OutputsOverrideExitCode: ex.OutputsOverrideExitCode,
	}
	opts.Virtualenv.BasePath = ex.Virtualenv.BasePath
	opts.Virtualenv.BaselinePackages = ex.Virtualenv.BaselinePackages
	opts.Docker.Image = ex.Docker.Image
	opts.Docker.MemoryMB = ex.Docker.MemoryMB
	opts.Docker.CPULimit = ex.Docker.CPULimit
	opts.Docker.NetworkMode = ex.Docker.NetworkMode
	return opts
}

// PoolOptions 转换为数据库连接池参数
func (c *EngineConfig) PoolOptions() internalstorage.PoolOptions {
	db := c.PipelineEngine.Storage.Database
	return internalstorage.PoolOptions{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}
}
