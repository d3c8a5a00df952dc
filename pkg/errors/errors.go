// Package errors 统一错误处理（对外导出）
//
// 基于 github.com/cockroachdb/errors，提供堆栈、包装、提示信息，
// 以及引擎错误分类的哨兵错误。判断错误类型统一使用 errors.Is。
//
//	if errors.Is(err, errors.ErrConflict) {
//	    // Workflow正在运行
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// 创建与包装
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	Mark         = crdb.Mark
)

// 检查
var (
	Is           = crdb.Is
	IsAny        = crdb.IsAny
	As           = crdb.As
	Unwrap       = crdb.Unwrap
	UnwrapAll    = crdb.UnwrapAll
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

// 错误分类（对外导出）
var (
	// ErrConfiguration 配置错误：未知执行器、非法Cron表达式等，直接返回调用方，不重试
	ErrConfiguration = New("configuration error")
	// ErrInstall 依赖安装失败，Task终止
	ErrInstall = New("requirement install failed")
	// ErrTimeout 执行超时，Task终止
	ErrTimeout = New("execution timed out")
	// ErrUpstreamFailure 上游Task失败，当前Task短路
	ErrUpstreamFailure = New("upstream task failed")
	// ErrInfrastructure 基础设施错误：存储不可用、队列投递失败等，Workflow终止
	ErrInfrastructure = New("infrastructure error")

	ErrNotFound       = New("not found")
	ErrConflict       = New("resource conflict")
	ErrInvalidRequest = New("invalid request")
)

// Configurationf 构造配置错误
func Configurationf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfiguration)
}

// Infrastructure 将err标记为基础设施错误，保留原始信息
func Infrastructure(err error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, msg), ErrInfrastructure)
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflict 判断是否为冲突错误
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}
