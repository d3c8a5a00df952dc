// Package queue 进程内的链式工作队列
//
// 一条Chain由若干Link组成，每个Link是一个独立的执行单元，
// 前一个Link的返回值作为下一个Link的输入。所有Chain共享一个有界的worker池，
// 同一Chain内的Link严格串行，不同Chain之间并发执行。
package queue

import (
	"context"
)

// Link 链上的一个执行单元，prev为上一个单元的返回值，首个单元为nil
type Link func(ctx context.Context, prev any) (any, error)

// ErrorLink 链上任一单元返回错误或panic时执行一次，之后的单元全部丢弃
type ErrorLink func(ctx context.Context, err error)

// Chain 一组顺序执行的单元（对外导出）
type Chain struct {
	ID      string
	Links   []Link
	OnError ErrorLink
}

// WorkQueue 工作队列接口（对外导出）
type WorkQueue interface {
	// Submit 投递一条链，立即返回
	Submit(chain *Chain) error
	// Revoke 撤销一条链：取消正在执行单元的context并丢弃剩余单元
	Revoke(id string) error
	// Wait 阻塞直到链结束并返回其错误，未知的链立即返回nil
	Wait(ctx context.Context, id string) error
	// Stop 停止队列，取消所有链并等待正在执行的单元退出
	Stop()
}
