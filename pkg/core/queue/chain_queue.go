package queue

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"go.uber.org/zap"
)

const (
	defaultConcurrency = 10
	defaultQueueSize   = 10000
	// maxResults 保留最近结束的链结果，供结束后才调用的Wait读取
	maxResults = 1024
)

// ErrRevoked 链被撤销
var ErrRevoked = errors.New("chain revoked")

// ErrStopped 队列已停止
var ErrStopped = errors.New("work queue stopped")

// chainState 一条链的运行状态
type chainState struct {
	chain  *Chain
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	err      error
	revoked  bool
	finished bool
}

func (s *chainState) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	s.cancel()
	close(s.done)
}

func (s *chainState) isRevoked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked
}

// unit 调度的最小单位：链上某个位置的Link，或链的错误处理
type unit struct {
	state *chainState
	index int
	prev  any
	err   error // 非nil表示执行OnError
}

// ChainQueue 基于信号量worker池的WorkQueue实现（对外导出）
type ChainQueue struct {
	workerPool chan struct{}
	units      chan *unit
	chains     map[string]*chainState
	results    map[string]error
	resultIDs  []string
	mu         sync.Mutex
	wg         sync.WaitGroup
	stopCh     chan struct{}
	stopOnce   sync.Once
	stopped    bool
	log        *zap.SugaredLogger
}

// NewChainQueue 创建并启动队列（对外导出）
// concurrency: 同时执行的单元数上限，<=0 时使用默认值10
func NewChainQueue(concurrency int) *ChainQueue {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	q := &ChainQueue{
		workerPool: make(chan struct{}, concurrency),
		units:      make(chan *unit, defaultQueueSize),
		chains:     make(map[string]*chainState),
		results:    make(map[string]error),
		stopCh:     make(chan struct{}),
		log:        logger.Named("queue"),
	}
	go q.dispatch()
	return q
}

// Submit 实现WorkQueue接口
func (q *ChainQueue) Submit(chain *Chain) error {
	if chain == nil || chain.ID == "" {
		return errors.Mark(errors.New("chain id is required"), errors.ErrInvalidRequest)
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return errors.Mark(ErrStopped, errors.ErrInfrastructure)
	}
	if _, exists := q.chains[chain.ID]; exists {
		q.mu.Unlock()
		return errors.Mark(errors.Newf("chain %s already submitted", chain.ID), errors.ErrConflict)
	}
	ctx, cancel := context.WithCancel(context.Background())
	state := &chainState{
		chain:  chain,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	q.chains[chain.ID] = state
	q.mu.Unlock()

	if len(chain.Links) == 0 {
		q.complete(state, nil)
		return nil
	}
	if !q.enqueue(&unit{state: state}) {
		q.complete(state, ErrStopped)
		return errors.Mark(ErrStopped, errors.ErrInfrastructure)
	}
	q.log.Debugw("链已投递", "chain", chain.ID, "links", len(chain.Links))
	return nil
}

// Revoke 实现WorkQueue接口
func (q *ChainQueue) Revoke(id string) error {
	q.mu.Lock()
	state, exists := q.chains[id]
	q.mu.Unlock()
	if !exists {
		return errors.Mark(errors.Newf("chain %s not found", id), errors.ErrNotFound)
	}

	state.mu.Lock()
	state.revoked = true
	state.mu.Unlock()
	state.cancel()
	q.log.Infow("链已撤销", "chain", id)
	return nil
}

// Wait 实现WorkQueue接口
func (q *ChainQueue) Wait(ctx context.Context, id string) error {
	q.mu.Lock()
	state, exists := q.chains[id]
	result, finished := q.results[id]
	q.mu.Unlock()
	if !exists {
		if finished {
			return result
		}
		return nil
	}

	select {
	case <-state.done:
		state.mu.Lock()
		defer state.mu.Unlock()
		return state.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 实现WorkQueue接口
func (q *ChainQueue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		states := make([]*chainState, 0, len(q.chains))
		for _, s := range q.chains {
			states = append(states, s)
		}
		q.mu.Unlock()

		close(q.stopCh)
		for _, s := range states {
			s.cancel()
		}
		q.wg.Wait()
		for _, s := range states {
			q.complete(s, ErrStopped)
		}
		q.log.Info("工作队列已停止")
	})
}

// dispatch 从单元队列取出单元，获取worker令牌后执行
func (q *ChainQueue) dispatch() {
	for {
		select {
		case <-q.stopCh:
			return
		case u := <-q.units:
			select {
			case q.workerPool <- struct{}{}:
			case <-q.stopCh:
				return
			}
			// Stop在持锁时置位stopped，之后不会再有新的wg.Add
			q.mu.Lock()
			if q.stopped {
				q.mu.Unlock()
				<-q.workerPool
				return
			}
			q.wg.Add(1)
			q.mu.Unlock()
			go q.run(u)
		}
	}
}

// run 执行单个单元，令牌在投递下一个单元之前归还
func (q *ChainQueue) run(u *unit) {
	defer q.wg.Done()

	state := u.state
	if state.isRevoked() {
		<-q.workerPool
		q.complete(state, ErrRevoked)
		return
	}

	if u.err != nil {
		q.runOnError(state, u.err)
		<-q.workerPool
		q.complete(state, u.err)
		return
	}

	out, err := q.runLink(state, u.index, u.prev)
	<-q.workerPool

	switch {
	case state.isRevoked():
		q.complete(state, ErrRevoked)
	case err != nil:
		q.log.Warnw("链单元执行失败", "chain", state.chain.ID, "index", u.index, "error", err)
		if state.chain.OnError == nil {
			q.complete(state, err)
			return
		}
		if !q.enqueue(&unit{state: state, err: err}) {
			q.complete(state, err)
		}
	case u.index+1 >= len(state.chain.Links):
		q.complete(state, nil)
	default:
		if !q.enqueue(&unit{state: state, index: u.index + 1, prev: out}) {
			q.complete(state, ErrStopped)
		}
	}
}

func (q *ChainQueue) runLink(state *chainState, index int, prev any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("链单元panic", "chain", state.chain.ID, "index", index, "panic", r, "stack", string(debug.Stack()))
			err = errors.Newf("panic in chain %s link %d: %v", state.chain.ID, index, r)
		}
	}()
	return state.chain.Links[index](state.ctx, prev)
}

func (q *ChainQueue) runOnError(state *chainState, cause error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("错误处理panic", "chain", state.chain.ID, "panic", r)
		}
	}()
	state.chain.OnError(state.ctx, cause)
}

func (q *ChainQueue) enqueue(u *unit) bool {
	select {
	case q.units <- u:
		return true
	case <-q.stopCh:
		return false
	}
}

// complete 结束链并从表中移除
func (q *ChainQueue) complete(state *chainState, err error) {
	state.finish(err)
	state.mu.Lock()
	final := state.err
	state.mu.Unlock()

	q.mu.Lock()
	if current, ok := q.chains[state.chain.ID]; ok && current == state {
		delete(q.chains, state.chain.ID)
		q.results[state.chain.ID] = final
		q.resultIDs = append(q.resultIDs, state.chain.ID)
		if len(q.resultIDs) > maxResults {
			delete(q.results, q.resultIDs[0])
			q.resultIDs = q.resultIDs[1:]
		}
	}
	q.mu.Unlock()
}

var _ WorkQueue = (*ChainQueue)(nil)
