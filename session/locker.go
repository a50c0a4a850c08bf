package session

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Locker 进程内按会话 id 串行化轮次，无持有者与等待者时删除条目
type Locker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewLocker 创建空 Locker
func NewLocker() *Locker {
	return &Locker{entries: make(map[string]*lockEntry)}
}

// Lock 阻塞直到 sid 空闲或 ctx 结束，返回的释放函数可重复调用
func (l *Locker) Lock(ctx context.Context, sid string) (func(), error) {
	e := l.entry(sid)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.drop(sid, e)
		return nil, err
	}
	return l.unlocker(sid, e), nil
}

// TryLock 不等待地获取 sid
func (l *Locker) TryLock(sid string) (func(), bool) {
	e := l.entry(sid)
	if !e.sem.TryAcquire(1) {
		l.drop(sid, e)
		return nil, false
	}
	return l.unlocker(sid, e), true
}

func (l *Locker) entry(sid string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[sid]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[sid] = e
	}
	e.refs++
	return e
}

func (l *Locker) unlocker(sid string, e *lockEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.drop(sid, e)
		})
	}
}

func (l *Locker) drop(sid string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, sid)
	}
}

// Len 当前有持有者或等待者的会话数
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
