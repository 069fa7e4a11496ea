package staging

import (
	"context"
	"sync"
)

// pathLocks hands out one lock per staged path. Entries are dropped once
// nobody holds or waits on them.
type pathLocks struct {
	mu sync.Mutex
	m  map[string]*pathLock
}

// pathLock is a one-slot semaphore so waiters can give up on ctx.
type pathLock struct {
	ch   chan struct{}
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{m: make(map[string]*pathLock)}
}

func (p *pathLocks) acquire(key string) *pathLock {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.m[key]
	if !ok {
		l = &pathLock{ch: make(chan struct{}, 1)}
		p.m[key] = l
	}
	l.refs++
	return l
}

func (p *pathLocks) drop(key string, l *pathLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(p.m, key)
	}
}

func (p *pathLocks) unlocker(key string, l *pathLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			p.drop(key, l)
		})
	}
}

// Lock waits until key is free or ctx is done. On success it returns the
// matching unlock func.
func (p *pathLocks) Lock(ctx context.Context, key string) (func(), error) {
	l := p.acquire(key)
	select {
	case l.ch <- struct{}{}:
		return p.unlocker(key, l), nil
	case <-ctx.Done():
		p.drop(key, l)
		return nil, ctx.Err()
	}
}

// TryLock is the non-blocking variant used by the sweeper.
func (p *pathLocks) TryLock(key string) (func(), bool) {
	l := p.acquire(key)
	select {
	case l.ch <- struct{}{}:
		return p.unlocker(key, l), true
	default:
		p.drop(key, l)
		return nil, false
	}
}

func (p *pathLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
