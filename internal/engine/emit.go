package engine

import (
	"sync"

	"cdpnetflow/pkg/traffic"
)

// emitter 观察者注册表：按注册顺序同步分发，
// 分发遍历基于加锁快照，注册/注销不影响进行中的分发
type emitter struct {
	mu       sync.Mutex
	seq      int64
	request  []requestSub
	response []responseSub
	finished []requestSub
	failed   []requestSub
}

type requestSub struct {
	id int64
	fn func(*traffic.Request)
}

type responseSub struct {
	id int64
	fn func(*traffic.Response)
}

func newEmitter() *emitter {
	return &emitter{}
}

func (em *emitter) onRequest(fn func(*traffic.Request)) func() {
	em.mu.Lock()
	em.seq++
	id := em.seq
	em.request = append(em.request, requestSub{id: id, fn: fn})
	em.mu.Unlock()
	return func() { em.mu.Lock(); em.request = dropRequestSub(em.request, id); em.mu.Unlock() }
}

func (em *emitter) onResponse(fn func(*traffic.Response)) func() {
	em.mu.Lock()
	em.seq++
	id := em.seq
	em.response = append(em.response, responseSub{id: id, fn: fn})
	em.mu.Unlock()
	return func() { em.mu.Lock(); em.response = dropResponseSub(em.response, id); em.mu.Unlock() }
}

func (em *emitter) onFinished(fn func(*traffic.Request)) func() {
	em.mu.Lock()
	em.seq++
	id := em.seq
	em.finished = append(em.finished, requestSub{id: id, fn: fn})
	em.mu.Unlock()
	return func() { em.mu.Lock(); em.finished = dropRequestSub(em.finished, id); em.mu.Unlock() }
}

func (em *emitter) onFailed(fn func(*traffic.Request)) func() {
	em.mu.Lock()
	em.seq++
	id := em.seq
	em.failed = append(em.failed, requestSub{id: id, fn: fn})
	em.mu.Unlock()
	return func() { em.mu.Lock(); em.failed = dropRequestSub(em.failed, id); em.mu.Unlock() }
}

func (em *emitter) emitRequest(r *traffic.Request) {
	em.mu.Lock()
	subs := make([]requestSub, len(em.request))
	copy(subs, em.request)
	em.mu.Unlock()
	for i := range subs {
		subs[i].fn(r)
	}
}

func (em *emitter) emitResponse(r *traffic.Response) {
	em.mu.Lock()
	subs := make([]responseSub, len(em.response))
	copy(subs, em.response)
	em.mu.Unlock()
	for i := range subs {
		subs[i].fn(r)
	}
}

func (em *emitter) emitFinished(r *traffic.Request) {
	em.mu.Lock()
	subs := make([]requestSub, len(em.finished))
	copy(subs, em.finished)
	em.mu.Unlock()
	for i := range subs {
		subs[i].fn(r)
	}
}

func (em *emitter) emitFailed(r *traffic.Request) {
	em.mu.Lock()
	subs := make([]requestSub, len(em.failed))
	copy(subs, em.failed)
	em.mu.Unlock()
	for i := range subs {
		subs[i].fn(r)
	}
}

func dropRequestSub(subs []requestSub, id int64) []requestSub {
	keep := subs[:0]
	for _, s := range subs {
		if s.id != id {
			keep = append(keep, s)
		}
	}
	return keep
}

func dropResponseSub(subs []responseSub, id int64) []responseSub {
	keep := subs[:0]
	for _, s := range subs {
		if s.id != id {
			keep = append(keep, s)
		}
	}
	return keep
}
