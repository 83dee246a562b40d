package engine

import (
	"context"
	"sync"
	"time"

	"cdpnetflow/internal/logger"
	"cdpnetflow/internal/router"
	"cdpnetflow/pkg/traffic"
	"cdpnetflow/pkg/transport"
)

// Config 引擎配置
type Config struct {
	Transport transport.Transport
	Logger    logger.Logger
	// ResolveTimeout 决议动作发往传输层的超时，零值取 10s
	ResolveTimeout time.Duration
}

// Engine 网络生命周期引擎：单协程按到达序消费传输层事件，
// 把离散事件折叠成请求/响应实体，并驱动观察与拦截路由
type Engine struct {
	t      transport.Transport
	log    logger.Logger
	router *router.Router
	em     *emitter

	resolveTimeout time.Duration

	mu      sync.Mutex
	running bool
	nextID  int64
	entries map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// entry 单个线路请求标识的当前跳状态
type entry struct {
	req  *traffic.Request
	resp *traffic.Response
	// routed 链上已有路由命中
	routed bool
	// silent 当前跳是被路由链的重定向后续，观察流保持静默
	silent bool
	// aborted 由路由决议中止
	aborted bool
	// respExtra 先于响应事件到达的线路头补充
	respExtra *transport.ResponseExtraInfo
}

// New 构建引擎，Transport 必填
func New(cfg Config) *Engine {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	to := cfg.ResolveTimeout
	if to <= 0 {
		to = 10 * time.Second
	}
	return &Engine{
		t:              cfg.Transport,
		log:            l,
		router:         router.New(),
		em:             newEmitter(),
		resolveTimeout: to,
		entries:        make(map[string]*entry),
		done:           make(chan struct{}),
	}
}

// Start 启动事件消费协程，重复调用无效果
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()
	go e.run()
}

// Close 停止消费并等待协程退出
func (e *Engine) Close() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.mu.Unlock()
	cancel()
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case ev, ok := <-e.t.Events():
			if !ok {
				e.log.Info("事件流关闭，引擎退出")
				return
			}
			e.dispatch(ev)
		case <-e.ctx.Done():
			return
		}
	}
}

// dispatch 按事件类型推进状态机
func (e *Engine) dispatch(ev transport.Event) {
	switch t := ev.(type) {
	case *transport.WillSendRequest:
		e.onWillSendRequest(t)
	case *transport.RequestExtraInfo:
		e.onRequestExtraInfo(t)
	case *transport.ResponseReceived:
		e.onResponseReceived(t)
	case *transport.ResponseExtraInfo:
		e.onResponseExtraInfo(t)
	case *transport.DataReceived:
		e.onDataReceived(t)
	case *transport.LoadingFinished:
		e.onLoadingFinished(t)
	case *transport.LoadingFailed:
		e.onLoadingFailed(t)
	default:
		e.log.Warn("未知事件类型，忽略")
	}
}

func (e *Engine) onWillSendRequest(ev *transport.WillSendRequest) {
	if ev.RequestID == "" || ev.URL == "" {
		e.log.Warn("丢弃畸形请求事件", "requestID", ev.RequestID, "url", ev.URL)
		return
	}

	e.mu.Lock()
	prev := e.entries[ev.RequestID]
	e.mu.Unlock()

	var prevReq *traffic.Request
	routedChain := false
	if ev.Redirect != nil {
		if prev == nil {
			e.log.Warn("重定向事件缺少上一跳，按新请求处理", "requestID", ev.RequestID, "url", ev.URL)
		} else {
			prevReq = prev.req
			routedChain = prev.routed
			e.resolveRedirectHop(prev, ev.Redirect)
		}
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.mu.Unlock()

	req := traffic.NewRequest(id, traffic.RequestSeed{
		WireID:       ev.RequestID,
		URL:          ev.URL,
		Method:       ev.Method,
		Headers:      ev.Headers,
		PostData:     ev.PostData,
		HasPostData:  ev.HasPostData,
		DocumentURL:  ev.DocumentURL,
		ResourceType: ev.ResourceType,
		FrameID:      ev.FrameID,
	})
	if prevReq != nil {
		req.AttachRedirectedFrom(prevReq)
	}

	ent := &entry{
		req:    req,
		routed: routedChain,
		silent: routedChain && prevReq != nil,
	}
	e.mu.Lock()
	e.entries[ev.RequestID] = ent
	e.mu.Unlock()

	if !ent.silent {
		e.em.emitRequest(req)
	}

	if ev.InterceptionID == "" {
		return
	}
	if ent.silent {
		// 被路由链的重定向后续不再回到处理器，直接放行
		go e.continuePassthrough(ev.InterceptionID)
		return
	}
	if h, ok := e.router.Match(req); ok {
		e.mu.Lock()
		ent.routed = true
		e.mu.Unlock()
		rt := traffic.NewRoute(req, ev.InterceptionID, e)
		go e.runHandler(h, rt)
		return
	}
	go e.continuePassthrough(ev.InterceptionID)
}

// resolveRedirectHop 用 3xx 响应收口上一跳：先补响应再补终态
func (e *Engine) resolveRedirectHop(ent *entry, info *transport.RedirectInfo) {
	resp := traffic.NewResponse(ent.req, traffic.ResponseSeed{
		Status:      info.Status,
		StatusText:  info.StatusText,
		Headers:     info.Headers,
		HeadersSize: info.HeadersSize,
	})
	// 重定向响应的体不可取回，固定为空
	resp.FinalizeBodyBytes(nil)

	e.mu.Lock()
	ent.resp = resp
	silent := ent.silent
	e.mu.Unlock()

	ent.req.AttachResponse(resp)
	if !silent {
		e.em.emitResponse(resp)
	}
	resp.MarkFinished(info.Transfer)
	if !silent {
		e.em.emitFinished(ent.req)
	}
}

func (e *Engine) onRequestExtraInfo(ev *transport.RequestExtraInfo) {
	ent := e.lookup(ev.RequestID)
	if ent == nil {
		e.log.Debug("丢弃无主的请求头补充", "requestID", ev.RequestID)
		return
	}
	ent.req.AttachRawHeaders(ev.Headers, ev.HeadersSize)
}

func (e *Engine) onResponseReceived(ev *transport.ResponseReceived) {
	ent := e.lookup(ev.RequestID)
	if ent == nil {
		e.log.Debug("丢弃无主的响应事件", "requestID", ev.RequestID)
		return
	}
	resp := traffic.NewResponse(ent.req, traffic.ResponseSeed{
		Status:      ev.Status,
		StatusText:  ev.StatusText,
		Headers:     ev.Headers,
		MimeType:    ev.MimeType,
		Protocol:    ev.Protocol,
		RemoteAddr:  ev.RemoteAddr,
		HeadersSize: ev.HeadersSize,
		FromFulfill: ev.FromFulfill,
	})

	e.mu.Lock()
	ent.resp = resp
	extra := ent.respExtra
	ent.respExtra = nil
	silent := ent.silent
	e.mu.Unlock()

	if extra != nil {
		resp.AttachRawHeaders(extra.Headers, extra.HeadersSize)
	}
	ent.req.AttachResponse(resp)
	if !silent {
		e.em.emitResponse(resp)
	}
}

func (e *Engine) onResponseExtraInfo(ev *transport.ResponseExtraInfo) {
	ent := e.lookup(ev.RequestID)
	if ent == nil {
		e.log.Debug("丢弃无主的响应头补充", "requestID", ev.RequestID)
		return
	}
	e.mu.Lock()
	resp := ent.resp
	if resp == nil {
		// 线路头补充先于响应事件到达，暂存待配
		ent.respExtra = ev
	}
	e.mu.Unlock()
	if resp != nil {
		resp.AttachRawHeaders(ev.Headers, ev.HeadersSize)
	}
}

func (e *Engine) onDataReceived(ev *transport.DataReceived) {
	ent := e.lookup(ev.RequestID)
	if ent == nil {
		return
	}
	e.mu.Lock()
	resp := ent.resp
	e.mu.Unlock()
	if resp == nil {
		e.log.Debug("数据分片先于响应事件，忽略", "requestID", ev.RequestID)
		return
	}
	resp.AddChunk(ev.EncodedLength)
}

func (e *Engine) onLoadingFinished(ev *transport.LoadingFinished) {
	ent := e.lookup(ev.RequestID)
	if ent == nil {
		e.log.Debug("丢弃无主的完成事件", "requestID", ev.RequestID)
		return
	}
	e.mu.Lock()
	resp := ent.resp
	silent := ent.silent
	e.mu.Unlock()
	e.forget(ev.RequestID)

	if resp == nil {
		e.log.Warn("完成事件缺少响应", "requestID", ev.RequestID)
		ent.req.MarkFinished()
		if !silent {
			e.em.emitFinished(ent.req)
		}
		return
	}

	wireID := ev.RequestID
	resp.FinalizeBodyWith(func(ctx context.Context) ([]byte, error) {
		return e.t.ResponseBody(ctx, wireID)
	})
	resp.MarkFinished(ev.Transfer)
	if !silent {
		e.em.emitFinished(ent.req)
	}
}

func (e *Engine) onLoadingFailed(ev *transport.LoadingFailed) {
	ent := e.lookup(ev.RequestID)
	if ent == nil {
		e.log.Debug("丢弃无主的失败事件", "requestID", ev.RequestID)
		return
	}
	e.mu.Lock()
	aborted := ent.aborted
	silent := ent.silent
	e.mu.Unlock()
	e.forget(ev.RequestID)

	reason := ev.Reason
	if reason == "" {
		if ev.Canceled {
			reason = transport.AbortAborted
		} else {
			reason = transport.AbortFailed
		}
	}
	ent.req.MarkFailed(&traffic.FailureError{Reason: reason, Aborted: aborted})
	if !silent {
		e.em.emitFailed(ent.req)
	}
}

// runHandler 在独立协程中执行路由处理器
func (e *Engine) runHandler(h traffic.RouteHandler, rt *traffic.Route) {
	h(rt)
	if !rt.Resolved() {
		e.log.Warn("路由处理器归还时未决议，请求保持挂起", "url", rt.Request().URL())
	}
}

// continuePassthrough 对未命中路由的暂停请求做透明放行
func (e *Engine) continuePassthrough(interceptID string) {
	ctx, cancel := context.WithTimeout(e.ctx, e.resolveTimeout)
	defer cancel()
	if err := e.t.ContinueRequest(ctx, interceptID, nil); err != nil {
		e.log.Err(err, "透明放行失败", "interceptID", interceptID)
	}
}

func (e *Engine) lookup(wireID string) *entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entries[wireID]
}

func (e *Engine) forget(wireID string) {
	e.mu.Lock()
	delete(e.entries, wireID)
	e.mu.Unlock()
}
