package cdp

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/rpcc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"cdpnetflow/internal/logger"
	"cdpnetflow/pkg/transport"
)

// Options 适配器行为开关
type Options struct {
	// Intercept 启用请求拦截（Fetch 域）
	Intercept bool
	// RawHeaders 订阅线级头补充事件
	RawHeaders bool
	// EventBuffer 事件通道容量，零值取 256
	EventBuffer int
}

// Adapter 基于 DevTools 协议的传输层：把 Network/Fetch 两域的
// 事件流折算为中立生命周期事件，并把决议动作映射为协议指令。
// 同标识的请求与暂停事件按到达序两向配对，地址不一致视为
// 重定向造成的陈旧配对
type Adapter struct {
	client *cdp.Client
	log    logger.Logger
	opts   Options

	events chan transport.Event

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	mu             sync.Mutex
	pendingSent    map[string]*network.RequestWillBeSentReply
	pendingPaused  map[string]*fetch.RequestPausedReply
	interceptToNet map[string]string
	fulfilled      map[string]bool

	bodies singleflight.Group
}

// New 创建适配器，客户端须已连接到目标
func New(client *cdp.Client, log logger.Logger, opts Options) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = 256
	}
	return &Adapter{
		client:         client,
		log:            log,
		opts:           opts,
		events:         make(chan transport.Event, buf),
		pendingSent:    make(map[string]*network.RequestWillBeSentReply),
		pendingPaused:  make(map[string]*fetch.RequestPausedReply),
		interceptToNet: make(map[string]string),
		fulfilled:      make(map[string]bool),
	}
}

// Events 生命周期事件流，适配器停止时关闭
func (a *Adapter) Events() <-chan transport.Event { return a.events }

// Start 启用协议域、建立事件流订阅并开始消费
func (a *Adapter) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.client.Network.Enable(a.ctx, nil); err != nil {
		return fmt.Errorf("enable Network domain: %w", err)
	}
	if a.opts.Intercept {
		if err := a.client.Network.SetCacheDisabled(a.ctx, network.NewSetCacheDisabledArgs(true)); err != nil {
			a.log.Warn("禁用缓存失败", "error", err)
		}
		p := "*"
		patterns := []fetch.RequestPattern{{URLPattern: &p, RequestStage: fetch.RequestStageRequest}}
		if err := a.client.Fetch.Enable(a.ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
			return fmt.Errorf("enable Fetch domain: %w", err)
		}
	}

	st, err := a.openStreams()
	if err != nil {
		return err
	}

	a.eg = &errgroup.Group{}
	a.eg.Go(func() error { return a.consume(st) })
	a.log.Info("传输适配器已启动", "intercept", a.opts.Intercept, "rawHeaders", a.opts.RawHeaders)
	return nil
}

// Close 停止消费并等待事件流收口
func (a *Adapter) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.eg != nil {
		return a.eg.Wait()
	}
	return nil
}

type streamSet struct {
	sent      network.RequestWillBeSentClient
	resp      network.ResponseReceivedClient
	data      network.DataReceivedClient
	finished  network.LoadingFinishedClient
	failed    network.LoadingFailedClient
	reqExtra  network.RequestWillBeSentExtraInfoClient
	respExtra network.ResponseReceivedExtraInfoClient
	paused    fetch.RequestPausedClient
}

func (s *streamSet) streams() []rpcc.Stream {
	out := []rpcc.Stream{s.sent, s.resp, s.data, s.finished, s.failed}
	if s.reqExtra != nil {
		out = append(out, s.reqExtra)
	}
	if s.respExtra != nil {
		out = append(out, s.respExtra)
	}
	if s.paused != nil {
		out = append(out, s.paused)
	}
	return out
}

func (s *streamSet) close() {
	for _, c := range s.streams() {
		if c != nil {
			_ = c.Close()
		}
	}
}

// openStreams 建立全部事件流订阅并对齐跨流到达序
func (a *Adapter) openStreams() (st *streamSet, err error) {
	st = &streamSet{}
	defer func() {
		if err != nil {
			st.close()
		}
	}()

	if st.sent, err = a.client.Network.RequestWillBeSent(a.ctx); err != nil {
		return nil, fmt.Errorf("subscribe requestWillBeSent: %w", err)
	}
	if st.resp, err = a.client.Network.ResponseReceived(a.ctx); err != nil {
		return nil, fmt.Errorf("subscribe responseReceived: %w", err)
	}
	if st.data, err = a.client.Network.DataReceived(a.ctx); err != nil {
		return nil, fmt.Errorf("subscribe dataReceived: %w", err)
	}
	if st.finished, err = a.client.Network.LoadingFinished(a.ctx); err != nil {
		return nil, fmt.Errorf("subscribe loadingFinished: %w", err)
	}
	if st.failed, err = a.client.Network.LoadingFailed(a.ctx); err != nil {
		return nil, fmt.Errorf("subscribe loadingFailed: %w", err)
	}
	if a.opts.RawHeaders {
		if st.reqExtra, err = a.client.Network.RequestWillBeSentExtraInfo(a.ctx); err != nil {
			return nil, fmt.Errorf("subscribe requestWillBeSentExtraInfo: %w", err)
		}
		if st.respExtra, err = a.client.Network.ResponseReceivedExtraInfo(a.ctx); err != nil {
			return nil, fmt.Errorf("subscribe responseReceivedExtraInfo: %w", err)
		}
	}
	if a.opts.Intercept {
		if st.paused, err = a.client.Fetch.RequestPaused(a.ctx); err != nil {
			return nil, fmt.Errorf("subscribe requestPaused: %w", err)
		}
	}

	if err = rpcc.Sync(st.streams()...); err != nil {
		return nil, fmt.Errorf("sync streams: %w", err)
	}
	return st, nil
}

// consume 单协程按跨流到达序消费事件，出口即事件通道
func (a *Adapter) consume(st *streamSet) error {
	defer close(a.events)
	defer st.close()

	for {
		select {
		case <-a.ctx.Done():
			return nil
		case <-st.sent.Ready():
			ev, err := st.sent.Recv()
			if err != nil {
				return a.streamErr("requestWillBeSent", err)
			}
			a.onWillBeSent(ev)
		case <-st.resp.Ready():
			ev, err := st.resp.Recv()
			if err != nil {
				return a.streamErr("responseReceived", err)
			}
			a.onResponseReceived(ev)
		case <-st.data.Ready():
			ev, err := st.data.Recv()
			if err != nil {
				return a.streamErr("dataReceived", err)
			}
			a.send(&transport.DataReceived{
				RequestID:     string(ev.RequestID),
				ByteLength:    int64(ev.DataLength),
				EncodedLength: int64(ev.EncodedDataLength),
			})
		case <-st.finished.Ready():
			ev, err := st.finished.Recv()
			if err != nil {
				return a.streamErr("loadingFinished", err)
			}
			a.forgetRequest(string(ev.RequestID))
			a.send(&transport.LoadingFinished{
				RequestID: string(ev.RequestID),
				Transfer:  int64(ev.EncodedDataLength),
			})
		case <-st.failed.Ready():
			ev, err := st.failed.Recv()
			if err != nil {
				return a.streamErr("loadingFailed", err)
			}
			a.onLoadingFailed(ev)
		case <-ready(st.reqExtra):
			ev, err := st.reqExtra.Recv()
			if err != nil {
				return a.streamErr("requestWillBeSentExtraInfo", err)
			}
			a.send(&transport.RequestExtraInfo{
				RequestID: string(ev.RequestID),
				Headers:   decodeHeaders(ev.Headers),
			})
		case <-ready(st.respExtra):
			ev, err := st.respExtra.Recv()
			if err != nil {
				return a.streamErr("responseReceivedExtraInfo", err)
			}
			a.send(&transport.ResponseExtraInfo{
				RequestID:   string(ev.RequestID),
				Headers:     decodeHeaders(ev.Headers),
				HeadersSize: textLen(ev.HeadersText),
			})
		case <-ready(st.paused):
			ev, err := st.paused.Recv()
			if err != nil {
				return a.streamErr("requestPaused", err)
			}
			a.onPaused(ev)
		}
	}
}

// ready 可选流的就绪通道，未订阅时永不就绪
func ready(s rpcc.Stream) <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.Ready()
}

func (a *Adapter) streamErr(name string, err error) error {
	if a.ctx.Err() != nil {
		return nil
	}
	a.log.Err(err, "事件流中断", "stream", name)
	return fmt.Errorf("%s stream: %w", name, err)
}

func (a *Adapter) onWillBeSent(ev *network.RequestWillBeSentReply) {
	if !a.opts.Intercept {
		a.emitWillSend(ev, nil)
		return
	}

	id := string(ev.RequestID)
	a.mu.Lock()
	p, ok := a.pendingPaused[id]
	if ok {
		delete(a.pendingPaused, id)
	}
	if !ok {
		a.pendingSent[id] = ev
		a.mu.Unlock()
		return
	}
	if p.Request.URL != ev.Request.URL {
		// 留存的暂停事件属于同标识的前一跳，放行后等待本跳暂停
		a.pendingSent[id] = ev
		a.mu.Unlock()
		go a.continueQuiet(string(p.RequestID))
		return
	}
	a.mu.Unlock()
	a.emitWillSend(ev, p)
}

func (a *Adapter) onPaused(ev *fetch.RequestPausedReply) {
	if ev.NetworkID == nil || *ev.NetworkID == "" {
		go a.continueQuiet(string(ev.RequestID))
		return
	}

	id := string(*ev.NetworkID)
	a.mu.Lock()
	s, ok := a.pendingSent[id]
	if ok {
		delete(a.pendingSent, id)
	}
	if !ok {
		a.pendingPaused[id] = ev
		a.mu.Unlock()
		return
	}
	if s.Request.URL != ev.Request.URL {
		// 留存的请求事件属于前一跳，先按未拦截发布
		a.pendingPaused[id] = ev
		a.mu.Unlock()
		a.emitWillSend(s, nil)
		return
	}
	a.mu.Unlock()
	a.emitWillSend(s, ev)
}

func (a *Adapter) emitWillSend(ev *network.RequestWillBeSentReply, paused *fetch.RequestPausedReply) {
	out := &transport.WillSendRequest{
		RequestID:    string(ev.RequestID),
		DocumentURL:  ev.DocumentURL,
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		Headers:      decodeHeaders(ev.Request.Headers),
		ResourceType: string(ev.Type),
	}
	if ev.Request.PostData != nil {
		out.PostData = []byte(*ev.Request.PostData)
		out.HasPostData = true
	}
	if ev.Request.HasPostData != nil && *ev.Request.HasPostData {
		out.HasPostData = true
	}
	if ev.FrameID != nil {
		out.FrameID = string(*ev.FrameID)
	}
	if ev.RedirectResponse != nil {
		out.Redirect = redirectInfo(ev.RedirectResponse)
	}
	if paused != nil {
		out.InterceptionID = string(paused.RequestID)
		a.mu.Lock()
		a.interceptToNet[out.InterceptionID] = out.RequestID
		a.mu.Unlock()
	}
	a.send(out)
}

func (a *Adapter) onResponseReceived(ev *network.ResponseReceivedReply) {
	id := string(ev.RequestID)
	r := &ev.Response

	// 响应携带的线级请求头原文补记请求侧实测尺寸
	if a.opts.RawHeaders && len(r.RequestHeaders) > 0 {
		a.send(&transport.RequestExtraInfo{
			RequestID:   id,
			Headers:     decodeHeaders(r.RequestHeaders),
			HeadersSize: textLen(r.RequestHeadersText),
		})
	}

	a.mu.Lock()
	fromFulfill := a.fulfilled[id]
	delete(a.fulfilled, id)
	a.mu.Unlock()

	out := &transport.ResponseReceived{
		RequestID:   id,
		Status:      r.Status,
		StatusText:  r.StatusText,
		Headers:     decodeHeaders(r.Headers),
		MimeType:    r.MimeType,
		RemoteAddr:  remoteAddr(r),
		HeadersSize: textLen(r.HeadersText),
		FromFulfill: fromFulfill,
	}
	if r.Protocol != nil {
		out.Protocol = *r.Protocol
	}
	a.send(out)
}

func (a *Adapter) onLoadingFailed(ev *network.LoadingFailedReply) {
	a.forgetRequest(string(ev.RequestID))
	out := &transport.LoadingFailed{
		RequestID: string(ev.RequestID),
		Reason:    ev.ErrorText,
	}
	if ev.Canceled != nil {
		out.Canceled = *ev.Canceled
	}
	a.send(out)
}

// send 按序投递事件；通道满时阻塞以保持到达序完整
func (a *Adapter) send(ev transport.Event) {
	select {
	case a.events <- ev:
	case <-a.ctx.Done():
	}
}

// continueQuiet 放行无法配对的暂停请求
func (a *Adapter) continueQuiet(interceptID string) {
	if err := a.ContinueRequest(a.ctx, interceptID, nil); err != nil {
		a.log.Debug("放行无主暂停请求失败", "interceptID", interceptID, "error", err)
	}
}

func (a *Adapter) forgetRequest(id string) {
	a.mu.Lock()
	delete(a.pendingSent, id)
	delete(a.pendingPaused, id)
	delete(a.fulfilled, id)
	a.mu.Unlock()
}

func (a *Adapter) forgetIntercept(interceptID string) {
	a.mu.Lock()
	delete(a.interceptToNet, interceptID)
	a.mu.Unlock()
}

// ContinueRequest 放行请求，改写按协议指令下发
func (a *Adapter) ContinueRequest(ctx context.Context, interceptID string, ov *transport.ContinueOverrides) error {
	args := &fetch.ContinueRequestArgs{RequestID: fetch.RequestID(interceptID)}
	if ov != nil {
		args.URL = ov.URL
		args.Method = ov.Method
		if ov.Headers != nil {
			args.Headers = toHeaderEntries(ov.Headers)
		}
		if len(ov.PostData) > 0 {
			args.PostData = ov.PostData
		}
	}
	a.forgetIntercept(interceptID)
	return a.client.Fetch.ContinueRequest(ctx, args)
}

// FulfillRequest 以合成响应完成请求
func (a *Adapter) FulfillRequest(ctx context.Context, interceptID string, f *transport.Fulfillment) error {
	if f == nil {
		f = &transport.Fulfillment{Status: 200}
	}
	args := &fetch.FulfillRequestArgs{
		RequestID:    fetch.RequestID(interceptID),
		ResponseCode: f.Status,
	}
	if len(f.Headers) > 0 {
		args.ResponseHeaders = toHeaderEntries(f.Headers)
	}
	if len(f.Body) > 0 {
		args.Body = f.Body
	}

	a.mu.Lock()
	if netID, ok := a.interceptToNet[interceptID]; ok {
		a.fulfilled[netID] = true
		delete(a.interceptToNet, interceptID)
	}
	a.mu.Unlock()

	return a.client.Fetch.FulfillRequest(ctx, args)
}

// FailRequest 以协议错误码中止请求
func (a *Adapter) FailRequest(ctx context.Context, interceptID string, reason string) error {
	a.forgetIntercept(interceptID)
	return a.client.Fetch.FailRequest(ctx, &fetch.FailRequestArgs{
		RequestID:   fetch.RequestID(interceptID),
		ErrorReason: errorReason(reason),
	})
}

// ResponseBody 取回响应体；并发取回按请求标识合并为单飞
func (a *Adapter) ResponseBody(ctx context.Context, requestID string) ([]byte, error) {
	v, err, _ := a.bodies.Do(requestID, func() (any, error) {
		reply, err := a.client.Network.GetResponseBody(ctx, network.NewGetResponseBodyArgs(network.RequestID(requestID)))
		if err != nil {
			return nil, fmt.Errorf("get response body: %w", err)
		}
		if reply.Base64Encoded {
			return base64.StdEncoding.DecodeString(reply.Body)
		}
		return []byte(reply.Body), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
