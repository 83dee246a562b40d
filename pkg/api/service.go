package api

import (
	"context"

	"github.com/google/uuid"

	"cdpnetflow/internal/config"
	"cdpnetflow/internal/engine"
	"cdpnetflow/internal/logger"
	"cdpnetflow/internal/service"
	"cdpnetflow/pkg/traffic"
	"cdpnetflow/pkg/transport"
)

// Target 调试端点上可附着的目标概览
type Target struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Service 服务接口
type Service interface {
	// ListTargets 枚举调试端点上的目标
	ListTargets(ctx context.Context) ([]Target, error)

	// Attach 附着目标并开始捕获，返回会话监控句柄
	Attach(ctx context.Context, targetID string) (Monitor, error)

	// Detach 停止捕获并注销会话
	Detach(sessionID string) error

	// Close 关闭全部会话并排空落库队列
	Close() error
}

// Monitor 单个捕获会话的监控句柄
type Monitor interface {
	// SessionID 会话标识
	SessionID() string

	// Route 注册 URL 通配模式路由
	Route(pattern string, h traffic.RouteHandler) error

	// RoutePredicate 注册谓词路由，返回退订函数
	RoutePredicate(pred func(*traffic.Request) bool, h traffic.RouteHandler) func()

	// Unroute 注销指定模式的全部路由
	Unroute(pattern string)

	// OnRequest 订阅请求事件，返回退订函数
	OnRequest(fn func(*traffic.Request)) func()

	// OnResponse 订阅响应事件，返回退订函数
	OnResponse(fn func(*traffic.Response)) func()

	// OnRequestFinished 订阅请求完成事件，返回退订函数
	OnRequestFinished(fn func(*traffic.Request)) func()

	// OnRequestFailed 订阅请求失败事件，返回退订函数
	OnRequestFailed(fn func(*traffic.Request)) func()

	// WaitForRequest 等待首个满足谓词的请求
	WaitForRequest(ctx context.Context, pred func(*traffic.Request) bool) (*traffic.Request, error)

	// WaitForResponse 等待首个满足谓词的响应
	WaitForResponse(ctx context.Context, pred func(*traffic.Response) bool) (*traffic.Response, error)

	// Close 停止捕获并注销会话
	Close() error
}

// NewService 创建并返回服务接口实现
func NewService(l logger.Logger, cfg *config.Config) (Service, error) {
	inner, err := service.New(l, cfg)
	if err != nil {
		return nil, err
	}
	return &facade{inner: inner}, nil
}

type facade struct {
	inner *service.Service
}

func (f *facade) ListTargets(ctx context.Context) ([]Target, error) {
	targets, err := f.inner.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		out = append(out, Target{ID: t.ID, Type: t.Type, Title: t.Title, URL: t.URL})
	}
	return out, nil
}

func (f *facade) Attach(ctx context.Context, targetID string) (Monitor, error) {
	m, err := f.inner.Attach(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return &monitor{svc: f.inner, inner: m}, nil
}

func (f *facade) Detach(sessionID string) error { return f.inner.Detach(sessionID) }

func (f *facade) Close() error { return f.inner.Close() }

type monitor struct {
	svc   *service.Service
	inner *service.Monitor
}

func (m *monitor) SessionID() string { return m.inner.SessionID() }

func (m *monitor) Route(pattern string, h traffic.RouteHandler) error {
	return m.inner.Route(pattern, h)
}

func (m *monitor) RoutePredicate(pred func(*traffic.Request) bool, h traffic.RouteHandler) func() {
	return m.inner.RoutePredicate(pred, h)
}

func (m *monitor) Unroute(pattern string) { m.inner.Unroute(pattern) }

func (m *monitor) OnRequest(fn func(*traffic.Request)) func() { return m.inner.OnRequest(fn) }

func (m *monitor) OnResponse(fn func(*traffic.Response)) func() { return m.inner.OnResponse(fn) }

func (m *monitor) OnRequestFinished(fn func(*traffic.Request)) func() {
	return m.inner.OnRequestFinished(fn)
}

func (m *monitor) OnRequestFailed(fn func(*traffic.Request)) func() {
	return m.inner.OnRequestFailed(fn)
}

func (m *monitor) WaitForRequest(ctx context.Context, pred func(*traffic.Request) bool) (*traffic.Request, error) {
	return m.inner.WaitForRequest(ctx, pred)
}

func (m *monitor) WaitForResponse(ctx context.Context, pred func(*traffic.Response) bool) (*traffic.Response, error) {
	return m.inner.WaitForResponse(ctx, pred)
}

func (m *monitor) Close() error { return m.svc.Detach(m.inner.SessionID()) }

// NewMonitor 在调用方自备的传输之上内嵌流量引擎。
// 不创建会话也不落库，适配器的生命周期仍归调用方
func NewMonitor(t transport.Transport, l logger.Logger) Monitor {
	eng := engine.New(engine.Config{Transport: t, Logger: l})
	eng.Start()
	return &embedded{id: uuid.NewString(), eng: eng}
}

type embedded struct {
	id  string
	eng *engine.Engine
}

func (m *embedded) SessionID() string { return m.id }

func (m *embedded) Route(pattern string, h traffic.RouteHandler) error {
	return m.eng.Route(pattern, h)
}

func (m *embedded) RoutePredicate(pred func(*traffic.Request) bool, h traffic.RouteHandler) func() {
	return m.eng.RoutePredicate(pred, h)
}

func (m *embedded) Unroute(pattern string) { m.eng.Unroute(pattern) }

func (m *embedded) OnRequest(fn func(*traffic.Request)) func() { return m.eng.OnRequest(fn) }

func (m *embedded) OnResponse(fn func(*traffic.Response)) func() { return m.eng.OnResponse(fn) }

func (m *embedded) OnRequestFinished(fn func(*traffic.Request)) func() {
	return m.eng.OnRequestFinished(fn)
}

func (m *embedded) OnRequestFailed(fn func(*traffic.Request)) func() {
	return m.eng.OnRequestFailed(fn)
}

func (m *embedded) WaitForRequest(ctx context.Context, pred func(*traffic.Request) bool) (*traffic.Request, error) {
	return m.eng.WaitForRequest(ctx, pred)
}

func (m *embedded) WaitForResponse(ctx context.Context, pred func(*traffic.Response) bool) (*traffic.Response, error) {
	return m.eng.WaitForResponse(ctx, pred)
}

func (m *embedded) Close() error {
	m.eng.Close()
	return nil
}
