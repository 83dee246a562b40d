package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	cdpadapter "cdpnetflow/internal/adapter/cdp"
	"cdpnetflow/internal/config"
	"cdpnetflow/internal/logger"
	"cdpnetflow/internal/session"
	"cdpnetflow/internal/storage"
	"cdpnetflow/pkg/traffic"
)

// Service 服务编排层：装配存储、会话管理与落库订阅
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	sessions *session.Manager
	recorder *storage.Recorder

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// New 按配置装配服务，打开存储并就绪会话管理器
func New(l logger.Logger, cfg *config.Config) (*Service, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	db, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		log:      l,
		sessions: session.NewManager(cfg.DevTools.URL, l),
		recorder: storage.NewRecorder(db, l, cfg.Capture.BodyLimit),
		monitors: make(map[string]*Monitor),
	}, nil
}

// ListTargets 枚举调试端点上的目标
func (s *Service) ListTargets(ctx context.Context) ([]session.Target, error) {
	return s.sessions.ListTargets(ctx)
}

// Attach 附着目标并返回监控句柄；终结的流量自动落库
func (s *Service) Attach(ctx context.Context, targetID string) (*Monitor, error) {
	if ms := s.cfg.DevTools.AttachTimeoutMS; ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}
	sess, err := s.sessions.Attach(ctx, targetID, cdpadapter.Options{
		Intercept:  s.cfg.Capture.Intercept,
		RawHeaders: s.cfg.Capture.RawHeaders,
	})
	if err != nil {
		return nil, err
	}

	m := &Monitor{svc: s, sess: sess}
	m.offFinished = sess.Engine().OnRequestFinished(func(req *traffic.Request) {
		s.recorder.Record(sess.ID, req)
	})
	m.offFailed = sess.Engine().OnRequestFailed(func(req *traffic.Request) {
		s.recorder.Record(sess.ID, req)
	})

	s.mu.Lock()
	s.monitors[sess.ID] = m
	s.mu.Unlock()
	return m, nil
}

// Monitor 获取已附着会话的监控句柄
func (s *Service) Monitor(sessionID string) (*Monitor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[sessionID]
	return m, ok
}

// Detach 关闭监控并注销会话
func (s *Service) Detach(sessionID string) error {
	s.mu.Lock()
	m, ok := s.monitors[sessionID]
	delete(s.monitors, sessionID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such session: %s", sessionID)
	}
	return m.close()
}

// Close 关闭全部会话并排空落库队列
func (s *Service) Close() error {
	s.mu.Lock()
	all := make([]*Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		all = append(all, m)
	}
	s.monitors = make(map[string]*Monitor)
	s.mu.Unlock()

	var first error
	for _, m := range all {
		if err := m.close(); err != nil && first == nil {
			first = err
		}
	}
	s.recorder.Close()
	return first
}

// Monitor 单个会话的监控句柄，转发流量引擎的路由与观察能力
type Monitor struct {
	svc  *Service
	sess *session.Session

	offFinished func()
	offFailed   func()
}

// SessionID 会话标识
func (m *Monitor) SessionID() string { return m.sess.ID }

// Target 附着的目标概览
func (m *Monitor) Target() session.Target { return m.sess.Target }

// Route 注册 URL 通配模式路由
func (m *Monitor) Route(pattern string, h traffic.RouteHandler) error {
	return m.sess.Engine().Route(pattern, h)
}

// RoutePredicate 注册谓词路由，返回退订函数
func (m *Monitor) RoutePredicate(pred func(*traffic.Request) bool, h traffic.RouteHandler) func() {
	return m.sess.Engine().RoutePredicate(pred, h)
}

// Unroute 注销指定模式的全部路由
func (m *Monitor) Unroute(pattern string) {
	m.sess.Engine().Unroute(pattern)
}

// OnRequest 订阅请求事件，返回退订函数
func (m *Monitor) OnRequest(fn func(*traffic.Request)) func() {
	return m.sess.Engine().OnRequest(fn)
}

// OnResponse 订阅响应事件，返回退订函数
func (m *Monitor) OnResponse(fn func(*traffic.Response)) func() {
	return m.sess.Engine().OnResponse(fn)
}

// OnRequestFinished 订阅请求完成事件，返回退订函数
func (m *Monitor) OnRequestFinished(fn func(*traffic.Request)) func() {
	return m.sess.Engine().OnRequestFinished(fn)
}

// OnRequestFailed 订阅请求失败事件，返回退订函数
func (m *Monitor) OnRequestFailed(fn func(*traffic.Request)) func() {
	return m.sess.Engine().OnRequestFailed(fn)
}

// WaitForRequest 等待首个满足谓词的请求
func (m *Monitor) WaitForRequest(ctx context.Context, pred func(*traffic.Request) bool) (*traffic.Request, error) {
	return m.sess.Engine().WaitForRequest(ctx, pred)
}

// WaitForResponse 等待首个满足谓词的响应
func (m *Monitor) WaitForResponse(ctx context.Context, pred func(*traffic.Response) bool) (*traffic.Response, error) {
	return m.sess.Engine().WaitForResponse(ctx, pred)
}

func (m *Monitor) close() error {
	m.offFinished()
	m.offFailed()
	return m.svc.sessions.Detach(m.sess.ID)
}
