package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"

	cdpadapter "cdpnetflow/internal/adapter/cdp"
	"cdpnetflow/internal/engine"
	"cdpnetflow/internal/logger"
)

// Target 调试端点上可附着的目标概览
type Target struct {
	ID    string
	Type  string
	Title string
	URL   string
}

// Session 附着在单个目标上的捕获会话
type Session struct {
	ID        string
	Target    Target
	StartedAt time.Time

	conn    *rpcc.Conn
	adapter *cdpadapter.Adapter
	engine  *engine.Engine
	log     logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Engine 会话的流量引擎
func (s *Session) Engine() *engine.Engine { return s.engine }

// Close 依序收口：先停适配器断开事件源，再停引擎，最后断连接
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.adapter.Close()
		s.engine.Close()
		if err := s.conn.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.log.Info("捕获会话已关闭", "sessionID", s.ID, "target", s.Target.ID)
	})
	return s.closeErr
}

// Manager 会话生命周期管理器，按会话标识注册与注销
type Manager struct {
	devtoolsURL string
	log         logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器
func NewManager(devtoolsURL string, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		devtoolsURL: devtoolsURL,
		log:         l,
		sessions:    make(map[string]*Session),
	}
}

// ListTargets 枚举调试端点上的目标
func (m *Manager) ListTargets(ctx context.Context) ([]Target, error) {
	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		out = append(out, Target{
			ID:    string(t.ID),
			Type:  string(t.Type),
			Title: t.Title,
			URL:   t.URL,
		})
	}
	return out, nil
}

// Attach 附着目标并启动捕获会话。targetID 为空时取第一个页面目标。
// ctx 只约束附着过程，会话存续不受其影响
func (m *Manager) Attach(ctx context.Context, targetID string, opts cdpadapter.Options) (*Session, error) {
	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	var sel *devtool.Target
	for i := range targets {
		if targetID != "" {
			if string(targets[i].ID) == targetID {
				sel = targets[i]
				break
			}
			continue
		}
		if targets[i].Type == devtool.Page {
			sel = targets[i]
			break
		}
	}
	if sel == nil {
		return nil, fmt.Errorf("no attachable target: %q", targetID)
	}
	if sel.WebSocketDebuggerURL == "" {
		// 已有调试客户端占用的目标不暴露通道
		return nil, fmt.Errorf("target %s has no debugger url", sel.ID)
	}

	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("dial debugger: %w", err)
	}

	ad := cdpadapter.New(cdp.NewClient(conn), m.log, opts)
	if err := ad.Start(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	eng := engine.New(engine.Config{Transport: ad, Logger: m.log})
	eng.Start()

	s := &Session{
		ID: uuid.NewString(),
		Target: Target{
			ID:    string(sel.ID),
			Type:  string(sel.Type),
			Title: sel.Title,
			URL:   sel.URL,
		},
		StartedAt: time.Now(),
		conn:      conn,
		adapter:   ad,
		engine:    eng,
		log:       m.log,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Info("捕获会话已附着", "sessionID", s.ID, "target", s.Target.ID, "url", s.Target.URL)
	return s, nil
}

// Get 获取会话
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Detach 关闭并注销会话
func (m *Manager) Detach(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such session: %s", id)
	}
	return s.Close()
}

// List 返回所有活动会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}

// CloseAll 关闭全部会话，返回首个错误
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var first error
	for _, s := range all {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
