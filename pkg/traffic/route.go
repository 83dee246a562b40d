package traffic

import (
	"context"
	"sync"

	"github.com/tidwall/sjson"
)

// RouteHandler 路由处理函数，负责对挂起请求给出决议
type RouteHandler func(*Route)

// Overrides 放行时对请求的改写；指针字段为可选覆盖
type Overrides struct {
	URL           *string
	Method        *string
	Headers       []Header
	RemoveHeaders []string
	PostData      []byte
	JSONPatches   []JSONPatch
}

// JSONPatch 基于请求体的单条 JSON 路径改写
type JSONPatch struct {
	Path  string
	Value any
}

// EffectivePostData 计算改写后的请求体；返回 nil 表示请求体不变
func (o *Overrides) EffectivePostData(base []byte) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	if o.PostData == nil && len(o.JSONPatches) == 0 {
		return nil, nil
	}
	data := base
	if o.PostData != nil {
		data = o.PostData
	}
	for _, p := range o.JSONPatches {
		var err error
		data, err = sjson.SetBytes(data, p.Path, p.Value)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Fulfillment 以合成响应完成请求
type Fulfillment struct {
	Status      int
	Headers     []Header
	ContentType string
	Body        []byte
}

// RouteResolver 路由决议的执行方（由调度层实现）
type RouteResolver interface {
	ContinueRoute(ctx context.Context, rt *Route, ov *Overrides) error
	FulfillRoute(ctx context.Context, rt *Route, f *Fulfillment) error
	AbortRoute(ctx context.Context, rt *Route, reason string) error
}

// Route 网络分发前的挂起请求；三种决议互斥且仅允许一次，
// 处理器归还前未决议的请求保持挂起
type Route struct {
	req      *Request
	wireID   string
	resolver RouteResolver

	mu       sync.Mutex
	resolved bool
}

// NewRoute 创建路由对象（调度层在命中处理器时调用）
func NewRoute(req *Request, wireID string, resolver RouteResolver) *Route {
	return &Route{req: req, wireID: wireID, resolver: resolver}
}

// Request 被挂起的请求实体
func (r *Route) Request() *Request { return r.req }

// WireID 传输层拦截通道标识
func (r *Route) WireID() string { return r.wireID }

// Resolved 是否已给出决议
func (r *Route) Resolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

func (r *Route) claim() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return ErrRouteResolved
	}
	r.resolved = true
	return nil
}

// Continue 放行请求，可携带改写
func (r *Route) Continue(ctx context.Context, ov *Overrides) error {
	if err := r.claim(); err != nil {
		return err
	}
	return r.resolver.ContinueRoute(ctx, r, ov)
}

// Fulfill 以合成响应完成请求，不再触达网络
func (r *Route) Fulfill(ctx context.Context, f *Fulfillment) error {
	if err := r.claim(); err != nil {
		return err
	}
	return r.resolver.FulfillRoute(ctx, r, f)
}

// Abort 中止请求；reason 为空时按 failed 处理
func (r *Route) Abort(ctx context.Context, reason string) error {
	if err := r.claim(); err != nil {
		return err
	}
	return r.resolver.AbortRoute(ctx, r, reason)
}
