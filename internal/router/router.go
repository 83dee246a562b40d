package router

import (
	"regexp"
	"strings"
	"sync"

	"cdpnetflow/pkg/traffic"
)

// Router 拦截路由表：按注册顺序求值，首个命中生效
type Router struct {
	mu      sync.Mutex
	entries []entry
	seq     int64
}

type entry struct {
	id      int64
	pattern string
	match   func(*traffic.Request) bool
	handler traffic.RouteHandler
}

// New 创建空路由表
func New() *Router {
	return &Router{}
}

// Route 注册 URL 通配模式路由；* 匹配任意串，? 匹配单个字符
func (r *Router) Route(pattern string, h traffic.RouteHandler) error {
	re, err := globRegexp(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.entries = append(r.entries, entry{
		id:      r.seq,
		pattern: pattern,
		match:   func(req *traffic.Request) bool { return re.MatchString(req.URL()) },
		handler: h,
	})
	return nil
}

// RoutePredicate 注册谓词路由，返回注销闭包
func (r *Router) RoutePredicate(pred func(*traffic.Request) bool, h traffic.RouteHandler) func() {
	r.mu.Lock()
	r.seq++
	id := r.seq
	r.entries = append(r.entries, entry{id: id, match: pred, handler: h})
	r.mu.Unlock()
	return func() { r.removeID(id) }
}

// Unroute 移除该模式下注册的全部路由
func (r *Router) Unroute(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := r.entries[:0]
	for _, e := range r.entries {
		if e.pattern != pattern || e.pattern == "" {
			keep = append(keep, e)
		}
	}
	r.entries = keep
}

func (r *Router) removeID(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := r.entries[:0]
	for _, e := range r.entries {
		if e.id != id {
			keep = append(keep, e)
		}
	}
	r.entries = keep
}

// Len 当前路由条目数
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Match 返回首个命中路由的处理器；求值基于注册表快照，
// 与并发注册/注销互不影响
func (r *Router) Match(req *traffic.Request) (traffic.RouteHandler, bool) {
	r.mu.Lock()
	snapshot := make([]entry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	for i := range snapshot {
		if snapshot[i].match(req) {
			return snapshot[i].handler, true
		}
	}
	return nil, false
}

// globRegexp 将 URL 通配模式翻译为锚定正则并走编译缓存
func globRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, c := range pattern {
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexCache.Get(b.String())
}
