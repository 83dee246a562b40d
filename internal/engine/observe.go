package engine

import (
	"cdpnetflow/pkg/traffic"
)

// OnRequest 订阅请求事件，返回退订函数
func (e *Engine) OnRequest(fn func(*traffic.Request)) func() {
	return e.em.onRequest(fn)
}

// OnResponse 订阅响应事件，返回退订函数
func (e *Engine) OnResponse(fn func(*traffic.Response)) func() {
	return e.em.onResponse(fn)
}

// OnRequestFinished 订阅请求完成事件，返回退订函数
func (e *Engine) OnRequestFinished(fn func(*traffic.Request)) func() {
	return e.em.onFinished(fn)
}

// OnRequestFailed 订阅请求失败事件，返回退订函数
func (e *Engine) OnRequestFailed(fn func(*traffic.Request)) func() {
	return e.em.onFailed(fn)
}

// Route 注册 URL 通配模式路由
func (e *Engine) Route(pattern string, h traffic.RouteHandler) error {
	return e.router.Route(pattern, h)
}

// RoutePredicate 注册谓词路由，返回退订函数
func (e *Engine) RoutePredicate(pred func(*traffic.Request) bool, h traffic.RouteHandler) func() {
	return e.router.RoutePredicate(pred, h)
}

// Unroute 注销指定模式的全部路由
func (e *Engine) Unroute(pattern string) {
	e.router.Unroute(pattern)
}
