package engine

import (
	"context"

	"cdpnetflow/pkg/traffic"
)

// WaitForRequest 阻塞等待首个满足谓词的请求；pred 为 nil 时匹配任意请求
func (e *Engine) WaitForRequest(ctx context.Context, pred func(*traffic.Request) bool) (*traffic.Request, error) {
	ch := make(chan *traffic.Request, 1)
	off := e.em.onRequest(func(r *traffic.Request) {
		if pred != nil && !pred(r) {
			return
		}
		select {
		case ch <- r:
		default:
		}
	})
	defer off()

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return nil, traffic.WaitError(ctx)
	}
}

// WaitForResponse 阻塞等待首个满足谓词的响应；pred 为 nil 时匹配任意响应
func (e *Engine) WaitForResponse(ctx context.Context, pred func(*traffic.Response) bool) (*traffic.Response, error) {
	ch := make(chan *traffic.Response, 1)
	off := e.em.onResponse(func(r *traffic.Response) {
		if pred != nil && !pred(r) {
			return
		}
		select {
		case ch <- r:
		default:
		}
	})
	defer off()

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return nil, traffic.WaitError(ctx)
	}
}
