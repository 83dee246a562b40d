package traffic

import (
	"context"
	"errors"
)

var (
	// ErrTimeout 等待类操作超出时限
	ErrTimeout = errors.New("traffic: wait timed out")
	// ErrRouteResolved 路由被二次决议
	ErrRouteResolved = errors.New("traffic: route already resolved")
	// ErrBodyUnavailable 传输层无法提供响应体
	ErrBodyUnavailable = errors.New("traffic: response body unavailable")
)

// FailureError 请求终止错误，Aborted 区分拦截中止与网络失败
type FailureError struct {
	Reason  string
	Aborted bool
}

func (e *FailureError) Error() string {
	if e.Aborted {
		return "request aborted: " + e.Reason
	}
	return "request failed: " + e.Reason
}

// WaitError 将上下文到期折算为统一的超时错误
func WaitError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
