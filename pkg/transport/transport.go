package transport

import (
	"context"

	"cdpnetflow/pkg/traffic"
)

// ContinueOverrides 放行时发往传输层的改写；nil 字段表示不变，
// Headers 非 nil 时整组替换
type ContinueOverrides struct {
	URL      *string
	Method   *string
	Headers  []traffic.Header
	PostData []byte
}

// Fulfillment 发往传输层的合成响应
type Fulfillment struct {
	Status  int
	Headers []traffic.Header
	Body    []byte
}

// 中止原因标签，由具体传输层映射为协议错误码
const (
	AbortFailed               = "failed"
	AbortAborted              = "aborted"
	AbortTimedOut             = "timedout"
	AbortAccessDenied         = "accessdenied"
	AbortConnectionClosed     = "connectionclosed"
	AbortConnectionReset      = "connectionreset"
	AbortConnectionRefused    = "connectionrefused"
	AbortConnectionAborted    = "connectionaborted"
	AbortConnectionFailed     = "connectionfailed"
	AbortNameNotResolved      = "namenotresolved"
	AbortInternetDisconnected = "internetdisconnected"
	AbortAddressUnreachable   = "addressunreachable"
	AbortBlockedByClient      = "blockedbyclient"
	AbortBlockedByResponse    = "blockedbyresponse"
)

// Transport 传输层契约：生命周期事件来源与拦截决议动作。
// 事件通道由传输层在关闭时负责收口；决议动作以拦截标识寻址，
// 响应体以请求标识取回
type Transport interface {
	Events() <-chan Event
	ContinueRequest(ctx context.Context, interceptID string, ov *ContinueOverrides) error
	FulfillRequest(ctx context.Context, interceptID string, f *Fulfillment) error
	FailRequest(ctx context.Context, interceptID string, reason string) error
	ResponseBody(ctx context.Context, requestID string) ([]byte, error)
}
