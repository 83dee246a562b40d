package transport

import "cdpnetflow/pkg/traffic"

// Event 网络生命周期事件（密封联合，按到达序消费）
type Event interface {
	isNetworkEvent()
}

// RedirectInfo 重定向跳的响应载荷：关闭上一跳时使用
type RedirectInfo struct {
	Status      int
	StatusText  string
	Headers     []traffic.Header
	HeadersSize int64
	Transfer    int64
}

// WillSendRequest 请求即将发出；Redirect 非空表示本事件同时
// 关闭同 RequestID 的上一跳并开启新一跳；InterceptionID 非空
// 表示请求已在传输层挂起，等待决议
type WillSendRequest struct {
	RequestID      string
	DocumentURL    string
	URL            string
	Method         string
	Headers        []traffic.Header
	PostData       []byte
	HasPostData    bool
	ResourceType   string
	FrameID        string
	InterceptionID string
	Redirect       *RedirectInfo
}

// RequestExtraInfo 线级请求头补充信息，尽力而为、可晚到
type RequestExtraInfo struct {
	RequestID   string
	Headers     []traffic.Header
	HeadersSize int64
}

// ResponseReceived 响应头就绪
type ResponseReceived struct {
	RequestID   string
	Status      int
	StatusText  string
	Headers     []traffic.Header
	MimeType    string
	Protocol    string
	RemoteAddr  string
	HeadersSize int64
	FromFulfill bool
}

// ResponseExtraInfo 线级响应头补充信息，尽力而为、可晚到
type ResponseExtraInfo struct {
	RequestID   string
	Headers     []traffic.Header
	HeadersSize int64
}

// DataReceived 收到一段响应体数据
type DataReceived struct {
	RequestID     string
	ByteLength    int64
	EncodedLength int64
}

// LoadingFinished 请求正常完成
type LoadingFinished struct {
	RequestID string
	Transfer  int64
}

// LoadingFailed 请求失败终止
type LoadingFailed struct {
	RequestID string
	Reason    string
	Canceled  bool
}

func (*WillSendRequest) isNetworkEvent() {}

func (*RequestExtraInfo) isNetworkEvent() {}

func (*ResponseReceived) isNetworkEvent() {}

func (*ResponseExtraInfo) isNetworkEvent() {}

func (*DataReceived) isNetworkEvent() {}

func (*LoadingFinished) isNetworkEvent() {}

func (*LoadingFailed) isNetworkEvent() {}
