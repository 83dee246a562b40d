package traffic

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
)

// ResponseSeed 创建响应实体的初始数据
type ResponseSeed struct {
	Status      int
	StatusText  string
	Headers     []Header
	MimeType    string
	Protocol    string
	RemoteAddr  string
	HeadersSize int64
	FromFulfill bool
}

// Response 单次请求的响应实体，与请求一一对应；
// 重定向的每一跳都是独立的请求/响应对
type Response struct {
	request *Request

	status      int
	statusText  string
	mimeType    string
	protocol    string
	remoteAddr  string
	fromFulfill bool

	mu          sync.Mutex
	headers     *HeaderSet
	rawHeaders  *HeaderSet
	headersSize int64
	bodyWire    int64
	transfer    int64
	failure     *FailureError

	body *BodyBuffer

	finished chan struct{}
	finOnce  sync.Once
}

// NewResponse 创建响应实体并与请求绑定数据（不触发事件）
func NewResponse(req *Request, seed ResponseSeed) *Response {
	return &Response{
		request:     req,
		status:      seed.Status,
		statusText:  seed.StatusText,
		mimeType:    seed.MimeType,
		protocol:    seed.Protocol,
		remoteAddr:  seed.RemoteAddr,
		fromFulfill: seed.FromFulfill,
		headers:     NewHeaderSet(seed.Headers),
		headersSize: seed.HeadersSize,
		body:        NewBodyBuffer(),
		finished:    make(chan struct{}),
	}
}

// Request 对应的请求实体
func (r *Response) Request() *Request { return r.request }

// URL 响应对应的请求地址
func (r *Response) URL() string { return r.request.URL() }

// Status 状态码
func (r *Response) Status() int { return r.status }

// StatusText 状态描述
func (r *Response) StatusText() string { return r.statusText }

// OK 状态码是否属于成功区间
func (r *Response) OK() bool {
	return r.status == 0 || (r.status >= 200 && r.status < 300)
}

// MimeType 响应媒体类型
func (r *Response) MimeType() string { return r.mimeType }

// Protocol 协商出的应用层协议
func (r *Response) Protocol() string { return r.protocol }

// RemoteAddr 远端地址
func (r *Response) RemoteAddr() string { return r.remoteAddr }

// FromFulfill 是否由拦截合成
func (r *Response) FromFulfill() bool { return r.fromFulfill }

// Headers 处理后的响应头
func (r *Response) Headers() *HeaderSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers
}

// RawHeaders 线级原始响应头；传输层未提供时回退为处理后头部
func (r *Response) RawHeaders() *HeaderSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rawHeaders != nil {
		return r.rawHeaders
	}
	return r.headers
}

// HeaderValue 首个匹配头部的值，未命中为空串
func (r *Response) HeaderValue(name string) string {
	v, _ := r.Headers().Get(name)
	return v
}

// Finished 挂起至响应终态；失败时返回 FailureError
func (r *Response) Finished(ctx context.Context) error {
	select {
	case <-r.finished:
	case <-ctx.Done():
		return WaitError(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		return r.failure
	}
	return nil
}

// Body 等待终态后返回完整响应体
func (r *Response) Body(ctx context.Context) ([]byte, error) {
	if err := r.Finished(ctx); err != nil {
		return nil, err
	}
	return r.body.Bytes(ctx)
}

// Text 等待终态后以文本返回响应体
func (r *Response) Text(ctx context.Context) (string, error) {
	data, err := r.Body(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// JSON 等待终态后将响应体解析为 JSON 文档
func (r *Response) JSON(ctx context.Context) (gjson.Result, error) {
	if err := r.Finished(ctx); err != nil {
		return gjson.Result{}, err
	}
	return r.body.JSON(ctx)
}

// Buffer 响应体缓冲区（供调度层与测试直接推进）
func (r *Response) Buffer() *BodyBuffer { return r.body }

// AttachRawHeaders 记录传输层提供的原始响应头与实测头部字节数
func (r *Response) AttachRawHeaders(pairs []Header, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pairs != nil {
		r.rawHeaders = NewHeaderSet(pairs)
	}
	if size > 0 {
		r.headersSize = size
	}
}

// AddChunk 记录一段响应体的线级编码字节数
func (r *Response) AddChunk(encodedLen int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodyWire += encodedLen
}

// FinalizeBodyWith 设置响应体的惰性取回来源
func (r *Response) FinalizeBodyWith(pull func(context.Context) ([]byte, error)) {
	r.body.FinalizeWith(pull)
}

// FinalizeBodyBytes 以给定内容直接终结响应体
func (r *Response) FinalizeBodyBytes(p []byte) {
	r.body.FinalizeBytes(p)
}

// MarkFinished 标记响应正常终态并级联推进请求实体
func (r *Response) MarkFinished(transfer int64) {
	r.mu.Lock()
	if transfer > 0 {
		r.transfer = transfer
	}
	r.mu.Unlock()
	if !r.body.Sealed() {
		r.body.Finalize()
	}
	r.finOnce.Do(func() { close(r.finished) })
	r.request.MarkFinished()
}

// markFailed 由请求实体级联调用
func (r *Response) markFailed(f *FailureError) {
	r.mu.Lock()
	if r.failure == nil {
		r.failure = f
	}
	r.mu.Unlock()
	r.body.Fail(f)
	r.finOnce.Do(func() { close(r.finished) })
}

func (r *Response) headersSizeNow() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headersSize
}

func (r *Response) bodyWireNow() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodyWire
}

func (r *Response) transferNow() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transfer
}
