package traffic

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// 资源类型标签，统一小写
const (
	ResourceDocument    = "document"
	ResourceStylesheet  = "stylesheet"
	ResourceImage       = "image"
	ResourceMedia       = "media"
	ResourceFont        = "font"
	ResourceScript      = "script"
	ResourceTextTrack   = "texttrack"
	ResourceXHR         = "xhr"
	ResourceFetch       = "fetch"
	ResourceEventSource = "eventsource"
	ResourceWebSocket   = "websocket"
	ResourceManifest    = "manifest"
	ResourceOther       = "other"
)

// NormalizeResourceType 将协议层资源类型折算为小写标签
func NormalizeResourceType(t string) string {
	if t == "" {
		return ResourceOther
	}
	return strings.ToLower(t)
}

// Sizes 单次往返的字节计量；头部尺寸来自传输层实测，
// 无法提供的分量为 0，恒有 TransferSize >= HeadersSize+BodySize
type Sizes struct {
	RequestHeadersSize   int64 `json:"requestHeadersSize"`
	RequestBodySize      int64 `json:"requestBodySize"`
	ResponseHeadersSize  int64 `json:"responseHeadersSize"`
	ResponseBodySize     int64 `json:"responseBodySize"`
	ResponseTransferSize int64 `json:"responseTransferSize"`
}

// RequestSeed 创建请求实体的初始数据
type RequestSeed struct {
	WireID       string
	DocumentURL  string
	URL          string
	Method       string
	Headers      []Header
	PostData     []byte
	HasPostData  bool
	ResourceType string
	FrameID      string
}

// Request 单次网络请求实体；由调度层创建并推进状态，
// 对外只读，等待类访问在终态前挂起
type Request struct {
	id           int64
	wireID       string
	documentURL  string
	resourceType string
	frameID      string
	startedAt    time.Time

	mu          sync.Mutex
	url         string
	method      string
	headers     *HeaderSet
	rawHeaders  *HeaderSet
	headersSize int64
	postData    []byte
	hasPostData bool

	redirectedFrom *Request
	redirectedTo   *Request

	resp        *Response
	failure     *FailureError
	completedAt time.Time

	respReady chan struct{}
	respOnce  sync.Once
	done      chan struct{}
	doneOnce  sync.Once
}

// NewRequest 创建请求实体，id 由调度层单调分配
func NewRequest(id int64, seed RequestSeed) *Request {
	r := &Request{
		id:           id,
		wireID:       seed.WireID,
		documentURL:  seed.DocumentURL,
		url:          seed.URL,
		method:       seed.Method,
		headers:      NewHeaderSet(seed.Headers),
		resourceType: NormalizeResourceType(seed.ResourceType),
		frameID:      seed.FrameID,
		startedAt:    time.Now(),
		respReady:    make(chan struct{}),
		done:         make(chan struct{}),
	}
	if seed.HasPostData || len(seed.PostData) > 0 {
		r.hasPostData = true
		r.postData = seed.PostData
	}
	return r
}

// ID 实体标识，创建序单调递增
func (r *Request) ID() int64 { return r.id }

// WireID 传输层请求标识
func (r *Request) WireID() string { return r.wireID }

// DocumentURL 发起该请求的文档地址
func (r *Request) DocumentURL() string { return r.documentURL }

// FrameID 所属帧的查找键（弱引用，不持有帧结构）
func (r *Request) FrameID() string { return r.frameID }

// ResourceType 资源类型标签
func (r *Request) ResourceType() string { return r.resourceType }

// IsNavigationRequest 是否导航请求；重定向各跳分类一致
func (r *Request) IsNavigationRequest() bool { return r.resourceType == ResourceDocument }

// StartedAt 实体创建时刻
func (r *Request) StartedAt() time.Time { return r.startedAt }

// CompletedAt 终态时刻，未完成时为零值
func (r *Request) CompletedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt
}

// URL 当前请求地址（放行改写后反映实际发出的值）
func (r *Request) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

// Method 当前请求方法
func (r *Request) Method() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.method
}

// Headers 处理后的请求头
func (r *Request) Headers() *HeaderSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers
}

// RawHeaders 线级原始请求头；传输层未提供时回退为处理后头部
func (r *Request) RawHeaders() *HeaderSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rawHeaders != nil {
		return r.rawHeaders
	}
	return r.headers
}

// HeaderValue 首个匹配头部的值，未命中为空串
func (r *Request) HeaderValue(name string) string {
	v, _ := r.Headers().Get(name)
	return v
}

// PostData 请求体文本；第二返回值指示请求体是否存在
func (r *Request) PostData() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasPostData {
		return "", false
	}
	return string(r.postData), true
}

// PostDataBuffer 请求体原始字节，nil 表示无请求体
func (r *Request) PostDataBuffer() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasPostData {
		return nil
	}
	cp := make([]byte, len(r.postData))
	copy(cp, r.postData)
	return cp
}

// PostDataJSON 请求体的 JSON 视图；无请求体或非法 JSON 时为 Null 结果
func (r *Request) PostDataJSON() gjson.Result {
	r.mu.Lock()
	data, has := r.postData, r.hasPostData
	r.mu.Unlock()
	if !has || !gjson.ValidBytes(data) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(data)
}

// RedirectedFrom 由哪次请求重定向而来，链首为 nil
func (r *Request) RedirectedFrom() *Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirectedFrom
}

// RedirectedTo 重定向到的下一跳请求，链尾为 nil
func (r *Request) RedirectedTo() *Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirectedTo
}

// Failure 终止原因文本，未失败时为空串
func (r *Request) Failure() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure == nil {
		return ""
	}
	return r.failure.Reason
}

// Response 等待并返回对应响应；请求失败或中止时返回 FailureError
func (r *Request) Response(ctx context.Context) (*Response, error) {
	select {
	case <-r.respReady:
	case <-ctx.Done():
		return nil, WaitError(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resp != nil {
		return r.resp, nil
	}
	if r.failure != nil {
		return nil, r.failure
	}
	return nil, &FailureError{Reason: "no response"}
}

// Sizes 等待终态后返回字节计量
func (r *Request) Sizes(ctx context.Context) (Sizes, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return Sizes{}, WaitError(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sz := Sizes{
		RequestHeadersSize: r.headersSize,
		RequestBodySize:    int64(len(r.postData)),
	}
	if r.resp != nil {
		sz.ResponseHeadersSize = r.resp.headersSizeNow()
		sz.ResponseBodySize = r.resp.bodyWireNow()
		sz.ResponseTransferSize = r.resp.transferNow()
	}
	return sz, nil
}

// AttachRedirectedFrom 建立与上一跳的双向链接（调度层在发布前调用）
func (r *Request) AttachRedirectedFrom(prev *Request) {
	if prev == nil {
		return
	}
	r.mu.Lock()
	r.redirectedFrom = prev
	r.mu.Unlock()
	prev.mu.Lock()
	prev.redirectedTo = r
	prev.mu.Unlock()
}

// AttachRawHeaders 记录传输层提供的原始请求头与实测头部字节数
func (r *Request) AttachRawHeaders(pairs []Header, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pairs != nil {
		r.rawHeaders = NewHeaderSet(pairs)
	}
	if size > 0 {
		r.headersSize = size
	}
}

// AttachResponse 绑定响应并唤醒等待者
func (r *Request) AttachResponse(resp *Response) {
	r.mu.Lock()
	r.resp = resp
	r.mu.Unlock()
	r.respOnce.Do(func() { close(r.respReady) })
}

// ApplyOverrides 放行改写生效后更新实体快照
func (r *Request) ApplyOverrides(ov *Overrides, postData []byte) {
	if ov == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ov.URL != nil {
		r.url = *ov.URL
	}
	if ov.Method != nil {
		r.method = *ov.Method
	}
	if len(ov.Headers) > 0 || len(ov.RemoveHeaders) > 0 {
		r.headers = r.headers.Merge(ov.Headers, ov.RemoveHeaders)
	}
	if postData != nil {
		r.postData = postData
		r.hasPostData = true
	}
}

// MarkFinished 标记请求正常终态（由响应侧推进时调用）
func (r *Request) MarkFinished() {
	r.mu.Lock()
	if r.completedAt.IsZero() {
		r.completedAt = time.Now()
	}
	r.mu.Unlock()
	r.respOnce.Do(func() { close(r.respReady) })
	r.doneOnce.Do(func() { close(r.done) })
}

// MarkFailed 标记请求失败终态并级联唤醒所有等待者
func (r *Request) MarkFailed(f *FailureError) {
	r.mu.Lock()
	if r.failure == nil {
		r.failure = f
	}
	if r.completedAt.IsZero() {
		r.completedAt = time.Now()
	}
	resp := r.resp
	r.mu.Unlock()
	if resp != nil {
		resp.markFailed(f)
	}
	r.respOnce.Do(func() { close(r.respReady) })
	r.doneOnce.Do(func() { close(r.done) })
}
