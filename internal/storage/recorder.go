package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"cdpnetflow/internal/ctxkeys"
	"cdpnetflow/internal/logger"
	"cdpnetflow/pkg/traffic"
)

// persistTimeout 单条记录的落库预算，含取体耗时
const persistTimeout = 5 * time.Second

// Recorder 异步落库器：入队不阻塞事件回调，单写协程顺序消费
type Recorder struct {
	db        *gorm.DB
	log       logger.Logger
	bodyLimit int64

	mu     sync.RWMutex
	closed bool

	queue   chan job
	done    chan struct{}
	dropped atomic.Int64
}

type job struct {
	sessionID string
	req       *traffic.Request
}

// NewRecorder 创建落库器并启动写协程
func NewRecorder(db *gorm.DB, l logger.Logger, bodyLimit int64) *Recorder {
	if l == nil {
		l = logger.NewNop()
	}
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	r := &Recorder{
		db:        db,
		log:       l,
		bodyLimit: bodyLimit,
		queue:     make(chan job, 256),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record 入队一条已终结的请求，队列满时丢弃并计数
func (r *Recorder) Record(sessionID string, req *traffic.Request) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- job{sessionID: sessionID, req: req}:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.log.Warn("落库队列已满，丢弃流量记录", "dropped", n)
		}
	}
}

// Dropped 因队列满被丢弃的记录数
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close 截停入队并等待队列排空
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for j := range r.queue {
		r.persist(j.sessionID, j.req)
	}
}

func (r *Recorder) persist(sessionID string, req *traffic.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, ctxkeys.TraceIDKey{}, req.WireID())

	row := &Exchange{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		RequestSeq:     req.ID(),
		WireID:         req.WireID(),
		URL:            req.URL(),
		Method:         req.Method(),
		ResourceType:   req.ResourceType(),
		Navigation:     req.IsNavigationRequest(),
		FrameID:        req.FrameID(),
		DocumentURL:    req.DocumentURL(),
		RequestHeaders: encodeHeaders(req.Headers().Pairs()),
		StartedAt:      req.StartedAt().UnixMilli(),
	}
	if done := req.CompletedAt(); !done.IsZero() {
		row.CompletedAt = done.UnixMilli()
	}
	if post := req.PostDataBuffer(); post != nil {
		row.PostData, row.PostDataTruncated = clip(post, r.bodyLimit)
	}

	resp, err := req.Response(ctx)
	if err == nil {
		row.Status = resp.Status()
		row.StatusText = resp.StatusText()
		row.MimeType = resp.MimeType()
		row.Protocol = resp.Protocol()
		row.RemoteAddr = resp.RemoteAddr()
		row.FromFulfill = resp.FromFulfill()
		row.ResponseHeaders = encodeHeaders(resp.Headers().Pairs())
		if body, berr := resp.Body(ctx); berr == nil {
			row.Body, row.BodyTruncated = clip(body, r.bodyLimit)
		} else if !errors.Is(berr, traffic.ErrBodyUnavailable) {
			r.log.Debug("取响应体失败，正文不落库", "wireID", req.WireID(), "error", berr)
		}
	} else {
		var fe *traffic.FailureError
		if errors.As(err, &fe) {
			row.Failure = fe.Reason
			row.Aborted = fe.Aborted
		} else {
			row.Failure = err.Error()
		}
	}

	if sz, serr := req.Sizes(ctx); serr == nil {
		row.RequestHeadersSize = sz.RequestHeadersSize
		row.RequestBodySize = sz.RequestBodySize
		row.ResponseHeadersSize = sz.ResponseHeadersSize
		row.ResponseBodySize = sz.ResponseBodySize
		row.ResponseTransferSize = sz.ResponseTransferSize
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		r.log.Err(err, "流量记录落库失败", "wireID", req.WireID())
	}
}

// encodeHeaders 头部保序编码为 JSON 数组
func encodeHeaders(pairs []traffic.Header) string {
	if len(pairs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// clip 按上限截取载荷，返回是否发生截断
func clip(b []byte, limit int64) ([]byte, bool) {
	if int64(len(b)) <= limit {
		return b, false
	}
	return b[:limit:limit], true
}
