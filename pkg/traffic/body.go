package traffic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
)

// BodyBuffer 响应体缓冲区：只增累积，终结一次；
// 终结前的读取挂起而不是返回半截数据
type BodyBuffer struct {
	mu     sync.Mutex
	data   []byte
	err    error
	pull   func(context.Context) ([]byte, error)
	pulled bool
	sealed bool
	done   chan struct{}
}

// NewBodyBuffer 创建空缓冲区
func NewBodyBuffer() *BodyBuffer {
	return &BodyBuffer{done: make(chan struct{})}
}

// Append 追加一段数据；终结后的追加被忽略
func (b *BodyBuffer) Append(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.data = append(b.data, p...)
}

// Finalize 以当前累积内容终结缓冲区
func (b *BodyBuffer) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seal()
}

// FinalizeBytes 以给定内容终结缓冲区
func (b *BodyBuffer) FinalizeBytes(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.data = p
	b.seal()
}

// FinalizeWith 终结缓冲区，内容在首次读取时经 pull 惰性取回并缓存
func (b *BodyBuffer) FinalizeWith(pull func(context.Context) ([]byte, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.pull = pull
	b.seal()
}

// Fail 以错误终结缓冲区
func (b *BodyBuffer) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.err = err
	b.seal()
}

func (b *BodyBuffer) seal() {
	if b.sealed {
		return
	}
	b.sealed = true
	close(b.done)
}

// Sealed 是否已终结
func (b *BodyBuffer) Sealed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sealed
}

// Len 当前累积字节数
func (b *BodyBuffer) Len() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data))
}

// Bytes 返回完整内容；缓冲区终结前挂起
func (b *BodyBuffer) Bytes(ctx context.Context) ([]byte, error) {
	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, WaitError(ctx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if b.pull != nil && !b.pulled {
		data, err := b.pull(ctx)
		if err != nil {
			// 上下文类错误不缓存，后续读取可重试
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return nil, WaitError(ctx)
				}
				return nil, err
			}
			b.err = err
			b.pulled = true
			return nil, b.err
		}
		b.data = data
		b.pulled = true
	}
	return b.data, nil
}

// Text 以文本形式返回完整内容
func (b *BodyBuffer) Text(ctx context.Context) (string, error) {
	data, err := b.Bytes(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// JSON 将完整内容解析为 JSON 文档
func (b *BodyBuffer) JSON(ctx context.Context) (gjson.Result, error) {
	data, err := b.Bytes(ctx)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("traffic: body is not valid json")
	}
	return gjson.ParseBytes(data), nil
}
