package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpnetflow/pkg/traffic"
	"cdpnetflow/pkg/transport"
)

func TestWaitForRequest(t *testing.T) {
	e, ft := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var got *traffic.Request
	var err error
	go func() {
		defer close(done)
		got, err = e.WaitForRequest(ctx, func(r *traffic.Request) bool {
			return strings.Contains(r.URL(), "/target")
		})
	}()

	ft.push(willSend("r1", "https://a.test/other"))
	ft.push(willSend("r2", "https://a.test/target"))
	<-done

	require.NoError(t, err)
	assert.Equal(t, "https://a.test/target", got.URL())
}

func TestWaitForResponse(t *testing.T) {
	e, ft := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var got *traffic.Response
	var err error
	go func() {
		defer close(done)
		got, err = e.WaitForResponse(ctx, func(r *traffic.Response) bool {
			return r.Status() == 204
		})
	}()

	ft.push(willSend("r1", "https://a.test/a"))
	ft.push(responseReceived("r1", 200))
	ft.push(willSend("r2", "https://a.test/b"))
	ft.push(responseReceived("r2", 204))
	<-done

	require.NoError(t, err)
	assert.Equal(t, 204, got.Status())
	assert.Equal(t, "https://a.test/b", got.URL())
}

func TestWaitTimeout(t *testing.T) {
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.WaitForRequest(ctx, nil)
	require.ErrorIs(t, err, traffic.ErrTimeout)
}

func TestWaitCanceled(t *testing.T) {
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.WaitForResponse(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLateEventStillAppliesAfterWaitTimeout(t *testing.T) {
	e, ft := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.WaitForRequest(ctx, nil)
	require.ErrorIs(t, err, traffic.ErrTimeout)

	// 等待超时不影响后续事件照常进入观察流
	reqCh := make(chan *traffic.Request, 1)
	e.OnRequest(func(r *traffic.Request) { reqCh <- r })
	ft.push(willSend("r1", "https://a.test/late"))
	late := recv(t, reqCh)
	assert.Equal(t, "https://a.test/late", late.URL())

	ft.push(&transport.LoadingFailed{RequestID: "r1", Reason: "net::ERR_ABORTED"})
	require.Eventually(t, func() bool {
		return late.Failure() == "net::ERR_ABORTED"
	}, time.Second, 10*time.Millisecond)
}
