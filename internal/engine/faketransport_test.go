package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"cdpnetflow/pkg/traffic"
	"cdpnetflow/pkg/transport"
)

// fakeTransport scripts lifecycle events and records resolution verbs.
type fakeTransport struct {
	events chan transport.Event

	mu        sync.Mutex
	bodies    map[string][]byte
	bodyErrs  map[string]error
	continues []continueCall
	fulfills  []fulfillCall
	fails     []failCall

	onContinue func(interceptID string, ov *transport.ContinueOverrides)
	onFulfill  func(interceptID string, f *transport.Fulfillment)
	onFail     func(interceptID string, reason string)
}

type continueCall struct {
	interceptID string
	ov          *transport.ContinueOverrides
}

type fulfillCall struct {
	interceptID string
	f           *transport.Fulfillment
}

type failCall struct {
	interceptID string
	reason      string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:   make(chan transport.Event, 64),
		bodies:   make(map[string][]byte),
		bodyErrs: make(map[string]error),
	}
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) push(ev transport.Event) { f.events <- ev }

func (f *fakeTransport) setBody(requestID string, body []byte) {
	f.mu.Lock()
	f.bodies[requestID] = body
	f.mu.Unlock()
}

func (f *fakeTransport) setBodyErr(requestID string, err error) {
	f.mu.Lock()
	f.bodyErrs[requestID] = err
	f.mu.Unlock()
}

func (f *fakeTransport) ContinueRequest(_ context.Context, interceptID string, ov *transport.ContinueOverrides) error {
	f.mu.Lock()
	f.continues = append(f.continues, continueCall{interceptID: interceptID, ov: ov})
	hook := f.onContinue
	f.mu.Unlock()
	if hook != nil {
		hook(interceptID, ov)
	}
	return nil
}

func (f *fakeTransport) FulfillRequest(_ context.Context, interceptID string, fl *transport.Fulfillment) error {
	f.mu.Lock()
	f.fulfills = append(f.fulfills, fulfillCall{interceptID: interceptID, f: fl})
	hook := f.onFulfill
	f.mu.Unlock()
	if hook != nil {
		hook(interceptID, fl)
	}
	return nil
}

func (f *fakeTransport) FailRequest(_ context.Context, interceptID string, reason string) error {
	f.mu.Lock()
	f.fails = append(f.fails, failCall{interceptID: interceptID, reason: reason})
	hook := f.onFail
	f.mu.Unlock()
	if hook != nil {
		hook(interceptID, reason)
	}
	return nil
}

func (f *fakeTransport) ResponseBody(_ context.Context, requestID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.bodyErrs[requestID]; err != nil {
		return nil, err
	}
	body, ok := f.bodies[requestID]
	if !ok {
		return nil, traffic.ErrBodyUnavailable
	}
	return body, nil
}

func (f *fakeTransport) continueCalls() []continueCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]continueCall(nil), f.continues...)
}

func (f *fakeTransport) fulfillCalls() []fulfillCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fulfillCall(nil), f.fulfills...)
}

func (f *fakeTransport) failCalls() []failCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]failCall(nil), f.fails...)
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	e := New(Config{Transport: ft})
	e.Start()
	t.Cleanup(e.Close)
	return e, ft
}

func willSend(requestID, url string) *transport.WillSendRequest {
	return &transport.WillSendRequest{
		RequestID:    requestID,
		URL:          url,
		Method:       "GET",
		Headers:      []traffic.Header{{Name: "Accept", Value: "*/*"}},
		ResourceType: "Fetch",
	}
}

func responseReceived(requestID string, status int) *transport.ResponseReceived {
	return &transport.ResponseReceived{
		RequestID:  requestID,
		Status:     status,
		StatusText: "OK",
		Headers:    []traffic.Header{{Name: "Content-Type", Value: "text/plain"}},
		MimeType:   "text/plain",
	}
}

// recv reads one value or fails the test after a deadline.
func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

// eventLog records emission order across all observer kinds.
type eventLog struct {
	mu  sync.Mutex
	seq []string
}

func (l *eventLog) add(s string) {
	l.mu.Lock()
	l.seq = append(l.seq, s)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.seq...)
}
