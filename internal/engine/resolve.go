package engine

import (
	"context"
	"strconv"

	"cdpnetflow/pkg/traffic"
	"cdpnetflow/pkg/transport"
)

// ContinueRoute 放行：把改写折算成传输层指令，成功后更新实体快照
func (e *Engine) ContinueRoute(ctx context.Context, rt *traffic.Route, ov *traffic.Overrides) error {
	req := rt.Request()
	post, err := ov.EffectivePostData(req.PostDataBuffer())
	if err != nil {
		e.log.Err(err, "请求体改写失败", "url", req.URL())
		return err
	}

	var tov *transport.ContinueOverrides
	if ov != nil {
		tov = &transport.ContinueOverrides{
			URL:      ov.URL,
			Method:   ov.Method,
			PostData: post,
		}
		if len(ov.Headers) > 0 || len(ov.RemoveHeaders) > 0 {
			// 传输层要求整组替换，合并后整体下发
			tov.Headers = req.Headers().Merge(ov.Headers, ov.RemoveHeaders).Pairs()
		}
	}
	if err := e.t.ContinueRequest(ctx, rt.WireID(), tov); err != nil {
		e.log.Err(err, "放行决议发送失败", "url", req.URL())
		return err
	}
	req.ApplyOverrides(ov, post)
	return nil
}

// FulfillRoute 合成响应：补全状态码与内容头后下发
func (e *Engine) FulfillRoute(ctx context.Context, rt *traffic.Route, f *traffic.Fulfillment) error {
	if f == nil {
		f = &traffic.Fulfillment{}
	}
	status := f.Status
	if status == 0 {
		status = 200
	}

	hs := traffic.NewHeaderSet(f.Headers)
	if f.ContentType != "" {
		hs = hs.Merge([]traffic.Header{{Name: "Content-Type", Value: f.ContentType}}, nil)
	}
	if _, ok := hs.Get("Content-Length"); !ok {
		hs = hs.Merge([]traffic.Header{{Name: "Content-Length", Value: strconv.Itoa(len(f.Body))}}, nil)
	}

	tf := &transport.Fulfillment{
		Status:  status,
		Headers: hs.Pairs(),
		Body:    f.Body,
	}
	if err := e.t.FulfillRequest(ctx, rt.WireID(), tf); err != nil {
		e.log.Err(err, "合成响应发送失败", "url", rt.Request().URL())
		return err
	}
	return nil
}

// AbortRoute 中止：先落中止标记再下发，保证失败事件能还原语义
func (e *Engine) AbortRoute(ctx context.Context, rt *traffic.Route, reason string) error {
	if reason == "" {
		reason = transport.AbortFailed
	}
	e.mu.Lock()
	if ent := e.entries[rt.Request().WireID()]; ent != nil {
		ent.aborted = true
	}
	e.mu.Unlock()

	if err := e.t.FailRequest(ctx, rt.WireID(), reason); err != nil {
		e.log.Err(err, "中止决议发送失败", "url", rt.Request().URL())
		return err
	}
	return nil
}
