package traffic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingResolver struct {
	continues int
	fulfills  int
	aborts    int
	lastOv    *Overrides
	lastF     *Fulfillment
	lastAbort string
	err       error
}

func (r *recordingResolver) ContinueRoute(_ context.Context, _ *Route, ov *Overrides) error {
	r.continues++
	r.lastOv = ov
	return r.err
}

func (r *recordingResolver) FulfillRoute(_ context.Context, _ *Route, f *Fulfillment) error {
	r.fulfills++
	r.lastF = f
	return r.err
}

func (r *recordingResolver) AbortRoute(_ context.Context, _ *Route, reason string) error {
	r.aborts++
	r.lastAbort = reason
	return r.err
}

func TestRouteResolvesExactlyOnce(t *testing.T) {
	res := &recordingResolver{}
	rt := NewRoute(NewRequest(1, RequestSeed{WireID: "w", URL: "u"}), "i1", res)
	assert.False(t, rt.Resolved())

	require.NoError(t, rt.Continue(context.Background(), nil))
	assert.True(t, rt.Resolved())

	require.ErrorIs(t, rt.Continue(context.Background(), nil), ErrRouteResolved)
	require.ErrorIs(t, rt.Fulfill(context.Background(), nil), ErrRouteResolved)
	require.ErrorIs(t, rt.Abort(context.Background(), "failed"), ErrRouteResolved)

	assert.Equal(t, 1, res.continues)
	assert.Zero(t, res.fulfills)
	assert.Zero(t, res.aborts)
}

func TestRouteDelegation(t *testing.T) {
	t.Run("fulfill", func(t *testing.T) {
		res := &recordingResolver{}
		rt := NewRoute(NewRequest(1, RequestSeed{WireID: "w", URL: "u"}), "i1", res)
		f := &Fulfillment{Status: 204}
		require.NoError(t, rt.Fulfill(context.Background(), f))
		assert.Same(t, f, res.lastF)
	})

	t.Run("abort reason", func(t *testing.T) {
		res := &recordingResolver{}
		rt := NewRoute(NewRequest(1, RequestSeed{WireID: "w", URL: "u"}), "i1", res)
		require.NoError(t, rt.Abort(context.Background(), "accessdenied"))
		assert.Equal(t, "accessdenied", res.lastAbort)
	})

	t.Run("resolver error propagates", func(t *testing.T) {
		res := &recordingResolver{err: errors.New("transport gone")}
		rt := NewRoute(NewRequest(1, RequestSeed{WireID: "w", URL: "u"}), "i1", res)
		require.EqualError(t, rt.Continue(context.Background(), nil), "transport gone")
		// 决议已被占用，错误不回滚
		assert.True(t, rt.Resolved())
	})
}

func TestOverridesEffectivePostData(t *testing.T) {
	t.Run("nil overrides", func(t *testing.T) {
		var ov *Overrides
		data, err := ov.EffectivePostData([]byte("base"))
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("no body change", func(t *testing.T) {
		ov := &Overrides{Headers: []Header{{Name: "A", Value: "1"}}}
		data, err := ov.EffectivePostData([]byte("base"))
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("replacement", func(t *testing.T) {
		ov := &Overrides{PostData: []byte("new")}
		data, err := ov.EffectivePostData([]byte("base"))
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), data)
	})

	t.Run("patches on base", func(t *testing.T) {
		ov := &Overrides{JSONPatches: []JSONPatch{{Path: "a.b", Value: 2}}}
		data, err := ov.EffectivePostData([]byte(`{"a":{"b":1},"c":3}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":{"b":2},"c":3}`, string(data))
	})

	t.Run("patches on replacement", func(t *testing.T) {
		ov := &Overrides{
			PostData:    []byte(`{"x":1}`),
			JSONPatches: []JSONPatch{{Path: "y", Value: "z"}},
		}
		data, err := ov.EffectivePostData(nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":1,"y":"z"}`, string(data))
	})
}
