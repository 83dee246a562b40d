package cdp

import (
	"testing"

	"github.com/mafredri/cdp/protocol/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpnetflow/pkg/traffic"
	"cdpnetflow/pkg/transport"
)

func TestDecodeHeaders(t *testing.T) {
	t.Run("preserves document order", func(t *testing.T) {
		raw := network.Headers([]byte(`{"Content-Type":"text/html","Cache-Control":"no-store","X-Trace":"abc"}`))
		hs := decodeHeaders(raw)
		require.Len(t, hs, 3)
		assert.Equal(t, traffic.Header{Name: "Content-Type", Value: "text/html"}, hs[0])
		assert.Equal(t, traffic.Header{Name: "Cache-Control", Value: "no-store"}, hs[1])
		assert.Equal(t, traffic.Header{Name: "X-Trace", Value: "abc"}, hs[2])
	})

	t.Run("splits folded duplicates", func(t *testing.T) {
		// 协议把同名多值折叠为换行连接的单值
		raw := network.Headers([]byte(`{"Set-Cookie":"a=1\nb=2\nc=3","Server":"nginx"}`))
		hs := decodeHeaders(raw)
		require.Len(t, hs, 4)
		assert.Equal(t, "Set-Cookie", hs[0].Name)
		assert.Equal(t, "a=1", hs[0].Value)
		assert.Equal(t, "b=2", hs[1].Value)
		assert.Equal(t, "c=3", hs[2].Value)
		assert.Equal(t, traffic.Header{Name: "Server", Value: "nginx"}, hs[3])
	})

	t.Run("empty object", func(t *testing.T) {
		assert.Empty(t, decodeHeaders(network.Headers([]byte(`{}`))))
	})

	t.Run("nil input", func(t *testing.T) {
		assert.Empty(t, decodeHeaders(nil))
	})
}

func TestToHeaderEntries(t *testing.T) {
	in := []traffic.Header{
		{Name: "Accept", Value: "*/*"},
		{Name: "Cookie", Value: "sid=1"},
	}
	out := toHeaderEntries(in)
	require.Len(t, out, 2)
	assert.Equal(t, "Accept", out[0].Name)
	assert.Equal(t, "*/*", out[0].Value)
	assert.Equal(t, "Cookie", out[1].Name)
	assert.Equal(t, "sid=1", out[1].Value)

	assert.Nil(t, toHeaderEntries(nil))
}

func TestTextLen(t *testing.T) {
	s := "HTTP/1.1 200 OK\r\n\r\n"
	assert.Equal(t, int64(len(s)), textLen(&s))
	assert.Equal(t, int64(0), textLen(nil))
}

func TestRemoteAddr(t *testing.T) {
	ip := "93.184.216.34"
	port := 443
	t.Run("ip and port", func(t *testing.T) {
		r := &network.Response{RemoteIPAddress: &ip, RemotePort: &port}
		assert.Equal(t, "93.184.216.34:443", remoteAddr(r))
	})
	t.Run("ipv6 is bracketed", func(t *testing.T) {
		v6 := "2606:2800:220:1::1"
		r := &network.Response{RemoteIPAddress: &v6, RemotePort: &port}
		assert.Equal(t, "[2606:2800:220:1::1]:443", remoteAddr(r))
	})
	t.Run("missing ip", func(t *testing.T) {
		r := &network.Response{RemotePort: &port}
		assert.Empty(t, remoteAddr(r))
	})
	t.Run("missing port keeps bare ip", func(t *testing.T) {
		r := &network.Response{RemoteIPAddress: &ip}
		assert.Equal(t, ip, remoteAddr(r))
	})
}

func TestRedirectInfo(t *testing.T) {
	headersText := "HTTP/1.1 302 Found\r\nLocation: https://example.com/next\r\n\r\n"
	r := &network.Response{
		Status:            302,
		StatusText:        "Found",
		Headers:           network.Headers([]byte(`{"Location":"https://example.com/next"}`)),
		HeadersText:       &headersText,
		EncodedDataLength: 118,
	}
	info := redirectInfo(r)
	require.NotNil(t, info)
	assert.Equal(t, 302, info.Status)
	assert.Equal(t, "Found", info.StatusText)
	require.Len(t, info.Headers, 1)
	assert.Equal(t, "Location", info.Headers[0].Name)
	assert.Equal(t, int64(len(headersText)), info.HeadersSize)
	assert.Equal(t, int64(118), info.Transfer)
}

func TestErrorReason(t *testing.T) {
	cases := []struct {
		tag  string
		want network.ErrorReason
	}{
		{transport.AbortFailed, network.ErrorReasonFailed},
		{transport.AbortAborted, network.ErrorReasonAborted},
		{transport.AbortTimedOut, network.ErrorReasonTimedOut},
		{transport.AbortAccessDenied, network.ErrorReasonAccessDenied},
		{transport.AbortConnectionClosed, network.ErrorReasonConnectionClosed},
		{transport.AbortConnectionReset, network.ErrorReasonConnectionReset},
		{transport.AbortConnectionRefused, network.ErrorReasonConnectionRefused},
		{transport.AbortConnectionAborted, network.ErrorReasonConnectionAborted},
		{transport.AbortConnectionFailed, network.ErrorReasonConnectionFailed},
		{transport.AbortNameNotResolved, network.ErrorReasonNameNotResolved},
		{transport.AbortInternetDisconnected, network.ErrorReasonInternetDisconnected},
		{transport.AbortAddressUnreachable, network.ErrorReasonAddressUnreachable},
		{transport.AbortBlockedByClient, network.ErrorReasonBlockedByClient},
		{transport.AbortBlockedByResponse, network.ErrorReasonBlockedByResponse},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, errorReason(c.tag), c.tag)
	}

	t.Run("unknown falls back to failed", func(t *testing.T) {
		assert.Equal(t, network.ErrorReasonFailed, errorReason("no-such-reason"))
	})
	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, network.ErrorReasonAborted, errorReason("Aborted"))
	})
}
