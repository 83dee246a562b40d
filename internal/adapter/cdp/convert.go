package cdp

import (
	"net"
	"strconv"
	"strings"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/tidwall/gjson"

	"cdpnetflow/pkg/traffic"
	"cdpnetflow/pkg/transport"
)

// decodeHeaders 按原始顺序解码协议头对象；协议把同名多值
// 折叠为换行连接的单值，这里还原为独立键值对
func decodeHeaders(raw network.Headers) []traffic.Header {
	if len(raw) == 0 {
		return nil
	}
	var out []traffic.Header
	gjson.ParseBytes([]byte(raw)).ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		for _, v := range strings.Split(value.String(), "\n") {
			out = append(out, traffic.Header{Name: name, Value: v})
		}
		return true
	})
	return out
}

// toHeaderEntries 将键值对转换为协议头条目
func toHeaderEntries(pairs []traffic.Header) []fetch.HeaderEntry {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]fetch.HeaderEntry, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, fetch.HeaderEntry{Name: p.Name, Value: p.Value})
	}
	return out
}

// textLen 头部原文的字节数，缺省为 0
func textLen(text *string) int64 {
	if text == nil {
		return 0
	}
	return int64(len(*text))
}

// remoteAddr 拼接对端地址，信息不全时为空串
func remoteAddr(resp *network.Response) string {
	if resp.RemoteIPAddress == nil || *resp.RemoteIPAddress == "" {
		return ""
	}
	if resp.RemotePort == nil {
		return *resp.RemoteIPAddress
	}
	return net.JoinHostPort(*resp.RemoteIPAddress, strconv.Itoa(*resp.RemotePort))
}

// redirectInfo 从重定向响应提取上一跳收口载荷
func redirectInfo(resp *network.Response) *transport.RedirectInfo {
	return &transport.RedirectInfo{
		Status:      resp.Status,
		StatusText:  resp.StatusText,
		Headers:     decodeHeaders(resp.Headers),
		HeadersSize: textLen(resp.HeadersText),
		Transfer:    int64(resp.EncodedDataLength),
	}
}

// 中止原因标签到协议错误码的映射
var errorReasons = map[string]network.ErrorReason{
	transport.AbortFailed:               network.ErrorReasonFailed,
	transport.AbortAborted:              network.ErrorReasonAborted,
	transport.AbortTimedOut:             network.ErrorReasonTimedOut,
	transport.AbortAccessDenied:         network.ErrorReasonAccessDenied,
	transport.AbortConnectionClosed:     network.ErrorReasonConnectionClosed,
	transport.AbortConnectionReset:      network.ErrorReasonConnectionReset,
	transport.AbortConnectionRefused:    network.ErrorReasonConnectionRefused,
	transport.AbortConnectionAborted:    network.ErrorReasonConnectionAborted,
	transport.AbortConnectionFailed:     network.ErrorReasonConnectionFailed,
	transport.AbortNameNotResolved:      network.ErrorReasonNameNotResolved,
	transport.AbortInternetDisconnected: network.ErrorReasonInternetDisconnected,
	transport.AbortAddressUnreachable:   network.ErrorReasonAddressUnreachable,
	transport.AbortBlockedByClient:      network.ErrorReasonBlockedByClient,
	transport.AbortBlockedByResponse:    network.ErrorReasonBlockedByResponse,
}

// errorReason 解析中止原因标签，未知标签回落为通用失败
func errorReason(tag string) network.ErrorReason {
	if r, ok := errorReasons[strings.ToLower(tag)]; ok {
		return r
	}
	return network.ErrorReasonFailed
}
