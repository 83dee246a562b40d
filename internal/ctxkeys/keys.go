package ctxkeys

// TraceIDKey 贯穿调用链的跟踪标识键
type TraceIDKey struct{}
