package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpnetflow/pkg/traffic"
)

func reqFor(url string) *traffic.Request {
	return traffic.NewRequest(1, traffic.RequestSeed{WireID: "w1", URL: url, Method: "GET"})
}

func TestGlobPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		url     string
		match   bool
	}{
		{"star spans path segments", "*/api/*", "https://a.test/api/users", true},
		{"star needs the literal part", "*/api/*", "https://a.test/assets/app.js", false},
		{"question mark is one char", "https://a.test/v?/ping", "https://a.test/v1/ping", true},
		{"question mark not two chars", "https://a.test/v?/ping", "https://a.test/v10/ping", false},
		{"exact match", "https://a.test/x", "https://a.test/x", true},
		{"anchored at both ends", "https://a.test/x", "https://a.test/x/y", false},
		{"dot is literal", "https://a.test/app.js", "https://a.test/appXjs", false},
		{"catch all", "*", "wss://a.test/socket", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			require.NoError(t, r.Route(tt.pattern, func(*traffic.Route) {}))
			_, ok := r.Match(reqFor(tt.url))
			assert.Equal(t, tt.match, ok)
		})
	}
}

func TestFirstRegisteredWins(t *testing.T) {
	r := New()
	var hit string
	require.NoError(t, r.Route("*/api/*", func(*traffic.Route) { hit = "narrow" }))
	require.NoError(t, r.Route("*", func(*traffic.Route) { hit = "broad" }))

	h, ok := r.Match(reqFor("https://a.test/api/users"))
	require.True(t, ok)
	h(nil)
	assert.Equal(t, "narrow", hit)

	h, ok = r.Match(reqFor("https://a.test/page"))
	require.True(t, ok)
	h(nil)
	assert.Equal(t, "broad", hit)
}

func TestUnroute(t *testing.T) {
	r := New()
	require.NoError(t, r.Route("*/api/*", func(*traffic.Route) {}))
	require.NoError(t, r.Route("*/api/*", func(*traffic.Route) {}))
	require.NoError(t, r.Route("*/other/*", func(*traffic.Route) {}))
	off := r.RoutePredicate(func(req *traffic.Request) bool { return req.Method() == "POST" }, func(*traffic.Route) {})
	assert.Equal(t, 4, r.Len())

	r.Unroute("*/api/*")
	assert.Equal(t, 2, r.Len())
	_, ok := r.Match(reqFor("https://a.test/api/users"))
	assert.False(t, ok)
	_, ok = r.Match(reqFor("https://a.test/other/x"))
	assert.True(t, ok)

	// 谓词路由没有模式，按空串注销不应误伤
	r.Unroute("")
	assert.Equal(t, 2, r.Len())
	off()
	assert.Equal(t, 1, r.Len())
}

func TestPredicateRoute(t *testing.T) {
	r := New()
	off := r.RoutePredicate(func(req *traffic.Request) bool {
		return req.HeaderValue("x-kind") == "probe"
	}, func(*traffic.Route) {})

	plain := reqFor("https://a.test/any")
	_, ok := r.Match(plain)
	assert.False(t, ok)

	probe := traffic.NewRequest(2, traffic.RequestSeed{
		WireID:  "w2",
		URL:     "https://a.test/any",
		Method:  "GET",
		Headers: []traffic.Header{{Name: "X-Kind", Value: "probe"}},
	})
	_, ok = r.Match(probe)
	assert.True(t, ok)

	off()
	_, ok = r.Match(probe)
	assert.False(t, ok)
}

func TestMatchedHandlerSurvivesUnroute(t *testing.T) {
	r := New()
	called := false
	require.NoError(t, r.Route("*", func(*traffic.Route) { called = true }))

	h, ok := r.Match(reqFor("https://a.test/x"))
	require.True(t, ok)
	r.Unroute("*")
	h(nil)
	assert.True(t, called)
	assert.Zero(t, r.Len())
}
