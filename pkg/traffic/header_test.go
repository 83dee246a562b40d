package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSetLookup(t *testing.T) {
	hs := NewHeaderSet([]Header{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "Set-Cookie", Value: "a=1"},
		{Name: "set-cookie", Value: "b=2"},
	})

	v, ok := hs.Get("content-type")
	require.True(t, ok)
	assert.Equal(t, "text/html", v)

	// 同名多值取首个
	v, ok = hs.Get("SET-COOKIE")
	require.True(t, ok)
	assert.Equal(t, "a=1", v)

	assert.Equal(t, []string{"a=1", "b=2"}, hs.GetAll("Set-Cookie"))

	_, ok = hs.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 3, hs.Len())
}

func TestHeaderSetNames(t *testing.T) {
	hs := NewHeaderSet([]Header{
		{Name: "Accept", Value: "*/*"},
		{Name: "Set-Cookie", Value: "a=1"},
		{Name: "SET-COOKIE", Value: "b=2"},
		{Name: "Host", Value: "a.test"},
	})
	// 去重后保留首次出现的大小写与顺序
	assert.Equal(t, []string{"Accept", "Set-Cookie", "Host"}, hs.Names())
}

func TestHeaderSetPairsIsolation(t *testing.T) {
	hs := NewHeaderSet([]Header{{Name: "A", Value: "1"}})
	pairs := hs.Pairs()
	pairs[0].Value = "mutated"

	v, _ := hs.Get("A")
	assert.Equal(t, "1", v)
}

func TestHeaderSetMerge(t *testing.T) {
	base := NewHeaderSet([]Header{
		{Name: "Accept", Value: "*/*"},
		{Name: "Cookie", Value: "a=1"},
		{Name: "Cookie", Value: "b=2"},
		{Name: "Host", Value: "a.test"},
	})

	merged := base.Merge(
		[]Header{
			{Name: "accept", Value: "application/json"},
			{Name: "X-New", Value: "1"},
		},
		[]string{"host"},
	)

	// 覆盖保位、移除除名、新名追加，原集不受影响
	assert.Equal(t, []Header{
		{Name: "accept", Value: "application/json"},
		{Name: "Cookie", Value: "a=1"},
		{Name: "Cookie", Value: "b=2"},
		{Name: "X-New", Value: "1"},
	}, merged.Pairs())
	assert.Equal(t, 4, base.Len())
	v, _ := base.Get("Host")
	assert.Equal(t, "a.test", v)
}

func TestHeaderSetMergeReplacesAllDuplicates(t *testing.T) {
	base := NewHeaderSet([]Header{
		{Name: "Warning", Value: "one"},
		{Name: "Via", Value: "proxy"},
		{Name: "Warning", Value: "two"},
	})
	merged := base.Merge([]Header{{Name: "Warning", Value: "only"}}, nil)
	assert.Equal(t, []Header{
		{Name: "Warning", Value: "only"},
		{Name: "Via", Value: "proxy"},
	}, merged.Pairs())
}

func TestHeaderSetNilReceiver(t *testing.T) {
	var hs *HeaderSet
	_, ok := hs.Get("a")
	assert.False(t, ok)
	assert.Nil(t, hs.GetAll("a"))
	assert.Nil(t, hs.Names())
	assert.Nil(t, hs.Pairs())
	assert.Zero(t, hs.Len())

	merged := hs.Merge([]Header{{Name: "A", Value: "1"}}, nil)
	require.NotNil(t, merged)
	assert.Equal(t, 1, merged.Len())
}
