package traffic

import "strings"

// Header 单个头部键值对，保留原始大小写
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderSet 有序的头部多值集合：同名条目按接收顺序保留，
// 查询大小写不敏感，构建后不可变
type HeaderSet struct {
	pairs []Header
}

// NewHeaderSet 从键值对列表构建头部集合（拷贝输入）
func NewHeaderSet(pairs []Header) *HeaderSet {
	cp := make([]Header, len(pairs))
	copy(cp, pairs)
	return &HeaderSet{pairs: cp}
}

// Get 返回首个匹配头部的值（大小写不敏感）
func (h *HeaderSet) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	for i := range h.pairs {
		if strings.EqualFold(h.pairs[i].Name, name) {
			return h.pairs[i].Value, true
		}
	}
	return "", false
}

// GetAll 返回全部匹配头部的值，按接收顺序
func (h *HeaderSet) GetAll(name string) []string {
	if h == nil {
		return nil
	}
	var out []string
	for i := range h.pairs {
		if strings.EqualFold(h.pairs[i].Name, name) {
			out = append(out, h.pairs[i].Value)
		}
	}
	return out
}

// Names 返回去重后的头部名，保留首次出现的大小写与顺序
func (h *HeaderSet) Names() []string {
	if h == nil {
		return nil
	}
	seen := make(map[string]bool, len(h.pairs))
	out := make([]string, 0, len(h.pairs))
	for i := range h.pairs {
		k := strings.ToLower(h.pairs[i].Name)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, h.pairs[i].Name)
	}
	return out
}

// Pairs 返回有序键值对的副本
func (h *HeaderSet) Pairs() []Header {
	if h == nil {
		return nil
	}
	cp := make([]Header, len(h.pairs))
	copy(cp, h.pairs)
	return cp
}

// Len 头部条目数
func (h *HeaderSet) Len() int {
	if h == nil {
		return 0
	}
	return len(h.pairs)
}

// Merge 构建应用覆盖与删除后的新集合：set 中的条目整组替换同名旧条目
// 并保留首个旧条目的位置，新名字追加到末尾；remove 删除同名全部条目
func (h *HeaderSet) Merge(set []Header, remove []string) *HeaderSet {
	drop := make(map[string]bool, len(remove))
	for _, n := range remove {
		drop[strings.ToLower(n)] = true
	}
	override := make(map[string][]Header, len(set))
	order := make([]string, 0, len(set))
	for _, p := range set {
		k := strings.ToLower(p.Name)
		if _, ok := override[k]; !ok {
			order = append(order, k)
		}
		override[k] = append(override[k], p)
	}

	placed := make(map[string]bool, len(override))
	var out []Header
	if h != nil {
		for _, p := range h.pairs {
			k := strings.ToLower(p.Name)
			if vals, ok := override[k]; ok {
				if !placed[k] {
					out = append(out, vals...)
					placed[k] = true
				}
				continue
			}
			if drop[k] {
				continue
			}
			out = append(out, p)
		}
	}
	for _, k := range order {
		if !placed[k] {
			out = append(out, override[k]...)
		}
	}
	return &HeaderSet{pairs: out}
}
