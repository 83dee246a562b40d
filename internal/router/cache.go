package router

import (
	"regexp"
	"sync"
)

// regexCache 编译结果缓存，避免同一模式重复编译
var regexCache = &regexpCache{m: make(map[string]*regexp.Regexp)}

type regexpCache struct {
	mu sync.Mutex
	m  map[string]*regexp.Regexp
}

func (c *regexpCache) Get(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.m[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.m[pattern] = re
	return re, nil
}
