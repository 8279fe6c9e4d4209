package offline

import (
	"net/http"
	"sort"
	"sync"
)

// Response 缓存的响应
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   append([]byte(nil), r.Body...),
	}
}

// Cache 以请求URL为键的单个缓存
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Response
}

func newCache() *Cache {
	return &Cache{entries: make(map[string]*Response)}
}

// Match 查找缓存，返回副本
func (c *Cache) Match(key string) (*Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.entries[key]
	return resp.clone(), ok
}

func (c *Cache) Put(key string, resp *Response) {
	c.mu.Lock()
	c.entries[key] = resp.clone()
	c.mu.Unlock()
}

func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CacheStorage 按名称管理多个缓存，可并发访问
type CacheStorage struct {
	mu     sync.Mutex
	caches map[string]*Cache
}

func NewCacheStorage() *CacheStorage {
	return &CacheStorage{caches: make(map[string]*Cache)}
}

// Open 打开缓存，不存在时创建
func (s *CacheStorage) Open(name string) *Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[name]
	if !ok {
		c = newCache()
		s.caches[name] = c
	}
	return c
}

func (s *CacheStorage) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.caches[name]
	return ok
}

func (s *CacheStorage) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.caches[name]
	delete(s.caches, name)
	return ok
}

func (s *CacheStorage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Match 按给定顺序在多个缓存中查找
func (s *CacheStorage) Match(key string, names ...string) (*Response, bool) {
	for _, name := range names {
		s.mu.Lock()
		c, ok := s.caches[name]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if resp, ok := c.Match(key); ok {
			return resp, true
		}
	}
	return nil, false
}
