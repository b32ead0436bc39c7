package gateway

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// cachedResponse 缓存的公开接口响应
type cachedResponse struct {
	body        []byte
	contentType string
	etag        string
	expiresAt   time.Time
}

// responseCache 按请求路径缓存响应，超过容量时淘汰最早过期的条目
type responseCache struct {
	mu       sync.RWMutex
	entries  map[string]cachedResponse
	capacity int
	now      func() time.Time
}

func newResponseCache(capacity int) *responseCache {
	return &responseCache{
		entries:  make(map[string]cachedResponse, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

func (c *responseCache) get(key string) (cachedResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resp, ok := c.entries[key]
	if !ok || c.now().After(resp.expiresAt) {
		return cachedResponse{}, false
	}
	return resp, true
}

func (c *responseCache) put(key string, resp cachedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	c.entries[key] = resp
}

// evictLocked 先清理过期条目，仍然满时删除最早过期的一条
func (c *responseCache) evictLocked() {
	now := c.now()
	var (
		victim   string
		deadline time.Time
	)
	for key, resp := range c.entries {
		if now.After(resp.expiresAt) {
			delete(c.entries, key)
			continue
		}
		if victim == "" || resp.expiresAt.Before(deadline) {
			victim, deadline = key, resp.expiresAt
		}
	}
	if len(c.entries) >= c.capacity && victim != "" {
		delete(c.entries, victim)
	}
}

// CacheMiddleware 缓存中间件，只用于与用户无关的公开接口
type CacheMiddleware struct {
	cache *responseCache

	// 路径前缀到缓存时间，最长匹配优先
	TTLByPrefix map[string]time.Duration
}

// NewCacheMiddleware 创建缓存中间件
func NewCacheMiddleware() *CacheMiddleware {
	return &CacheMiddleware{
		cache: newResponseCache(1000),
		TTLByPrefix: map[string]time.Duration{
			"/games/popular": 30 * time.Second, // 热度变化较快
			"/games":         5 * time.Minute,
		},
	}
}

// ttlFor 返回路径的缓存时间，不可缓存时返回 false
func (cm *CacheMiddleware) ttlFor(path string) (time.Duration, bool) {
	var (
		ttl     time.Duration
		matched int
	)
	for prefix, d := range cm.TTLByPrefix {
		if strings.HasPrefix(path, prefix) && len(prefix) > matched {
			ttl, matched = d, len(prefix)
		}
	}
	return ttl, matched > 0
}

// Middleware 缓存中间件
func (cm *CacheMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ttl, cacheable := cm.ttlFor(r.URL.Path)
		if r.Method != http.MethodGet || !cacheable {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		if resp, ok := cm.cache.get(key); ok {
			if r.Header.Get("If-None-Match") == resp.etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			writeCached(w, resp, "HIT")
			return
		}

		buf := &bufferedResponse{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(buf, r)

		if buf.status != http.StatusOK || buf.body.Len() == 0 {
			buf.copyTo(w)
			return
		}

		resp := cachedResponse{
			body:        buf.body.Bytes(),
			contentType: buf.header.Get("Content-Type"),
			etag:        fmt.Sprintf(`"%x"`, md5.Sum(buf.body.Bytes())),
			expiresAt:   cm.cache.now().Add(ttl),
		}
		cm.cache.put(key, resp)

		w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", int(ttl.Seconds())))
		writeCached(w, resp, "MISS")
	})
}

func writeCached(w http.ResponseWriter, resp cachedResponse, state string) {
	if resp.contentType != "" {
		w.Header().Set("Content-Type", resp.contentType)
	}
	w.Header().Set("ETag", resp.etag)
	w.Header().Set("X-Cache", state)
	w.WriteHeader(http.StatusOK)
	w.Write(resp.body)
}

// bufferedResponse 缓冲下游响应，决定是否缓存后再写出
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(code int) { b.status = code }

func (b *bufferedResponse) Write(data []byte) (int, error) { return b.body.Write(data) }

// copyTo 原样写出未缓存的响应
func (b *bufferedResponse) copyTo(w http.ResponseWriter) {
	for key, values := range b.header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(b.status)
	w.Write(b.body.Bytes())
}
