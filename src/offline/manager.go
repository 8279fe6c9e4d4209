package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/core/metrics"
	"receipt-scanner-go/src/core/utils"

	"golang.org/x/sync/errgroup"
)

var ErrOffline = errors.New("network unavailable and no cached response")

// 缓存策略名称，用于指标标签
const (
	policyNetworkFirst = "network-first"
	policyCacheFirst   = "cache-first"
)

// 安装时并发拉取静态资源的上限
const installConcurrency = 4

// Manager 离线缓存管理：安装、激活、请求拦截与版本检查
type Manager struct {
	cfg         configs.OfflineConfig
	storage     *CacheStorage
	fetcher     Fetcher
	logger      *utils.Logger
	metrics     *metrics.Metrics
	broadcaster Broadcaster

	waiting atomic.Bool // 已安装但未激活
	claimed atomic.Bool

	versionMu   sync.Mutex
	lastVersion string
	seenVersion bool
	checkSeq    atomic.Uint64 // 每次检查发起时递增
	appliedSeq  uint64        // 最近一次生效的检查序号，受 versionMu 保护

	revalidating sync.WaitGroup
	revalidateTO time.Duration
}

func NewManager(cfg configs.OfflineConfig, storage *CacheStorage, fetcher Fetcher, logger *utils.Logger, m *metrics.Metrics) *Manager {
	if storage == nil {
		storage = NewCacheStorage()
	}
	return &Manager{
		cfg:          cfg,
		storage:      storage,
		fetcher:      fetcher,
		logger:       logger,
		metrics:      m,
		broadcaster:  nopBroadcaster{},
		revalidateTO: 30 * time.Second,
	}
}

// SetBroadcaster 设置版本更新通知的接收方
func (m *Manager) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopBroadcaster{}
	}
	m.broadcaster = b
}

func (m *Manager) Storage() *CacheStorage { return m.storage }

func (m *Manager) Waiting() bool { return m.waiting.Load() }

func (m *Manager) Claimed() bool { return m.claimed.Load() }

// Install 拉取全部静态资源写入静态缓存，任一失败则整体失败
func (m *Manager) Install(ctx context.Context) error {
	var mu sync.Mutex
	fetched := make(map[string]*Response, len(m.cfg.StaticAssets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)
	for _, asset := range m.cfg.StaticAssets {
		asset := asset
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, asset, nil)
			if err != nil {
				return fmt.Errorf("无效的静态资源地址 %s: %w", asset, err)
			}
			resp, err := m.fetcher.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("拉取静态资源 %s 失败: %w", asset, err)
			}
			if resp.Status != http.StatusOK {
				return fmt.Errorf("拉取静态资源 %s 失败: 状态码 %d", asset, resp.Status)
			}
			mu.Lock()
			fetched[cacheKey(req)] = resp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	static := m.storage.Open(m.cfg.StaticCache)
	for key, resp := range fetched {
		static.Put(key, resp)
	}
	m.waiting.Store(true)
	m.logger.Info("离线缓存安装完成，共 %d 个静态资源", len(fetched))

	m.checkQuietly(ctx)
	return nil
}

// Activate 删除未知缓存、接管客户端并检查一次版本
func (m *Manager) Activate(ctx context.Context) error {
	for _, name := range m.storage.Keys() {
		if name != m.cfg.StaticCache && name != m.cfg.DynamicCache {
			m.storage.Delete(name)
			m.logger.Info("删除旧缓存: %s", name)
		}
	}
	m.waiting.Store(false)
	m.claimed.Store(true)

	m.checkQuietly(ctx)
	return nil
}

// SkipWaiting 立即激活等待中的版本
func (m *Manager) SkipWaiting(ctx context.Context) error {
	m.waiting.Store(false)
	return m.Activate(ctx)
}

// Fetch 按请求类型选择缓存策略
func (m *Manager) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	if r.Method != http.MethodGet || m.isAPI(r.URL.Path) {
		return m.fetcher.Fetch(ctx, r)
	}
	if r.URL.Path == m.cfg.VersionPath {
		return m.fetcher.Fetch(ctx, r)
	}
	if isNavigation(r) {
		return m.networkFirst(ctx, r)
	}
	return m.cacheFirst(ctx, r)
}

func (m *Manager) networkFirst(ctx context.Context, r *http.Request) (*Response, error) {
	key := cacheKey(r)
	resp, err := m.fetcher.Fetch(ctx, r)
	if err == nil {
		if resp.Status == http.StatusOK {
			m.store(key, resp)
		}
		m.metrics.CacheLookup(policyNetworkFirst, "network")
		return resp, nil
	}

	if cached, ok := m.match(key); ok {
		m.metrics.CacheLookup(policyNetworkFirst, "hit")
		return cached, nil
	}
	if page, ok := m.match(m.cfg.OfflinePage); ok {
		m.metrics.CacheLookup(policyNetworkFirst, "offline")
		return page, nil
	}
	m.metrics.CacheLookup(policyNetworkFirst, "miss")
	return nil, fmt.Errorf("%w: %v", ErrOffline, err)
}

func (m *Manager) cacheFirst(ctx context.Context, r *http.Request) (*Response, error) {
	key := cacheKey(r)
	if cached, ok := m.match(key); ok {
		m.metrics.CacheLookup(policyCacheFirst, "hit")
		m.revalidate(r, key)
		return cached, nil
	}

	resp, err := m.fetcher.Fetch(ctx, r)
	if err != nil {
		m.metrics.CacheLookup(policyCacheFirst, "miss")
		return nil, fmt.Errorf("%w: %v", ErrOffline, err)
	}
	if resp.Status == http.StatusOK {
		m.storage.Open(m.cfg.DynamicCache).Put(key, resp)
	}
	m.metrics.CacheLookup(policyCacheFirst, "network")
	return resp, nil
}

// revalidate 后台刷新缓存，请求结束后仍继续
func (m *Manager) revalidate(r *http.Request, key string) {
	m.revalidating.Add(1)
	go func() {
		defer m.revalidating.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.revalidateTO)
		defer cancel()

		resp, err := m.fetcher.Fetch(ctx, r.Clone(ctx))
		if err != nil {
			m.logger.Debug("后台刷新缓存失败 %s: %v", key, err)
			return
		}
		if resp.Status == http.StatusOK {
			m.store(key, resp)
		}
	}()
}

// Wait 等待后台刷新结束
func (m *Manager) Wait() {
	m.revalidating.Wait()
}

// store 写回已有该键的缓存，否则写入动态缓存
func (m *Manager) store(key string, resp *Response) {
	for _, name := range []string{m.cfg.StaticCache, m.cfg.DynamicCache} {
		if !m.storage.Has(name) {
			continue
		}
		if c := m.storage.Open(name); c.Has(key) {
			c.Put(key, resp)
			return
		}
	}
	m.storage.Open(m.cfg.DynamicCache).Put(key, resp)
}

func (m *Manager) match(key string) (*Response, bool) {
	return m.storage.Match(key, m.cfg.StaticCache, m.cfg.DynamicCache)
}

func (m *Manager) isAPI(p string) bool {
	for _, prefix := range m.cfg.APIPrefix {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Handler 以 http.Handler 形式提供缓存策略
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := m.Fetch(r.Context(), r)
		if err != nil {
			m.logger.Warn("离线请求失败 %s: %v", r.URL.Path, err)
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		for k, vs := range resp.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.Status)
		w.Write(resp.Body)
	})
}

// isNavigation 整页加载请求
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// cacheKey 站内请求用路径加查询，外部资源用完整URL
func cacheKey(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	return r.URL.RequestURI()
}
