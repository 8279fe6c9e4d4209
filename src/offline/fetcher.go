package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Fetcher 网络请求
type Fetcher interface {
	Fetch(ctx context.Context, r *http.Request) (*Response, error)
}

// OriginFetcher 绝对URL走 HTTP 客户端，相对路径交给本地处理器或回源地址
type OriginFetcher struct {
	Client *http.Client
	Origin *url.URL     // 为空时使用 Local
	Local  http.Handler // 本机静态资源
}

func NewOriginFetcher(origin string, local http.Handler, timeout time.Duration) (*OriginFetcher, error) {
	f := &OriginFetcher{
		Client: &http.Client{Timeout: timeout},
		Local:  local,
	}
	if origin != "" {
		u, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("解析回源地址失败: %w", err)
		}
		f.Origin = u
	}
	return f, nil
}

func (f *OriginFetcher) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	if !r.URL.IsAbs() && f.Origin == nil && f.Local != nil {
		return f.serveLocal(ctx, r)
	}

	target := r.URL
	if !target.IsAbs() {
		if f.Origin == nil {
			return nil, fmt.Errorf("无法解析相对地址: %s", r.URL)
		}
		target = f.Origin.ResolveReference(r.URL)
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	out.Header = r.Header.Clone()

	resp, err := f.Client.Do(out)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

func (f *OriginFetcher) serveLocal(ctx context.Context, r *http.Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := &bufferWriter{header: make(http.Header)}
	f.Local.ServeHTTP(w, r.Clone(ctx))
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return &Response{Status: w.status, Header: w.header, Body: w.buf.Bytes()}, nil
}

// bufferWriter 把本地处理器的输出收集为 Response
type bufferWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func (w *bufferWriter) Header() http.Header { return w.header }

func (w *bufferWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.buf.Write(p)
}

// DirOrigin 从目录提供静态资源，"/" 对应 index.html，不做目录跳转
func DirOrigin(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		if p == "/" {
			p = "/index.html"
		}
		full := filepath.Join(dir, filepath.FromSlash(p))

		f, err := os.Open(full)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}
