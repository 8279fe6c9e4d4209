package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	imgproc "receipt-scanner-go/src/core/image"
)

var (
	ErrCameraDenied  = errors.New("camera access denied")
	ErrStreamStopped = errors.New("camera stream stopped")
)

// Stream 一路独占的视频流
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Stop()
}

// Camera 摄像头，Open 失败时不得残留已获取的资源
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// HTTPCamera 通过快照地址逐帧读取 JPEG 的网络摄像头
type HTTPCamera struct {
	url    string
	client *http.Client
}

// NewHTTPCamera 创建网络摄像头
func NewHTTPCamera(url string, timeout time.Duration) *HTTPCamera {
	return &HTTPCamera{url: url, client: &http.Client{Timeout: timeout}}
}

// Open 读取一帧确认摄像头可用
func (c *HTTPCamera) Open(ctx context.Context) (Stream, error) {
	s := &httpStream{camera: c}
	if _, err := s.Frame(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraDenied, err)
	}
	return s, nil
}

type httpStream struct {
	camera  *HTTPCamera
	stopped atomic.Bool
}

func (s *httpStream) Frame(ctx context.Context) (image.Image, error) {
	if s.stopped.Load() {
		return nil, ErrStreamStopped
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.camera.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.camera.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	img, _, err := imgproc.Decode(data)
	return img, err
}

func (s *httpStream) Stop() {
	s.stopped.Store(true)
}
