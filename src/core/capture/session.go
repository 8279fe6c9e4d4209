package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"receipt-scanner-go/src/core/detector"
	"receipt-scanner-go/src/core/guidance"

	"github.com/google/uuid"
)

var ErrSessionClosed = errors.New("capture session closed")

// Overlay 画面上的一个检测框标注
type Overlay struct {
	Label string
	Score float64
	Box   detector.BBox
}

// View 客户端界面
type View interface {
	ShowGuidance(st guidance.State, overlays []Overlay)
	ShowOutcome(out Outcome)
}

// Session 一次拍摄会话，持有独占的视频流与覆盖层
type Session struct {
	ID string

	stream Stream
	view   View

	mu       sync.Mutex
	handle   *guidance.Handle
	overlays []Overlay
	closed   bool
}

// OpenSession 打开摄像头创建会话；失败时不持有任何资源
func OpenSession(ctx context.Context, cam Camera, view View) (*Session, error) {
	stream, err := cam.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:     uuid.New().String(),
		stream: stream,
		view:   view,
	}, nil
}

// Frame 实现 guidance.FrameSource
func (s *Session) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}
	return s.stream.Frame(ctx)
}

// ClearOverlays 实现 guidance.Renderer
func (s *Session) ClearOverlays() {
	s.mu.Lock()
	s.overlays = s.overlays[:0]
	s.mu.Unlock()
}

// Render 实现 guidance.Renderer
func (s *Session) Render(st guidance.State, matches []detector.Detection) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, m := range matches {
		s.overlays = append(s.overlays, Overlay{Label: m.Class, Score: m.Score, Box: m.BBox})
	}
	snapshot := append([]Overlay(nil), s.overlays...)
	s.mu.Unlock()

	if s.view != nil {
		s.view.ShowGuidance(st, snapshot)
	}
}

// Overlays 当前覆盖层
func (s *Session) Overlays() []Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Overlay(nil), s.overlays...)
}

// Arm 启动取景引导
func (s *Session) Arm(ctx context.Context, loop *guidance.Loop, clock guidance.Clock) error {
	// 持锁启动，Close 要么看到已保存的 handle，要么让这里看到 closed
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		clock.Stop()
		return ErrSessionClosed
	}

	h, err := loop.Arm(ctx, s, clock, s)
	if err != nil {
		return fmt.Errorf("arm guidance: %w", err)
	}
	s.handle = h
	return nil
}

// Armed 引导循环是否在运行
func (s *Session) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil && s.handle.Armed()
}

// Disarm 停止取景引导，会话保持打开
func (s *Session) Disarm() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// Snapshot 冻结当前帧
func (s *Session) Snapshot(ctx context.Context) (image.Image, error) {
	return s.Frame(ctx)
}

// Close 停止引导、释放视频流并清空覆盖层，可重复调用
func (s *Session) Close() {
	s.Disarm()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.overlays = nil
	s.stream.Stop()
}
