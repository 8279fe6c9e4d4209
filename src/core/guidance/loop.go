package guidance

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"receipt-scanner-go/src/core/detector"
	imgproc "receipt-scanner-go/src/core/image"
	"receipt-scanner-go/src/core/metrics"
	"receipt-scanner-go/src/core/utils"
)

var ErrAlreadyArmed = errors.New("guidance loop already armed")

// Phase 引导循环状态
type Phase int

const (
	Idle Phase = iota
	Armed
)

// FrameSource 提供当前视频帧
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Renderer 显示引导状态与检测覆盖层
type Renderer interface {
	ClearOverlays()
	Render(st State, matches []detector.Detection)
}

// Clock 渲染节拍。处理慢于节拍时多余的节拍直接丢弃，不会堆积
type Clock interface {
	C() <-chan time.Time
	Stop()
}

type tickerClock struct {
	ticker *time.Ticker
}

// NewTickerClock 以固定帧率产生节拍，time.Ticker 自身会丢弃来不及接收的节拍
func NewTickerClock(fps int) Clock {
	if fps <= 0 {
		fps = 10
	}
	return &tickerClock{ticker: time.NewTicker(time.Second / time.Duration(fps))}
}

func (c *tickerClock) C() <-chan time.Time { return c.ticker.C }
func (c *tickerClock) Stop()               { c.ticker.Stop() }

// Handle 一次布防的控制句柄
type Handle struct {
	armed  atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop 结束循环并等待其退出，可重复调用
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Armed 循环是否仍在运行
func (h *Handle) Armed() bool {
	return h.armed.Load()
}

// Done 循环退出时关闭
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Loop 取景引导循环：取帧、预处理、检测、计算覆盖率、更新提示
type Loop struct {
	detector   detector.Detector
	params     Params
	preprocess imgproc.PreprocessOptions
	logger     *utils.Logger
	metrics    *metrics.Metrics

	mu     sync.Mutex
	handle *Handle
	last   State
}

// NewLoop 创建引导循环
func NewLoop(det detector.Detector, params Params, opts imgproc.PreprocessOptions, logger *utils.Logger, m *metrics.Metrics) *Loop {
	return &Loop{
		detector:   det,
		params:     params,
		preprocess: opts,
		logger:     logger,
		metrics:    m,
	}
}

// Phase 当前状态
func (l *Loop) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != nil && l.handle.Armed() {
		return Armed
	}
	return Idle
}

// LastState 最近一次计算出的引导状态
func (l *Loop) LastState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Arm 进入 Armed 状态，每个节拍执行一次 Tick，直到 Handle.Stop 或 ctx 结束
func (l *Loop) Arm(ctx context.Context, src FrameSource, clock Clock, r Renderer) (*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle != nil && l.handle.Armed() {
		clock.Stop()
		return nil, ErrAlreadyArmed
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	h.armed.Store(true)
	l.handle = h

	go l.run(runCtx, h, src, clock, r)
	return h, nil
}

func (l *Loop) run(ctx context.Context, h *Handle, src FrameSource, clock Clock, r Renderer) {
	defer func() {
		clock.Stop()
		h.armed.Store(false)
		l.mu.Lock()
		if l.handle == h {
			l.handle = nil
		}
		l.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-clock.C():
			if ctx.Err() != nil {
				return
			}
			// 错误只记录，循环只会被显式关闭终止
			_, _ = l.Tick(ctx, src, r)
		}
	}
}

// Tick 执行一次引导计算
func (l *Loop) Tick(ctx context.Context, src FrameSource, r Renderer) (State, error) {
	r.ClearOverlays()

	frame, err := src.Frame(ctx)
	if err != nil {
		l.metrics.GuidanceTick("frame_error")
		l.logger.Warn("获取视频帧失败: %v", err)
		return State{}, err
	}

	input := imgproc.Preprocess(frame, l.preprocess)
	dets, err := l.detector.Detect(ctx, input)
	if err != nil {
		l.metrics.GuidanceTick("detector_error")
		l.logger.Warn("目标检测失败: %v", err)
		return State{}, err
	}
	if ctx.Err() != nil {
		return State{}, ctx.Err()
	}

	// 检测框坐标与预处理后的帧处于同一坐标系
	b := input.Bounds()
	st := Evaluate(dets, b.Dx(), b.Dy(), l.params)
	r.Render(st, detector.Filter(dets, l.params.TargetClass, l.params.MinConfidence))

	l.mu.Lock()
	l.last = st
	l.mu.Unlock()

	l.metrics.GuidanceTick(st.Indicator.String())
	return st, nil
}
