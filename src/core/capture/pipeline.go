package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"os"
	"runtime"
	"time"

	"receipt-scanner-go/src/configs"
	imgproc "receipt-scanner-go/src/core/image"
	"receipt-scanner-go/src/core/metrics"
	"receipt-scanner-go/src/core/utils"
)

// Pipeline 拍摄与上传流程：编码、本地保存、提交识别、展示结果
type Pipeline struct {
	uploader   *Uploader
	saver      Saver
	view       View
	cfg        configs.CaptureConfig
	customerID string
	logger     *utils.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewPipeline 创建拍摄流程
func NewPipeline(cfg configs.CaptureConfig, uploader *Uploader, saver Saver, view View, customerID string, logger *utils.Logger, m *metrics.Metrics) *Pipeline {
	if saver == nil {
		saver = NopSaver{}
	}
	return &Pipeline{
		uploader:   uploader,
		saver:      saver,
		view:       view,
		cfg:        cfg,
		customerID: customerID,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// CaptureLive 冻结当前帧并上传，拍摄完成后引导循环回到 Idle
func (p *Pipeline) CaptureLive(ctx context.Context, s *Session) Outcome {
	start := p.now()
	frame, err := s.Snapshot(ctx)
	s.Disarm()
	if err != nil {
		return p.finish(Outcome{Kind: ProcessingError, Err: fmt.Errorf("snapshot: %w", err)})
	}
	return p.encodeAndSubmit(ctx, frame, p.cfg.LiveMaxSide, start)
}

// FromGallery 从相册图片上传，不经过摄像头
func (p *Pipeline) FromGallery(ctx context.Context, r io.Reader) Outcome {
	start := p.now()
	data, err := io.ReadAll(r)
	if err != nil {
		return p.finish(Outcome{Kind: ProcessingError, Err: fmt.Errorf("read image: %w", err)})
	}
	img, _, err := imgproc.Decode(data)
	if err != nil {
		return p.finish(Outcome{Kind: ProcessingError, Err: err})
	}
	return p.encodeAndSubmit(ctx, img, p.cfg.GalleryMaxSide, start)
}

// FromFile 读取本地文件走相册流程
func (p *Pipeline) FromFile(ctx context.Context, path string) Outcome {
	f, err := os.Open(path)
	if err != nil {
		return p.finish(Outcome{Kind: ProcessingError, Err: err})
	}
	defer f.Close()
	return p.FromGallery(ctx, f)
}

func (p *Pipeline) encodeAndSubmit(ctx context.Context, img image.Image, maxSide int, start time.Time) Outcome {
	data, err := imgproc.EncodeJPEG(img, p.cfg.JPEGQuality, maxSide)
	if err != nil {
		return p.finish(Outcome{Kind: ProcessingError, Err: err})
	}

	name := fmt.Sprintf("receipt_%s.jpg", start.Format("20060102_150405"))
	if path, err := p.saver.Save(ctx, name, data); err != nil {
		// 本地保存失败不影响上传
		p.logger.Warn("保存图片失败: %v", err)
	} else if path != "" {
		p.logger.Info("图片已保存到: %s", path)
	}

	b := img.Bounds()
	req := UploadRequest{
		Image:            base64.StdEncoding.EncodeToString(data),
		DeviceInfo:       p.deviceInfo(),
		ScreenResolution: fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		ImageSize:        len(data),
		CustomerID:       p.customerID,
		StartTime:        start.UnixMilli(),
	}
	return p.finish(p.uploader.Submit(ctx, req))
}

// finish 每次提交只展示一次结果
func (p *Pipeline) finish(out Outcome) Outcome {
	if out.Err != nil {
		p.logger.Warn("识别失败(%s): %v", out.Kind, out.Err)
	}
	p.metrics.Upload(out.Kind.String())
	if p.view != nil {
		p.view.ShowOutcome(out)
	}
	return out
}

func (p *Pipeline) deviceInfo() string {
	if p.cfg.DeviceInfo != "" {
		return p.cfg.DeviceInfo
	}
	return fmt.Sprintf("receipt-scanner-go (%s/%s)", runtime.GOOS, runtime.GOARCH)
}
