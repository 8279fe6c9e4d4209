package detector

import (
	"context"
	"image"
)

// BBox 检测框，帧像素坐标
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area 检测框面积
func (b BBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Detection 单个检测结果
type Detection struct {
	Class string  `json:"class"`
	Score float64 `json:"confidence"`
	BBox  BBox    `json:"bbox"`
}

// Detector 目标检测适配器接口，模型本身由外部提供
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// Filter 按类别与置信度过滤，保持原有顺序；置信度必须严格大于 minScore
func Filter(dets []Detection, class string, minScore float64) []Detection {
	filtered := make([]Detection, 0, len(dets))
	for _, det := range dets {
		if det.Class == class && det.Score > minScore {
			filtered = append(filtered, det)
		}
	}
	return filtered
}
