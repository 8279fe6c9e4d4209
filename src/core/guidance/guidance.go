package guidance

import (
	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/core/detector"
)

// Indicator 引导提示的颜色状态
type Indicator int

const (
	NotReady Indicator = iota
	Ready
)

func (i Indicator) String() string {
	if i == Ready {
		return "ready"
	}
	return "notReady"
}

// 引导文案
const (
	MessageReady     = "Receipt ready - tap capture"
	MessageCloser    = "Bring the receipt closer"
	MessageSearching = "Position a receipt in frame"
)

// Params 引导参数
//
// Compensation 用于弥补检测框只覆盖部分收据的情况，ReadyThreshold 为判定可拍摄的下限，
// 两者都是经验值，没有推导依据。
type Params struct {
	TargetClass    string
	MinConfidence  float64
	Compensation   float64
	ReadyThreshold float64
}

// DefaultParams 默认引导参数
func DefaultParams() Params {
	return Params{
		TargetClass:    "cell phone",
		MinConfidence:  0.7,
		Compensation:   2.5,
		ReadyThreshold: 0.4,
	}
}

// ParamsFromConfig 从配置构建引导参数
func ParamsFromConfig(cfg configs.GuidanceConfig) Params {
	return Params{
		TargetClass:    cfg.TargetClass,
		MinConfidence:  cfg.MinConfidence,
		Compensation:   cfg.Compensation,
		ReadyThreshold: cfg.ReadyThreshold,
	}
}

// State 每帧重新计算的引导状态
type State struct {
	Ratio     float64
	Message   string
	Indicator Indicator
	Found     bool
	Target    detector.Detection
}

// CoverageRatio 检测框面积占画面面积的比例乘以补偿系数
func CoverageRatio(box detector.BBox, videoWidth, videoHeight int, compensation float64) float64 {
	if videoWidth <= 0 || videoHeight <= 0 {
		return 0
	}
	return box.Area() / (float64(videoWidth) * float64(videoHeight)) * compensation
}

// Evaluate 过滤检测结果并以第一个符合条件的目标计算引导状态
func Evaluate(dets []detector.Detection, videoWidth, videoHeight int, p Params) State {
	matches := detector.Filter(dets, p.TargetClass, p.MinConfidence)
	if len(matches) == 0 {
		return State{Message: MessageSearching, Indicator: NotReady}
	}

	target := matches[0]
	ratio := CoverageRatio(target.BBox, videoWidth, videoHeight, p.Compensation)
	st := State{
		Ratio:     ratio,
		Found:     true,
		Target:    target,
		Message:   MessageCloser,
		Indicator: NotReady,
	}
	if ratio > p.ReadyThreshold {
		st.Message = MessageReady
		st.Indicator = Ready
	}
	return st
}
