package guidance

import (
	"math"
	"testing"

	"receipt-scanner-go/src/core/detector"
)

func phone(w, h, score float64) detector.Detection {
	return detector.Detection{Class: "cell phone", Score: score, BBox: detector.BBox{Width: w, Height: h}}
}

func TestCoverageRatio(t *testing.T) {
	tests := []struct {
		name string
		box  detector.BBox
		want float64
	}{
		{"小框", detector.BBox{Width: 400, Height: 300}, 0.3255},
		{"大框", detector.BBox{Width: 600, Height: 450}, 0.7324},
		{"空框", detector.BBox{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoverageRatio(tt.box, 1280, 720, 2.5)
			if math.Abs(got-tt.want) > 1e-3 {
				t.Errorf("CoverageRatio = %.4f, want %.4f", got, tt.want)
			}
		})
	}

	if got := CoverageRatio(detector.BBox{Width: 10, Height: 10}, 0, 720, 2.5); got != 0 {
		t.Errorf("zero video size ratio = %v", got)
	}
}

func TestEvaluate(t *testing.T) {
	p := DefaultParams()

	t.Run("距离过远", func(t *testing.T) {
		st := Evaluate([]detector.Detection{phone(400, 300, 0.9)}, 1280, 720, p)
		if !st.Found || st.Indicator != NotReady || st.Message != "Bring the receipt closer" {
			t.Errorf("state = %+v", st)
		}
	})

	t.Run("可以拍摄", func(t *testing.T) {
		st := Evaluate([]detector.Detection{phone(600, 450, 0.9)}, 1280, 720, p)
		if st.Indicator != Ready || st.Message != "Receipt ready - tap capture" {
			t.Errorf("state = %+v", st)
		}
	})

	t.Run("置信度不足", func(t *testing.T) {
		st := Evaluate([]detector.Detection{phone(1000, 700, 0.7)}, 1280, 720, p)
		if st.Found || st.Message != "Position a receipt in frame" {
			t.Errorf("state = %+v", st)
		}
	})

	t.Run("只看第一个目标", func(t *testing.T) {
		dets := []detector.Detection{
			{Class: "person", Score: 0.99, BBox: detector.BBox{Width: 1280, Height: 720}},
			phone(400, 300, 0.8),
			phone(1000, 700, 0.95),
		}
		st := Evaluate(dets, 1280, 720, p)
		if st.Indicator != NotReady || st.Target.BBox.Width != 400 {
			t.Errorf("state = %+v", st)
		}
	})

	t.Run("可配置阈值", func(t *testing.T) {
		custom := p
		custom.ReadyThreshold = 0.3
		st := Evaluate([]detector.Detection{phone(400, 300, 0.9)}, 1280, 720, custom)
		if st.Indicator != Ready {
			t.Errorf("state = %+v", st)
		}
	})
}
