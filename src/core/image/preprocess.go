package image

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	_ "image/gif"  // 注册GIF解码器
	_ "image/png"  // 注册PNG解码器

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// FitSize 按最长边上限等比缩放尺寸，不放大
func FitSize(w, h, maxSide int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	scale := float64(maxSide) / float64(max(w, h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return max(nw, 1), max(nh, 1)
}

// Preprocess 将视频帧缩放到固定上限并增强对比度与亮度，作为检测输入
//
// 空图像不会报错，返回 1x1 的黑色缓冲区。
func Preprocess(src image.Image, opts PreprocessOptions) *image.RGBA {
	if src == nil || src.Bounds().Empty() {
		dst := image.NewRGBA(image.Rect(0, 0, 1, 1))
		dst.Set(0, 0, color.RGBA{A: 0xff})
		return dst
	}

	b := src.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), opts.MaxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	lut := enhanceTable(opts.Contrast, opts.Brightness)
	pix := dst.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = lut[pix[i]]
		pix[i+1] = lut[pix[i+1]]
		pix[i+2] = lut[pix[i+2]]
	}
	return dst
}

// enhanceTable 先对比度后亮度，与 canvas filter "contrast() brightness()" 的顺序一致
func enhanceTable(contrast, brightness float64) [256]uint8 {
	if contrast <= 0 {
		contrast = 1
	}
	if brightness <= 0 {
		brightness = 1
	}
	var lut [256]uint8
	for i := range lut {
		v := float64(i) / 255
		v = (v-0.5)*contrast + 0.5
		v *= brightness
		lut[i] = clamp8(v * 255)
	}
	return lut
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}

// Resize 等比缩放到最长边上限，未超出时原样返回
func Resize(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), maxSide)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// EncodeJPEG 缩放并编码为 JPEG，quality 取值 1-100
func EncodeJPEG(src image.Image, quality, maxSide int) ([]byte, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, fmt.Errorf("图片为空")
	}
	if quality <= 0 || quality > 100 {
		quality = 75
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Resize(src, maxSide), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEG编码失败: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode 解码任意已注册格式的图片
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("图片解码失败: %w", err)
	}
	return img, format, nil
}
