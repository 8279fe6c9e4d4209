package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/core/utils"
)

// ImageSecurityValidator 上传图片安全验证器
type ImageSecurityValidator struct {
	config *configs.SecurityConfig
	logger *utils.Logger
}

// NewImageSecurityValidator 创建新的图片安全验证器
func NewImageSecurityValidator(config *configs.SecurityConfig, logger *utils.Logger) *ImageSecurityValidator {
	return &ImageSecurityValidator{
		config: config,
		logger: logger,
	}
}

// 可执行文件签名，出现在文件开头即拒绝
var executableSignatures = map[string][]byte{
	"PE":     {0x4D, 0x5A},
	"ELF":    {0x7F, 0x45, 0x4C, 0x46},
	"Mach-O": {0xCA, 0xFE, 0xBA, 0xBE},
}

// DetectFormat 根据文件头判断图片格式，无法识别时返回空字符串
func DetectFormat(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return "jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "gif"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp"
	case len(data) >= 2 && data[0] == 0x42 && data[1] == 0x4D:
		return "bmp"
	}
	return ""
}

// DecodeBase64 解码上传的 base64 图片，兼容 data URL 前缀
func DecodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("base64解码失败: %w", err)
	}
	return data, nil
}

// ValidateImageData 验证 base64 图片数据
func (v *ImageSecurityValidator) ValidateImageData(imageData ImageData) ValidationResult {
	if imageData.Data == "" {
		return ValidationResult{Error: fmt.Errorf("缺少图片数据")}
	}
	data, err := DecodeBase64(imageData.Data)
	if err != nil {
		return ValidationResult{Error: err, SecurityRisk: "无效的base64数据"}
	}
	return v.ValidateBytes(data)
}

// ValidateBytes 验证原始图片字节
func (v *ImageSecurityValidator) ValidateBytes(data []byte) ValidationResult {
	result := ValidationResult{FileSize: int64(len(data))}

	if len(data) == 0 {
		result.Error = fmt.Errorf("图片数据为空")
		return result
	}

	if int64(len(data)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf("文件大小超限: %d bytes，最大允许: %d bytes", len(data), v.config.MaxFileSize)
		result.SecurityRisk = "文件过大"
		v.logger.Warn("检测到超大文件", map[string]interface{}{
			"size":     len(data),
			"max_size": v.config.MaxFileSize,
		})
		return result
	}

	for name, sig := range executableSignatures {
		if bytes.HasPrefix(data, sig) {
			result.Error = fmt.Errorf("检测到可执行文件签名: %s", name)
			result.SecurityRisk = "可能包含恶意载荷"
			v.logger.Warn("文件开头检测到可执行文件签名", map[string]interface{}{
				"signature_type": name,
			})
			return result
		}
	}

	format := DetectFormat(data)
	if format == "" {
		result.Error = fmt.Errorf("不支持的文件格式")
		return result
	}
	if !v.isFormatAllowed(format) {
		result.Error = fmt.Errorf("不支持的格式: %s", format)
		result.SecurityRisk = "使用了不被允许的格式"
		return result
	}

	config, actualFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		result.Error = fmt.Errorf("图片解码失败: %v", err)
		result.SecurityRisk = "可能损坏的图片数据"
		return result
	}
	result.Format = actualFormat

	if config.Width > v.config.MaxWidth || config.Height > v.config.MaxHeight {
		result.Error = fmt.Errorf("图片尺寸超限: %dx%d，最大允许: %dx%d",
			config.Width, config.Height, v.config.MaxWidth, v.config.MaxHeight)
		result.SecurityRisk = "图片过大，可能消耗过多资源"
		return result
	}

	totalPixels := int64(config.Width) * int64(config.Height)
	if totalPixels > v.config.MaxPixels {
		result.Error = fmt.Errorf("像素总数超限: %d，最大允许: %d", totalPixels, v.config.MaxPixels)
		result.SecurityRisk = "像素过多，可能导致内存耗尽"
		return result
	}

	result.IsValid = true
	result.Width = config.Width
	result.Height = config.Height

	v.logger.Debug("图片验证成功 %s %dx%d %d bytes", result.Format, result.Width, result.Height, result.FileSize)
	return result
}

// isFormatAllowed 检查格式是否被允许
func (v *ImageSecurityValidator) isFormatAllowed(format string) bool {
	for _, allowed := range v.config.AllowedFormats {
		if strings.EqualFold(allowed, format) || (format == "jpeg" && strings.EqualFold(allowed, "jpg")) {
			return true
		}
	}
	return false
}
