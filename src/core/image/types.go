package image

// ImageData 图片数据结构
type ImageData struct {
	Data   string `json:"data,omitempty"`   // base64编码的图片数据
	Format string `json:"format,omitempty"` // 图片格式：jpeg, png, webp, gif
}

// ValidationResult 图片验证结果
type ValidationResult struct {
	IsValid      bool   // 是否有效
	Format       string // 实际格式
	Width        int    // 图片宽度
	Height       int    // 图片高度
	FileSize     int64  // 文件大小
	Error        error  // 错误信息
	SecurityRisk string // 安全风险描述
}

// PreprocessOptions 检测输入预处理参数
type PreprocessOptions struct {
	MaxSide    int     // 最长边上限
	Contrast   float64 // 对比度倍数
	Brightness float64 // 亮度倍数
}

// DefaultPreprocessOptions 默认预处理参数
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{MaxSide: 1024, Contrast: 1.2, Brightness: 1.1}
}
