package ocrproxy

// Request 客户端上传的识别请求
type Request struct {
	Image            string `json:"image"`            // base64编码的JPEG，可带 data URL 前缀
	DeviceInfo       string `json:"deviceInfo"`       // 客户端 UA
	ScreenResolution string `json:"screenResolution"` // 采集分辨率
	ImageSize        int64  `json:"imageSize"`        // 客户端统计的字节数
	CustomerID       string `json:"customerID"`
	StartTime        int64  `json:"startTime"` // 客户端开始拍摄的毫秒时间戳
}

// ErrorResponse 认证失败的响应结构
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// 识别失败时返回的固定文本
const processingErrorText = "Error processing image"
