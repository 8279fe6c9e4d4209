package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"receipt-scanner-go/src/core/providers/ocr"
	"receipt-scanner-go/src/core/utils"
)

// UploadRequest 提交到识别代理的请求体，每次拍摄只发送一次，不自动重试
type UploadRequest struct {
	Image            string `json:"image"`
	DeviceInfo       string `json:"deviceInfo"`
	ScreenResolution string `json:"screenResolution"`
	ImageSize        int    `json:"imageSize"`
	CustomerID       string `json:"customerID"`
	StartTime        int64  `json:"startTime"`
}

// Kind 上传结果分类
type Kind int

const (
	Success Kind = iota
	ScanFailed
	NoText
	ProcessingError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ScanFailed:
		return "scan_failed"
	case NoText:
		return "no_text"
	default:
		return "processing_error"
	}
}

// Outcome 一次上传的结果
type Outcome struct {
	Kind   Kind
	Text   string
	Status int
	Err    error
}

// Message 展示给用户的提示
func (o Outcome) Message() string {
	switch o.Kind {
	case Success:
		return "Receipt scanned successfully"
	case ScanFailed:
		return "Scan failed, please try again"
	case NoText:
		return "No text detected. Try a clearer photo"
	default:
		return "Error processing image. Please try again"
	}
}

// Classify 按状态码与响应体分类上传结果
func Classify(status int, body []byte) Outcome {
	if status < 200 || status > 299 {
		return Outcome{Kind: ScanFailed, Status: status, Err: fmt.Errorf("scan failed with status %d", status)}
	}
	text, err := ocr.ExtractText(body)
	if err != nil {
		return Outcome{Kind: ProcessingError, Status: status, Err: err}
	}
	text = utils.NormalizeText(text)
	if text == "" {
		return Outcome{Kind: NoText, Status: status}
	}
	return Outcome{Kind: Success, Status: status, Text: text}
}

// Uploader 识别代理客户端
type Uploader struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewUploader 创建上传客户端，token 为空时不带认证头
func NewUploader(endpoint, token string, timeout time.Duration) *Uploader {
	return &Uploader{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// Submit 发送一次请求并分类结果
func (u *Uploader) Submit(ctx context.Context, req UploadRequest) Outcome {
	body, err := json.Marshal(req)
	if err != nil {
		return Outcome{Kind: ProcessingError, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: ProcessingError, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if u.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return Outcome{Kind: ProcessingError, Err: fmt.Errorf("upload: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Kind: ProcessingError, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	return Classify(resp.StatusCode, raw)
}
