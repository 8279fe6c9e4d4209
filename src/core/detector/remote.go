package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// RemoteDetector 通过 HTTP 调用外部模型服务完成检测
type RemoteDetector struct {
	inferenceURL string
	client       *http.Client
}

// NewRemoteDetector 创建远程检测适配器
func NewRemoteDetector(inferenceURL string, timeout time.Duration) *RemoteDetector {
	return &RemoteDetector{
		inferenceURL: inferenceURL,
		client:       &http.Client{Timeout: timeout},
	}
}

// Detect 把帧编码为 JPEG 以 multipart 上传，解析 {"detections":[...]}
func (d *RemoteDetector) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	var img bytes.Buffer
	if err := jpeg.Encode(&img, frame, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(img.Bytes()); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.inferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Detections []Detection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Detections, nil
}

// CheckHealth 检查模型服务是否可用
func (d *RemoteDetector) CheckHealth(ctx context.Context) error {
	url := strings.TrimSuffix(d.inferenceURL, "/predict") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
