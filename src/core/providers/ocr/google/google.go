package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"receipt-scanner-go/src/core/providers/ocr"
	"receipt-scanner-go/src/core/utils"
)

const defaultEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// Provider 云端文字识别 REST 接口
type Provider struct {
	config     *ocr.Config
	logger     *utils.Logger
	httpClient *http.Client
}

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image struct {
		Content string `json:"content"`
	} `json:"image"`
	Features []feature `json:"features"`
}

type feature struct {
	Type string `json:"type"`
}

// NewProvider 创建提供者实例
func NewProvider(config *ocr.Config, logger *utils.Logger) (ocr.Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OCR API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultEndpoint
	}
	return &Provider{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (p *Provider) Name() string { return "google" }

// Recognize 调用 images:annotate，原样返回响应体
func (p *Provider) Recognize(ctx context.Context, imageBase64 string) ([]byte, error) {
	item := annotateImageRequest{Features: []feature{{Type: "TEXT_DETECTION"}}}
	item.Image.Content = imageBase64
	body, err := json.Marshal(annotateRequest{Requests: []annotateImageRequest{item}})
	if err != nil {
		return nil, fmt.Errorf("请求序列化失败: %w", err)
	}

	endpoint, err := url.Parse(p.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("无效的OCR地址: %w", err)
	}
	q := endpoint.Query()
	q.Set("key", p.config.APIKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCR请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取OCR响应失败: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("OCR接口返回错误: %d %s", resp.StatusCode, utils.Preview(string(raw), 200))
	}

	p.logger.Debug("OCR响应 %d bytes", len(raw))
	return raw, nil
}

func init() {
	ocr.Register("google", NewProvider)
}
