package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/core/utils"
)

// Config OCR提供者配置
type Config struct {
	Type      string
	BaseURL   string
	APIKey    string
	ModelName string
	Prompt    string
	Timeout   time.Duration
	Data      map[string]interface{}
}

// Provider OCR提供者接口
//
// Recognize 接收 base64 图片，返回提供者的原始 JSON 响应，
// 响应结构与云端文字识别接口的 responses[].fullTextAnnotation 一致。
type Provider interface {
	Recognize(ctx context.Context, imageBase64 string) ([]byte, error)
	Name() string
}

// Factory OCR提供者工厂函数类型
type Factory func(config *Config, logger *utils.Logger) (Provider, error)

var (
	factories = make(map[string]Factory)
)

// Register 注册OCR提供者工厂
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Create 创建OCR提供者实例
func Create(name string, ocrConfig configs.OCRConfig, logger *utils.Logger) (Provider, error) {
	factory, ok := factories[ocrConfig.Type]
	if !ok {
		return nil, fmt.Errorf("未知的OCR提供者类型: %s (%s)", ocrConfig.Type, name)
	}

	config := &Config{
		Type:      ocrConfig.Type,
		BaseURL:   ocrConfig.BaseURL,
		APIKey:    ocrConfig.APIKey,
		ModelName: ocrConfig.ModelName,
		Prompt:    ocrConfig.Prompt,
		Timeout:   configs.ParseDuration(ocrConfig.Timeout, 30*time.Second),
		Data:      ocrConfig.Extra,
	}

	provider, err := factory(config, logger)
	if err != nil {
		return nil, fmt.Errorf("创建OCR提供者失败: %w", err)
	}

	logger.Debug("OCR提供者创建成功 %s (%s)", name, config.Type)
	return provider, nil
}

// GetRegisteredProviders 获取已注册的提供者列表
func GetRegisteredProviders() []string {
	var providers []string
	for name := range factories {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

// AnnotateResponse 云端文字识别的响应结构，只保留用到的字段
type AnnotateResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation,omitempty"`
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations,omitempty"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"responses"`
}

// ExtractText 从原始响应中取出识别文本，结构缺失时返回空字符串
func ExtractText(raw []byte) (string, error) {
	var resp AnnotateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("解析识别结果失败: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", nil
	}
	first := resp.Responses[0]
	if first.FullTextAnnotation != nil && first.FullTextAnnotation.Text != "" {
		return first.FullTextAnnotation.Text, nil
	}
	if len(first.TextAnnotations) > 0 {
		return first.TextAnnotations[0].Description, nil
	}
	return "", nil
}

// WrapText 把纯文本包装成与云端接口一致的响应结构
func WrapText(text string) ([]byte, error) {
	resp := map[string]interface{}{
		"responses": []map[string]interface{}{
			{
				"fullTextAnnotation": map[string]string{"text": text},
			},
		},
	}
	return json.Marshal(resp)
}
