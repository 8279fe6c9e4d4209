package openai

import (
	"context"
	"fmt"

	"receipt-scanner-go/src/core/providers/ocr"
	"receipt-scanner-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

const defaultPrompt = "Transcribe all text on this receipt exactly as printed, line by line. Output only the text."

// Provider 使用视觉大模型转写收据文本
type Provider struct {
	config *ocr.Config
	logger *utils.Logger
	client *openai.Client
}

// NewProvider 创建提供者实例
func NewProvider(config *ocr.Config, logger *utils.Logger) (ocr.Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if config.ModelName == "" {
		config.ModelName = openai.GPT4oMini
	}
	if config.Prompt == "" {
		config.Prompt = defaultPrompt
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Provider{
		config: config,
		logger: logger,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (p *Provider) Name() string { return "openai" }

// Recognize 调用对话接口转写文本，并包装为统一的识别响应结构
func (p *Provider) Recognize(ctx context.Context, imageBase64 string) ([]byte, error) {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.config.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: p.config.Prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/jpeg;base64," + imageBase64,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI Vision API调用失败: %w", err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	p.logger.Debug("OpenAI转写完成 %d 字符", len(text))
	return ocr.WrapText(text)
}

func init() {
	ocr.Register("openai", NewProvider)
}
