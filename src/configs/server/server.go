package server

import (
	"context"
	"net/http"

	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/core/providers/ocr"
	"receipt-scanner-go/src/core/utils"

	"github.com/gin-gonic/gin"
)

type DefaultCfgService struct {
	logger *utils.Logger
	config *configs.Config
}

// ClientConfig 下发给拍摄客户端的配置，不含任何密钥
type ClientConfig struct {
	AppVersion  string                 `json:"appVersion"`
	OCRProvider string                 `json:"ocrProvider"`
	Providers   []string               `json:"providers"`
	AuthEnabled bool                   `json:"authEnabled"`
	Guidance    configs.GuidanceConfig `json:"guidance"`
	Capture     struct {
		JPEGQuality    int `json:"jpegQuality"`
		LiveMaxSide    int `json:"liveMaxSide"`
		GalleryMaxSide int `json:"galleryMaxSide"`
	} `json:"capture"`
	MaxFileSize int64 `json:"maxFileSize"`
}

// NewDefaultCfgService 构造函数
func NewDefaultCfgService(config *configs.Config, logger *utils.Logger) (*DefaultCfgService, error) {
	service := &DefaultCfgService{
		logger: logger,
		config: config,
	}

	return service, nil
}

// Start 实现 CfgService 接口，注册所有 Cfg 相关路由
func (s *DefaultCfgService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/cfg", s.handleGet)
	apiGroup.OPTIONS("/cfg", s.handleOptions)

	s.logger.Info("Cfg HTTP服务路由注册完成")
	return nil
}

// Snapshot 当前生效的客户端配置
func (s *DefaultCfgService) Snapshot() ClientConfig {
	cc := ClientConfig{
		AppVersion:  s.config.AppVersion,
		OCRProvider: s.config.SelectedModule["OCR"],
		Providers:   ocr.GetRegisteredProviders(),
		AuthEnabled: s.config.Server.Auth.Enabled,
		Guidance:    s.config.Guidance,
		MaxFileSize: s.config.Security.MaxFileSize,
	}
	cc.Capture.JPEGQuality = s.config.Capture.JPEGQuality
	cc.Capture.LiveMaxSide = s.config.Capture.LiveMaxSide
	cc.Capture.GalleryMaxSide = s.config.Capture.GalleryMaxSide
	return cc
}

func (s *DefaultCfgService) handleGet(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.JSON(http.StatusOK, s.Snapshot())
}

func (s *DefaultCfgService) handleOptions(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Status(http.StatusNoContent)
}
