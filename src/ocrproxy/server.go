package ocrproxy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"receipt-scanner-go/src/analytics"
	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/core/auth"
	"receipt-scanner-go/src/core/image"
	"receipt-scanner-go/src/core/metrics"
	"receipt-scanner-go/src/core/providers/ocr"
	"receipt-scanner-go/src/core/utils"

	"github.com/gin-gonic/gin"
)

type DefaultOCRService struct {
	logger       *utils.Logger
	config       *configs.Config
	provider     ocr.Provider
	validator    *image.ImageSecurityValidator
	store        analytics.Store
	authToken    *auth.AuthToken // 为空时不校验令牌
	metrics      *metrics.Metrics
	writeTimeout time.Duration

	pending sync.WaitGroup // 未完成的日志写入
	now     func() time.Time
}

// NewProvider 按 selected_module.OCR 创建识别提供者
func NewProvider(config *configs.Config, logger *utils.Logger) (ocr.Provider, error) {
	selected := config.SelectedModule["OCR"]
	if selected == "" {
		logger.Warn("请设置好OCR provider配置")
		return nil, fmt.Errorf("请设置好OCR provider配置")
	}
	ocrConfig, ok := config.OCR[selected]
	if !ok {
		return nil, fmt.Errorf("找不到OCR provider配置: %s", selected)
	}
	provider, err := ocr.Create(selected, ocrConfig, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("OCR provider %s 初始化成功", selected)
	return provider, nil
}

// NewDefaultOCRService 构造函数
func NewDefaultOCRService(config *configs.Config, provider ocr.Provider, store analytics.Store, logger *utils.Logger, m *metrics.Metrics) (*DefaultOCRService, error) {
	if provider == nil {
		return nil, errors.New("没有可用的OCR provider")
	}
	service := &DefaultOCRService{
		logger:       logger,
		config:       config,
		provider:     provider,
		validator:    image.NewImageSecurityValidator(&config.Security, logger),
		store:        store,
		metrics:      m,
		writeTimeout: configs.ParseDuration(config.Analytics.WriteTimeout, 3*time.Second),
		now:          time.Now,
	}

	if config.Server.Auth.Enabled {
		at, err := auth.NewAuthToken(config.Server.Auth.Secret)
		if err != nil {
			return nil, fmt.Errorf("初始化认证失败: %w", err)
		}
		service.authToken = at
	}

	return service, nil
}

// Start 实现 OCRService 接口
func (s *DefaultOCRService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	engine.GET("/vision-api", s.handleGet)
	engine.POST("/vision-api", s.handlePost)
	engine.OPTIONS("/vision-api", s.handleOptions)

	s.logger.Info("OCR代理路由注册完成")
	return nil
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *DefaultOCRService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// handleGet 处理GET请求（状态检查）
func (s *DefaultOCRService) handleGet(c *gin.Context) {
	s.addCORSHeaders(c)
	c.String(http.StatusOK, "OCR proxy is running, provider: "+s.provider.Name())
}

// handlePost 转发图片到识别服务，原样返回结果
func (s *DefaultOCRService) handlePost(c *gin.Context) {
	s.addCORSHeaders(c)
	start := s.now()

	// base64 编码后体积约为原图的 4/3
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Security.MaxFileSize*2)

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("识别请求解析失败: %v", err)
		s.record(req, start, 0, err)
		c.String(http.StatusInternalServerError, processingErrorText)
		return
	}

	if s.authToken != nil {
		customerID, err := s.verifyAuth(c)
		if err != nil {
			s.logger.Warn("识别接口认证失败 %v", err)
			s.record(req, start, 0, err)
			s.respondError(c, http.StatusUnauthorized, "无效的认证token或token已过期")
			return
		}
		if req.CustomerID == "" {
			req.CustomerID = customerID
		}
	}

	// 解码与校验失败与识别失败一样只返回固定文本
	data, err := image.DecodeBase64(req.Image)
	if err != nil {
		s.logger.Warn("图片解码失败: %v", err)
		s.record(req, start, 0, err)
		c.String(http.StatusInternalServerError, processingErrorText)
		return
	}
	if result := s.validator.ValidateBytes(data); !result.IsValid {
		s.logger.Warn("图片校验失败: %v", result.Error)
		s.record(req, start, int64(len(data)), result.Error)
		c.String(http.StatusInternalServerError, processingErrorText)
		return
	}

	raw, err := s.provider.Recognize(c.Request.Context(), base64.StdEncoding.EncodeToString(data))
	s.metrics.ObserveOCR(err == nil, s.now().Sub(start))
	s.record(req, start, int64(len(data)), err)
	if err != nil {
		s.logger.Error("调用OCR失败: %v", err)
		c.String(http.StatusInternalServerError, processingErrorText)
		return
	}

	s.logger.Debug("OCR识别完成 %s, %d bytes", s.provider.Name(), len(raw))
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// verifyAuth 验证 Bearer 令牌，返回令牌中的客户ID
func (s *DefaultOCRService) verifyAuth(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.New("缺少Bearer令牌")
	}
	return s.authToken.VerifyToken(strings.TrimPrefix(authHeader, "Bearer "))
}

// record 异步写入分析日志，写入失败只记录不影响响应
func (s *DefaultOCRService) record(req Request, start time.Time, decodedSize int64, callErr error) {
	if s.store == nil {
		return
	}

	now := s.now()
	entry := analytics.Entry{
		Timestamp:        now,
		ProcessingTime:   processingTime(req.StartTime, start, now),
		DeviceInfo:       req.DeviceInfo,
		ImageSize:        req.ImageSize,
		Success:          callErr == nil,
		CustomerID:       req.CustomerID,
		ScreenResolution: req.ScreenResolution,
	}
	if entry.ImageSize <= 0 {
		entry.ImageSize = decodedSize
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()
		if err := s.store.Append(ctx, entry); err != nil {
			s.metrics.AnalyticsWriteFailed()
			s.logger.Error("写入分析日志失败: %v", err)
		}
	}()
}

// Wait 等待未完成的日志写入，关闭服务时调用
func (s *DefaultOCRService) Wait() {
	s.pending.Wait()
}

// processingTime 优先使用客户端开始时间，异常时退回服务端耗时
func processingTime(clientStartMs int64, start, now time.Time) int64 {
	if clientStartMs > 0 {
		if d := now.UnixMilli() - clientStartMs; d >= 0 {
			return d
		}
	}
	return now.Sub(start).Milliseconds()
}

// addCORSHeaders 添加CORS头
func (s *DefaultOCRService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "content-type, authorization")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// respondError 返回错误响应
func (s *DefaultOCRService) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{Success: false, Message: message})
}
