package ocrproxy

import (
	"context"

	"github.com/gin-gonic/gin"
)

// OCRService 定义识别代理服务接口
type OCRService interface {
	// 将识别代理的路由注册到 engine 与 apiGroup
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}
