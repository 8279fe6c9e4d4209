package ota

import (
	"context"

	"github.com/gin-gonic/gin"
)

// VersionService 定义版本标记服务接口
type VersionService interface {
	// 将版本标记的路由注册到 engine 与 apiGroup
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}
