package ota

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type DefaultVersionService struct {
	version     string
	versionFile string
	versionPath string
	startedAt   time.Time
}

// NewDefaultVersionService 构造函数，version 为空时读取 versionFile
func NewDefaultVersionService(version, versionFile, versionPath string) *DefaultVersionService {
	if versionPath == "" {
		versionPath = "/version.json"
	}
	return &DefaultVersionService{
		version:     version,
		versionFile: versionFile,
		versionPath: versionPath,
		startedAt:   time.Now(),
	}
}

// Start 实现 VersionService 接口
func (s *DefaultVersionService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	engine.GET(s.versionPath, s.handleVersion)
	apiGroup.GET("/version", s.handleVersion)
	return nil
}

// Version 当前版本，文件优先于配置以便部署时直接替换
func (s *DefaultVersionService) Version() string {
	if s.versionFile != "" {
		if data, err := os.ReadFile(s.versionFile); err == nil {
			if v := strings.TrimSpace(string(data)); v != "" {
				return v
			}
		}
	}
	if s.version != "" {
		return s.version
	}
	return "1.0.0"
}

func (s *DefaultVersionService) handleVersion(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Access-Control-Allow-Origin", "*")
	c.JSON(http.StatusOK, gin.H{
		"version":    s.Version(),
		"started_at": s.startedAt.UnixNano() / 1e6,
	})
}

// Handler 供离线缓存回源使用
func (s *DefaultVersionService) Handler() http.Handler {
	engine := gin.New()
	engine.GET(s.versionPath, s.handleVersion)
	return engine
}
