package analytics

import (
	"bytes"
	"context"
	"net/http"

	"receipt-scanner-go/src/core/utils"

	"github.com/gin-gonic/gin"
)

// Service 日志查询与导出路由
type Service struct {
	store  Store
	logger *utils.Logger
}

func NewService(store Store, logger *utils.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Start 注册 /logs 与 /download-logs
func (s *Service) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	engine.GET("/logs", s.handleLogs)
	engine.GET("/download-logs", s.handleDownload)
	s.logger.Info("分析日志路由注册完成")
	return nil
}

func (s *Service) handleLogs(c *gin.Context) {
	entries, err := s.store.Recent(c.Request.Context())
	if err != nil {
		s.logger.Error("读取分析日志失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching logs"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Service) handleDownload(c *gin.Context) {
	entries, err := s.store.Recent(c.Request.Context())
	if err != nil {
		s.logger.Error("读取分析日志失败: %v", err)
		c.String(http.StatusInternalServerError, "Error downloading logs")
		return
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries); err != nil {
		s.logger.Error("生成CSV失败: %v", err)
		c.String(http.StatusInternalServerError, "Error downloading logs")
		return
	}

	c.Header("Content-Disposition", "attachment; filename=analytics_logs.csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
