package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnalyticsLog 识别请求日志（只保留最新的若干条）
type AnalyticsLog struct {
	ID             uint      `gorm:"primaryKey"`
	Timestamp      time.Time `gorm:"index;not null"`
	ProcessingTime int64     // 毫秒
	DeviceInfo     string    `gorm:"type:text"`
	ImageSize      int64     // 字节
	Success        bool
	Error          string         `gorm:"type:text"`
	CustomerID     string         `gorm:"index"`
	Metadata       datatypes.JSON // 屏幕分辨率等附加信息
}
