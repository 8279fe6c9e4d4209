package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"receipt-scanner-go/src/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultRetention 默认保留的日志条数
const DefaultRetention = 1000

// Entry 一次识别请求的日志
type Entry struct {
	Timestamp        time.Time `json:"timestamp"`
	ProcessingTime   int64     `json:"processingTime"`
	DeviceInfo       string    `json:"deviceInfo"`
	ImageSize        int64     `json:"imageSizeBytes"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	CustomerID       string    `json:"customerId,omitempty"`
	ScreenResolution string    `json:"screenResolution,omitempty"`
}

// Store 日志存储，只保留最新的若干条
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent 按时间从旧到新返回保留的日志
	Recent(ctx context.Context) ([]Entry, error)
}

// MemoryStore 内存存储，未配置数据库时使用
type MemoryStore struct {
	mu        sync.Mutex
	entries   []Entry
	retention int
}

func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{retention: retention}
}

func (s *MemoryStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.retention; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// GormStore 数据库存储
type GormStore struct {
	db        *gorm.DB
	retention int
}

func NewGormStore(db *gorm.DB, retention int) *GormStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &GormStore{db: db, retention: retention}
}

// Append 写入一条日志并删除超出保留数量的旧日志
func (s *GormStore) Append(ctx context.Context, e Entry) error {
	row, err := toModel(e)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("写入分析日志失败: %w", err)
		}

		var cutoff models.AnalyticsLog
		err := tx.Select("id").Order("id desc").Offset(s.retention).Limit(1).Take(&cutoff).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("查询保留边界失败: %w", err)
		}
		if err := tx.Where("id <= ?", cutoff.ID).Delete(&models.AnalyticsLog{}).Error; err != nil {
			return fmt.Errorf("清理旧日志失败: %w", err)
		}
		return nil
	})
}

func (s *GormStore) Recent(ctx context.Context) ([]Entry, error) {
	var rows []models.AnalyticsLog
	if err := s.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取分析日志失败: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fromModel(row))
	}
	return entries, nil
}

type metadata struct {
	ScreenResolution string `json:"screenResolution,omitempty"`
}

func toModel(e Entry) (*models.AnalyticsLog, error) {
	meta, err := json.Marshal(metadata{ScreenResolution: e.ScreenResolution})
	if err != nil {
		return nil, err
	}
	return &models.AnalyticsLog{
		Timestamp:      e.Timestamp,
		ProcessingTime: e.ProcessingTime,
		DeviceInfo:     e.DeviceInfo,
		ImageSize:      e.ImageSize,
		Success:        e.Success,
		Error:          e.Error,
		CustomerID:     e.CustomerID,
		Metadata:       datatypes.JSON(meta),
	}, nil
}

func fromModel(row models.AnalyticsLog) Entry {
	var meta metadata
	if len(row.Metadata) > 0 {
		_ = json.Unmarshal(row.Metadata, &meta)
	}
	return Entry{
		Timestamp:        row.Timestamp,
		ProcessingTime:   row.ProcessingTime,
		DeviceInfo:       row.DeviceInfo,
		ImageSize:        row.ImageSize,
		Success:          row.Success,
		Error:            row.Error,
		CustomerID:       row.CustomerID,
		ScreenResolution: meta.ScreenResolution,
	}
}
