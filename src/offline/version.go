package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"receipt-scanner-go/src/configs"
)

// Marker 版本标记资源
type Marker struct {
	Version string `json:"version"`
}

// CheckVersion 拉取版本标记并与上次比较，变化时广播一次更新通知。
// 比已生效检查更早发起的结果会被丢弃，乱序返回的旧标记不会回退版本。
func (m *Manager) CheckVersion(ctx context.Context) (bool, error) {
	seq := m.checkSeq.Add(1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.VersionPath, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		return false, fmt.Errorf("获取版本标记失败: %w", err)
	}
	if resp.Status != http.StatusOK {
		return false, fmt.Errorf("获取版本标记失败: 状态码 %d", resp.Status)
	}

	var marker Marker
	if err := json.Unmarshal(resp.Body, &marker); err != nil {
		return false, fmt.Errorf("解析版本标记失败: %w", err)
	}
	if marker.Version == "" {
		return false, fmt.Errorf("版本标记为空")
	}

	m.versionMu.Lock()
	defer m.versionMu.Unlock()

	if seq < m.appliedSeq {
		m.logger.Debug("丢弃过期的版本检查结果: %s", marker.Version)
		return false, nil
	}
	m.appliedSeq = seq

	if !m.seenVersion {
		m.seenVersion = true
		m.lastVersion = marker.Version
		m.logger.Info("当前应用版本: %s", marker.Version)
		return false, nil
	}
	if marker.Version == m.lastVersion {
		return false, nil
	}

	m.logger.Info("检测到新版本: %s -> %s", m.lastVersion, marker.Version)
	m.lastVersion = marker.Version
	m.broadcaster.Broadcast(Message{Type: MessageUpdateAvailable})
	m.metrics.UpdateBroadcast()
	return true, nil
}

// LastVersion 最近一次看到的版本
func (m *Manager) LastVersion() string {
	m.versionMu.Lock()
	defer m.versionMu.Unlock()
	return m.lastVersion
}

// checkQuietly 检查失败视为没有更新
func (m *Manager) checkQuietly(ctx context.Context) {
	if _, err := m.CheckVersion(ctx); err != nil {
		m.logger.Warn("版本检查失败: %v", err)
	}
}

// Run 按间隔轮询版本，直到 ctx 结束
func (m *Manager) Run(ctx context.Context) error {
	interval := configs.ParseDuration(m.cfg.PollInterval, 15*time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("版本轮询已启动，间隔 %s", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.checkQuietly(ctx)
		}
	}
}
