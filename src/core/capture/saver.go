package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Saver 本地保存拍摄的图片
type Saver interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// DirSaver 保存到本地目录
type DirSaver struct {
	Dir string
}

func (s DirSaver) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("创建保存目录失败: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("保存图片文件失败: %w", err)
	}
	return path, nil
}

// NopSaver 不保存
type NopSaver struct{}

func (NopSaver) Save(ctx context.Context, name string, data []byte) (string, error) {
	return "", nil
}
