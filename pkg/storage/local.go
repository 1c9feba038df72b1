package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Local 本地磁盘存储（开发环境或未配置 OSS 时使用）
type Local struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// NewLocal 创建本地磁盘存储，目录不存在时自动创建
func NewLocal(dir, baseURL string, logger *zap.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建上传目录失败: %w", err)
	}
	return &Local{dir: dir, baseURL: baseURL, logger: logger}, nil
}

// Dir 返回根目录（用于静态文件路由）
func (l *Local) Dir() string { return l.dir }

func (l *Local) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	full, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("创建文件失败: %w", err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		// 不留下半截文件
		_ = os.Remove(full)
		return "", fmt.Errorf("写入文件失败: %w", err)
	}

	l.logger.Debug("附件已保存到本地", zap.String("key", key))
	return l.URL(key), nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) URL(key string) string {
	return joinURL(l.baseURL, key)
}

// resolve 将对象键映射为磁盘路径，拒绝越出根目录的键
func (l *Local) resolve(key string) (string, error) {
	root, err := filepath.Abs(l.dir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(key))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("非法的对象键: %s", key)
	}
	return full, nil
}
