package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
)

// Storage 附件存储接口（上传后返回可公开访问的 URL）
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// New 根据配置创建存储实现
func New(cfg *config.StorageConfig, logger *zap.Logger) (Storage, error) {
	switch cfg.Driver {
	case "oss":
		return NewOSS(cfg, logger)
	case "local", "":
		return NewLocal(cfg.LocalDir, cfg.PublicBaseURL, logger)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

// ObjectKey 生成对象存储键：<prefix>/<yyyy/mm>/<uuid><ext>
// 原始文件名仅用于推导扩展名，防止路径穿越
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	return fmt.Sprintf("%s/%s/%s%s", strings.Trim(prefix, "/"), time.Now().Format("2006/01"), uuid.New().String(), ext)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
