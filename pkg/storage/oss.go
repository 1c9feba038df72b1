package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
)

// OSS 阿里云对象存储
type OSS struct {
	bucket  *oss.Bucket
	baseURL string
	logger  *zap.Logger
}

// NewOSS 创建 OSS 存储客户端
func NewOSS(cfg *config.StorageConfig, logger *zap.Logger) (*OSS, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}

	bkt, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.%s", cfg.Bucket, cfg.Endpoint)
	}

	logger.Info("OSS 存储初始化成功", zap.String("bucket", cfg.Bucket))
	return &OSS{bucket: bkt, baseURL: baseURL, logger: logger}, nil
}

func (s *OSS) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) (string, error) {
	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
	}
	if err := s.bucket.PutObject(key, r, opts...); err != nil {
		return "", fmt.Errorf("上传 OSS 失败: %w", err)
	}
	return s.URL(key), nil
}

func (s *OSS) Delete(ctx context.Context, key string) error {
	return s.bucket.DeleteObject(key, oss.WithContext(ctx))
}

func (s *OSS) URL(key string) string {
	return joinURL(s.baseURL, key)
}
