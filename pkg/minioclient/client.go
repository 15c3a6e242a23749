package minioclient

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"render-engine/pkg/config"
	"render-engine/pkg/logger"
)

// Client 对象存储客户端，持有桶名
type Client struct {
	client     *minio.Client
	bucketName string
}

// New 创建客户端并确保桶存在
func New(cfg config.MinioConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("minio bucket_name is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	c := &Client{client: mc, bucketName: cfg.BucketName}
	if err := c.ensureBucket(context.Background()); err != nil {
		return nil, err
	}

	logger.Info("MinIO client initialized", map[string]interface{}{
		"endpoint":    cfg.Endpoint,
		"bucket_name": cfg.BucketName,
	})
	return c, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucketName)
	if err != nil {
		return fmt.Errorf("check minio bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create minio bucket: %w", err)
	}
	return nil
}

// Raw 返回底层客户端
func (c *Client) Raw() *minio.Client {
	return c.client
}

// BucketName 返回桶名
func (c *Client) BucketName() string {
	return c.bucketName
}
