package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"render-engine/ddd/domain/gateway"
	"render-engine/pkg/logger"
	"render-engine/pkg/minioclient"
)

// MinioStorage MinIO存储实现
type MinioStorage struct {
	client *minioclient.Client
}

// NewMinioStorage 创建MinIO存储实例
func NewMinioStorage(client *minioclient.Client) gateway.StorageGateway {
	return &MinioStorage{client: client}
}

// UploadRenderOutput 上传渲染产物，返回可访问的对象路径
func (s *MinioStorage) UploadRenderOutput(ctx context.Context, localPath, objectKey, contentType string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		logger.Error("Failed to open local file", map[string]interface{}{
			"local_path": localPath,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("open local file failed: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		logger.Error("Failed to get file info", map[string]interface{}{
			"local_path": localPath,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("get file info failed: %w", err)
	}

	if contentType == "" {
		contentType = getContentTypeFromExtension(objectKey)
	}

	_, err = s.client.Raw().PutObject(ctx, s.client.BucketName(), objectKey, file, fileInfo.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("Failed to upload render output to MinIO", map[string]interface{}{
			"local_path": localPath,
			"object_key": objectKey,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("upload render output to minio failed: %w", err)
	}

	logger.Info("Render output uploaded successfully", map[string]interface{}{
		"local_path": localPath,
		"object_key": objectKey,
		"size":       fileInfo.Size(),
	})

	return objectKey, nil
}

// DownloadFile 从MinIO下载文件到本地路径
func (s *MinioStorage) DownloadFile(ctx context.Context, objectKey, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		logger.Error("Failed to create local directory", map[string]interface{}{
			"local_path": localPath,
			"error":      err.Error(),
		})
		return fmt.Errorf("create local directory failed: %w", err)
	}

	object, err := s.client.Raw().GetObject(ctx, s.client.BucketName(), objectKey, minio.GetObjectOptions{})
	if err != nil {
		logger.Error("Failed to get object from MinIO", map[string]interface{}{
			"object_key": objectKey,
			"error":      err.Error(),
		})
		return fmt.Errorf("get object from minio failed: %w", err)
	}
	defer object.Close()

	localFile, err := os.Create(localPath)
	if err != nil {
		logger.Error("Failed to create local file", map[string]interface{}{
			"local_path": localPath,
			"error":      err.Error(),
		})
		return fmt.Errorf("create local file failed: %w", err)
	}
	defer localFile.Close()

	_, err = localFile.ReadFrom(object)
	if err != nil {
		logger.Error("Failed to download file from MinIO", map[string]interface{}{
			"object_key": objectKey,
			"local_path": localPath,
			"error":      err.Error(),
		})
		return fmt.Errorf("download file from minio failed: %w", err)
	}

	logger.Info("File downloaded successfully", map[string]interface{}{
		"object_key": objectKey,
		"local_path": localPath,
	})

	return nil
}

// getContentTypeFromExtension 根据文件扩展名获取内容类型
func getContentTypeFromExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".srt":
		return "application/x-subrip"
	case ".ass":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".wav":
		return "audio/wav"
	case ".aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}
