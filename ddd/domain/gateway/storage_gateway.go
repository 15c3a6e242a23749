package gateway

import "context"

// StorageGateway 对象存储网关
type StorageGateway interface {
	// UploadRenderOutput 上传渲染产物，返回可访问的对象路径
	UploadRenderOutput(ctx context.Context, localPath, objectKey, contentType string) (string, error)

	// DownloadFile 把远端对象下载到本地路径
	DownloadFile(ctx context.Context, objectKey, localPath string) error
}
