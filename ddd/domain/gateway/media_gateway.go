package gateway

import "context"

// 派生产物种类。命名与媒体注册表保持一致。
const (
	ArtifactKindProxy         = "video_proxy"
	ArtifactKindProxy360p     = "video_proxy_360p"
	ArtifactKindStabTransform = "video_stabilise_transform"
	ArtifactKindMask          = "mask"
	ArtifactKindVisualMeta    = "visual_meta"
	ArtifactKindRegionSummary = "video_region_summary"
	ArtifactKindCaptions      = "captions"
	ArtifactKindRender        = "render"
)

// Asset 媒体资产
type Asset struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	Kind       string `json:"kind"` // video | audio | image
	URI        string `json:"uri"`
	LocalPath  string `json:"local_path,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Artifact 派生产物（代理、遮罩、防抖变换、字幕等）
type Artifact struct {
	ID       string            `json:"id"`
	AssetID  string            `json:"asset_id"`
	Kind     string            `json:"kind"`
	URI      string            `json:"uri"`
	Region   string            `json:"region,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RegisterArtifactInput 注册渲染产物的入参
type RegisterArtifactInput struct {
	AssetID  string            `json:"asset_id"`
	Kind     string            `json:"kind"`
	URI      string            `json:"uri"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MediaGateway 媒体/资产注册表协作方网关
type MediaGateway interface {
	// GetAsset 获取资产
	GetAsset(ctx context.Context, assetID string) (*Asset, error)

	// GetArtifact 获取产物
	GetArtifact(ctx context.Context, artifactID string) (*Artifact, error)

	// ListArtifactsForAsset 获取资产的全部派生产物
	ListArtifactsForAsset(ctx context.Context, assetID string) ([]Artifact, error)

	// RegisterArtifact 登记渲染产物，返回产物ID
	RegisterArtifact(ctx context.Context, input RegisterArtifactInput) (string, error)

	// RegisterRemoteUpload 登记一次远端上传，返回资产ID
	RegisterRemoteUpload(ctx context.Context, tenantID, uri, kind string) (string, error)
}
