package client

import (
	"context"
	"fmt"
	"net/url"

	"render-engine/ddd/domain/gateway"
	"render-engine/pkg/config"
	"render-engine/pkg/registry"
)

// MediaClient 媒体注册表服务的HTTP实现
type MediaClient struct {
	rest *restClient
}

// NewMediaClient 创建媒体服务客户端
func NewMediaClient(cfg config.CollaboratorConfig, discovery *registry.ServiceDiscovery) gateway.MediaGateway {
	return &MediaClient{rest: newRESTClient(cfg, discovery)}
}

func (c *MediaClient) GetAsset(ctx context.Context, assetID string) (*gateway.Asset, error) {
	var asset gateway.Asset
	found, err := c.rest.getJSON(ctx, "/api/v1/assets/"+url.PathEscape(assetID), &asset)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &asset, nil
}

func (c *MediaClient) GetArtifact(ctx context.Context, artifactID string) (*gateway.Artifact, error) {
	var artifact gateway.Artifact
	found, err := c.rest.getJSON(ctx, "/api/v1/artifacts/"+url.PathEscape(artifactID), &artifact)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &artifact, nil
}

func (c *MediaClient) ListArtifactsForAsset(ctx context.Context, assetID string) ([]gateway.Artifact, error) {
	var artifacts []gateway.Artifact
	_, err := c.rest.getJSON(ctx, fmt.Sprintf("/api/v1/assets/%s/artifacts", url.PathEscape(assetID)), &artifacts)
	return artifacts, err
}

func (c *MediaClient) RegisterArtifact(ctx context.Context, input gateway.RegisterArtifactInput) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.rest.postJSON(ctx, "/api/v1/artifacts", input, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *MediaClient) RegisterRemoteUpload(ctx context.Context, tenantID, uri, kind string) (string, error) {
	req := struct {
		TenantID string `json:"tenant_id"`
		URI      string `json:"uri"`
		Kind     string `json:"kind"`
	}{TenantID: tenantID, URI: uri, Kind: kind}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.rest.postJSON(ctx, "/api/v1/assets/remote-upload", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
