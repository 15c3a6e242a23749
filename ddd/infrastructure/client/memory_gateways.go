package client

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"render-engine/ddd/domain/gateway"
)

// MemoryTimelineGateway 进程内时间线网关，单机部署和测试用。
// 数据通过Seed*方法灌入。
type MemoryTimelineGateway struct {
	mu          sync.RWMutex
	projects    map[string]gateway.Project
	sequences   map[string][]gateway.Sequence
	tracks      map[string][]gateway.Track
	clips       map[string][]gateway.Clip
	transitions map[string][]gateway.Transition
	filters     map[string][]gateway.FilterSpec
	automation  map[string][]gateway.AutomationKeyframe
}

// NewMemoryTimelineGateway 创建进程内时间线网关
func NewMemoryTimelineGateway() *MemoryTimelineGateway {
	return &MemoryTimelineGateway{
		projects:    make(map[string]gateway.Project),
		sequences:   make(map[string][]gateway.Sequence),
		tracks:      make(map[string][]gateway.Track),
		clips:       make(map[string][]gateway.Clip),
		transitions: make(map[string][]gateway.Transition),
		filters:     make(map[string][]gateway.FilterSpec),
		automation:  make(map[string][]gateway.AutomationKeyframe),
	}
}

// SeedProject 灌入项目
func (g *MemoryTimelineGateway) SeedProject(p gateway.Project) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.projects[p.ID] = p
}

// SeedSequence 灌入序列
func (g *MemoryTimelineGateway) SeedSequence(s gateway.Sequence) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sequences[s.ProjectID] = append(g.sequences[s.ProjectID], s)
}

// SeedTrack 灌入轨道
func (g *MemoryTimelineGateway) SeedTrack(t gateway.Track) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracks[t.SequenceID] = append(g.tracks[t.SequenceID], t)
}

// SeedClip 灌入剪辑
func (g *MemoryTimelineGateway) SeedClip(c gateway.Clip) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clips[c.TrackID] = append(g.clips[c.TrackID], c)
}

// SeedTransition 灌入转场
func (g *MemoryTimelineGateway) SeedTransition(t gateway.Transition) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transitions[t.SequenceID] = append(g.transitions[t.SequenceID], t)
}

// SeedFilterStack 灌入滤镜栈
func (g *MemoryTimelineGateway) SeedFilterStack(target gateway.FilterTarget, targetID string, specs []gateway.FilterSpec) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filters[string(target)+"/"+targetID] = specs
}

// SeedAutomation 灌入自动化关键帧
func (g *MemoryTimelineGateway) SeedAutomation(targetID, param string, keyframes []gateway.AutomationKeyframe) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.automation[targetID+"/"+param] = keyframes
}

func (g *MemoryTimelineGateway) GetProject(ctx context.Context, projectID string) (*gateway.Project, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if p, ok := g.projects[projectID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (g *MemoryTimelineGateway) ListSequencesForProject(ctx context.Context, projectID string) ([]gateway.Sequence, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]gateway.Sequence(nil), g.sequences[projectID]...), nil
}

func (g *MemoryTimelineGateway) ListTracksForSequence(ctx context.Context, sequenceID string) ([]gateway.Track, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]gateway.Track(nil), g.tracks[sequenceID]...), nil
}

func (g *MemoryTimelineGateway) ListClipsForTrack(ctx context.Context, trackID string) ([]gateway.Clip, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]gateway.Clip(nil), g.clips[trackID]...), nil
}

func (g *MemoryTimelineGateway) ListTransitionsForSequence(ctx context.Context, sequenceID string) ([]gateway.Transition, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]gateway.Transition(nil), g.transitions[sequenceID]...), nil
}

func (g *MemoryTimelineGateway) GetFilterStackForTarget(ctx context.Context, target gateway.FilterTarget, targetID string) ([]gateway.FilterSpec, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]gateway.FilterSpec(nil), g.filters[string(target)+"/"+targetID]...), nil
}

func (g *MemoryTimelineGateway) ListAutomation(ctx context.Context, targetID, param string) ([]gateway.AutomationKeyframe, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]gateway.AutomationKeyframe(nil), g.automation[targetID+"/"+param]...), nil
}

// MemoryMediaGateway 进程内媒体网关
type MemoryMediaGateway struct {
	mu        sync.RWMutex
	assets    map[string]gateway.Asset
	artifacts map[string][]gateway.Artifact
	byID      map[string]gateway.Artifact
}

// NewMemoryMediaGateway 创建进程内媒体网关
func NewMemoryMediaGateway() *MemoryMediaGateway {
	return &MemoryMediaGateway{
		assets:    make(map[string]gateway.Asset),
		artifacts: make(map[string][]gateway.Artifact),
		byID:      make(map[string]gateway.Artifact),
	}
}

// SeedAsset 灌入资产
func (g *MemoryMediaGateway) SeedAsset(a gateway.Asset) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.assets[a.ID] = a
}

// SeedArtifact 灌入产物
func (g *MemoryMediaGateway) SeedArtifact(a gateway.Artifact) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.artifacts[a.AssetID] = append(g.artifacts[a.AssetID], a)
	g.byID[a.ID] = a
}

func (g *MemoryMediaGateway) GetAsset(ctx context.Context, assetID string) (*gateway.Asset, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if a, ok := g.assets[assetID]; ok {
		return &a, nil
	}
	return nil, nil
}

func (g *MemoryMediaGateway) GetArtifact(ctx context.Context, artifactID string) (*gateway.Artifact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if a, ok := g.byID[artifactID]; ok {
		return &a, nil
	}
	return nil, nil
}

func (g *MemoryMediaGateway) ListArtifactsForAsset(ctx context.Context, assetID string) ([]gateway.Artifact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]gateway.Artifact(nil), g.artifacts[assetID]...), nil
}

func (g *MemoryMediaGateway) RegisterArtifact(ctx context.Context, input gateway.RegisterArtifactInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	artifact := gateway.Artifact{
		ID:       uuid.NewString(),
		AssetID:  input.AssetID,
		Kind:     input.Kind,
		URI:      input.URI,
		Metadata: input.Metadata,
	}
	g.artifacts[artifact.AssetID] = append(g.artifacts[artifact.AssetID], artifact)
	g.byID[artifact.ID] = artifact
	return artifact.ID, nil
}

func (g *MemoryMediaGateway) RegisterRemoteUpload(ctx context.Context, tenantID, uri, kind string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	asset := gateway.Asset{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Kind:     kind,
		URI:      uri,
	}
	g.assets[asset.ID] = asset
	return asset.ID, nil
}
