package client

import (
	"context"
	"fmt"
	"net/url"

	"render-engine/ddd/domain/gateway"
	"render-engine/pkg/config"
	"render-engine/pkg/registry"
)

// TimelineClient 时间线服务的HTTP实现
type TimelineClient struct {
	rest *restClient
}

// NewTimelineClient 创建时间线服务客户端
func NewTimelineClient(cfg config.CollaboratorConfig, discovery *registry.ServiceDiscovery) gateway.TimelineGateway {
	return &TimelineClient{rest: newRESTClient(cfg, discovery)}
}

func (c *TimelineClient) GetProject(ctx context.Context, projectID string) (*gateway.Project, error) {
	var project gateway.Project
	found, err := c.rest.getJSON(ctx, "/api/v1/projects/"+url.PathEscape(projectID), &project)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &project, nil
}

func (c *TimelineClient) ListSequencesForProject(ctx context.Context, projectID string) ([]gateway.Sequence, error) {
	var sequences []gateway.Sequence
	_, err := c.rest.getJSON(ctx, fmt.Sprintf("/api/v1/projects/%s/sequences", url.PathEscape(projectID)), &sequences)
	return sequences, err
}

func (c *TimelineClient) ListTracksForSequence(ctx context.Context, sequenceID string) ([]gateway.Track, error) {
	var tracks []gateway.Track
	_, err := c.rest.getJSON(ctx, fmt.Sprintf("/api/v1/sequences/%s/tracks", url.PathEscape(sequenceID)), &tracks)
	return tracks, err
}

func (c *TimelineClient) ListClipsForTrack(ctx context.Context, trackID string) ([]gateway.Clip, error) {
	var clips []gateway.Clip
	_, err := c.rest.getJSON(ctx, fmt.Sprintf("/api/v1/tracks/%s/clips", url.PathEscape(trackID)), &clips)
	return clips, err
}

func (c *TimelineClient) ListTransitionsForSequence(ctx context.Context, sequenceID string) ([]gateway.Transition, error) {
	var transitions []gateway.Transition
	_, err := c.rest.getJSON(ctx, fmt.Sprintf("/api/v1/sequences/%s/transitions", url.PathEscape(sequenceID)), &transitions)
	return transitions, err
}

func (c *TimelineClient) GetFilterStackForTarget(ctx context.Context, target gateway.FilterTarget, targetID string) ([]gateway.FilterSpec, error) {
	var specs []gateway.FilterSpec
	_, err := c.rest.getJSON(ctx,
		fmt.Sprintf("/api/v1/filter-stacks?target=%s&target_id=%s", url.QueryEscape(string(target)), url.QueryEscape(targetID)),
		&specs)
	return specs, err
}

func (c *TimelineClient) ListAutomation(ctx context.Context, targetID, param string) ([]gateway.AutomationKeyframe, error) {
	var keyframes []gateway.AutomationKeyframe
	_, err := c.rest.getJSON(ctx,
		fmt.Sprintf("/api/v1/automation?target_id=%s&param=%s", url.QueryEscape(targetID), url.QueryEscape(param)),
		&keyframes)
	return keyframes, err
}
