package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"render-engine/pkg/config"
	"render-engine/pkg/logger"
	"render-engine/pkg/registry"
)

// restClient 协作方HTTP调用的公共载体。地址解析优先静态base_url，
// 其次走etcd服务发现。
type restClient struct {
	cfg       config.CollaboratorConfig
	discovery *registry.ServiceDiscovery
	http      *http.Client
}

func newRESTClient(cfg config.CollaboratorConfig, discovery *registry.ServiceDiscovery) *restClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &restClient{
		cfg:       cfg,
		discovery: discovery,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *restClient) baseURL() (string, error) {
	if c.cfg.BaseURL != "" {
		return strings.TrimRight(c.cfg.BaseURL, "/"), nil
	}
	if c.discovery != nil && c.cfg.ServiceName != "" {
		addr, err := c.discovery.GetServiceAddress(c.cfg.ServiceName)
		if err != nil {
			return "", fmt.Errorf("discover %s: %w", c.cfg.ServiceName, err)
		}
		if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
			addr = "http://" + addr
		}
		return strings.TrimRight(addr, "/"), nil
	}
	return "", fmt.Errorf("no endpoint configured for service %q", c.cfg.ServiceName)
}

// getJSON 发起GET并解码响应；404返回(false, nil)区分于传输错误
func (c *restClient) getJSON(ctx context.Context, path string, out interface{}) (bool, error) {
	base, err := c.baseURL()
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		logger.Warnf("collaborator GET %s failed status=%d body=%s", path, resp.StatusCode, string(body))
		return false, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return true, nil
}

// postJSON 发起POST并解码响应
func (c *restClient) postJSON(ctx context.Context, path string, in, out interface{}) error {
	base, err := c.baseURL()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		logger.Warnf("collaborator POST %s failed status=%d body=%s", path, resp.StatusCode, string(body))
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}
