package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bosun/pkg/clients"
	"bosun/pkg/logging"
)

type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  logging.Logger
	// Executor overrides the default retrying, breaker-guarded executor.
	Executor *clients.HTTPExecutor
}

// HTTPMessenger posts messages to the platform gateway's REST API.
type HTTPMessenger struct {
	baseURL  string
	token    string
	executor *clients.HTTPExecutor
	logger   logging.Logger
}

func NewHTTPMessenger(cfg HTTPConfig) *HTTPMessenger {
	logger := logging.OrDiscard(cfg.Logger)
	executor := cfg.Executor
	if executor == nil {
		httpCfg := clients.DefaultHTTPConfig()
		if cfg.Timeout > 0 {
			httpCfg.Client = clients.NewHTTPClient(cfg.Timeout)
		}
		httpCfg.Breaker = &clients.BreakerConfig{Name: "platform", Logger: logger}
		executor = clients.NewHTTPExecutor(httpCfg)
	}
	return &HTTPMessenger{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		executor: executor,
		logger:   logger,
	}
}

func (m *HTTPMessenger) Send(ctx context.Context, msg OutboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if m.token != "" {
		header.Set("Authorization", "Bearer "+m.token)
	}
	resp, err := m.executor.Do(ctx, http.MethodPost, m.baseURL+"/v1/messages", payload, header)
	if err != nil {
		return fmt.Errorf("send message to %s: %w", msg.To, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Post is a recent platform post as returned by the posts endpoint.
type Post struct {
	ID      string `json:"id"`
	Caption string `json:"caption"`
	Content string `json:"content"`
}

// RecentPosts lists the workspace's latest posts, newest first.
func (m *HTTPMessenger) RecentPosts(ctx context.Context, workspaceID string, limit int) ([]Post, error) {
	header := http.Header{}
	if m.token != "" {
		header.Set("Authorization", "Bearer "+m.token)
	}
	url := fmt.Sprintf("%s/v1/workspaces/%s/posts?limit=%d", m.baseURL, workspaceID, limit)
	resp, err := m.executor.Do(ctx, http.MethodGet, url, nil, header)
	if err != nil {
		return nil, fmt.Errorf("fetch recent posts: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		Posts []Post `json:"posts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return out.Posts, nil
}

// LogMessenger records messages in the log instead of sending them. It is
// used when no platform API is configured.
type LogMessenger struct {
	Logger logging.Logger
}

func (l LogMessenger) Send(_ context.Context, msg OutboundMessage) error {
	logging.OrDiscard(l.Logger).WithFields(logging.Fields{
		"workspace_id": msg.WorkspaceID,
		"to":           msg.To,
		"reply_to":     msg.ReplyToMessageID,
		"chars":        len(msg.Text),
	}).Info("Platform API not configured, message logged only")
	return nil
}
