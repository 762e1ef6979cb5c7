package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/adapt-engine/internal/logger"
)

// ErrNotFound is the normal miss: the catalog has no concrete activity for
// this (action, module) pair. Callers keep the action in the ranking with
// a nil activity rather than dropping it.
var ErrNotFound = errors.New("activity not found")

// Activity is a concrete learning activity resolved from an abstract
// action index.
type Activity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Difficulty string `json:"difficulty"`
}

type Client interface {
	Resolve(ctx context.Context, actionIndex int, moduleID string) (*Activity, error)
}

type httpClient struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
}

// NewHTTPClient returns nil when no base URL is configured.
func NewHTTPClient(baseURL string, baseLog *logger.Logger) Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &httpClient{
		log:     baseLog.With("client", "CatalogClient"),
		http:    &http.Client{Timeout: 3 * time.Second},
		baseURL: baseURL,
	}
}

func (c *httpClient) Resolve(ctx context.Context, actionIndex int, moduleID string) (*Activity, error) {
	endpoint := fmt.Sprintf("%s/activities?action=%d&module=%s", c.baseURL, actionIndex, url.QueryEscape(moduleID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var a Activity
		if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
			return nil, fmt.Errorf("decode catalog response: %w", err)
		}
		return &a, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("catalog lookup status %d", resp.StatusCode)
	}
}
