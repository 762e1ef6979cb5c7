package cohort

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/adapt-engine/internal/engine"
	"github.com/yungbote/adapt-engine/internal/logger"
)

// Assignment is what the external clustering pipeline knows about a
// learner: their current cohort and the mastery-improvement signal since
// the last refresh.
type Assignment struct {
	CohortID     int     `json:"cohort_id"`
	MasteryDelta float64 `json:"mastery_delta"`
}

// Client reads cohort assignments. The signal is eventually consistent and
// optional: any failure degrades to the default cohort rather than
// surfacing an error to the pipeline.
type Client interface {
	Lookup(ctx context.Context, userID uuid.UUID) engine.CohortInfo
}

type httpClient struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	cfg     engine.Config
}

// NewHTTPClient returns nil when no base URL is configured; callers treat
// a nil client as "collaborator absent" and fall back to defaults.
func NewHTTPClient(baseURL string, cfg engine.Config, baseLog *logger.Logger) Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &httpClient{
		log:     baseLog.With("client", "CohortClient"),
		http:    &http.Client{Timeout: 3 * time.Second},
		baseURL: baseURL,
		cfg:     cfg,
	}
}

func (c *httpClient) Lookup(ctx context.Context, userID uuid.UUID) engine.CohortInfo {
	fallback := engine.CohortInfo{CohortID: c.cfg.DefaultCohort()}

	endpoint := fmt.Sprintf("%s/cohorts/%s", c.baseURL, url.PathEscape(userID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.log.Warn("cohort request build failed, using default cohort", "user_id", userID, "error", err)
		return fallback
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("cohort lookup failed, using default cohort", "user_id", userID, "error", err)
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("cohort lookup non-200, using default cohort", "user_id", userID, "status", resp.StatusCode)
		return fallback
	}
	var a Assignment
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		c.log.Warn("cohort response decode failed, using default cohort", "user_id", userID, "error", err)
		return fallback
	}
	if a.CohortID < 0 || a.CohortID >= c.cfg.NumCohorts {
		c.log.Warn("cohort id out of range, using default cohort", "user_id", userID, "cohort_id", a.CohortID)
		return fallback
	}
	return engine.CohortInfo{CohortID: a.CohortID, MasteryDelta: a.MasteryDelta}
}

// Resolve wraps a possibly-nil client with the default-cohort fallback so
// call sites stay flat.
func Resolve(ctx context.Context, c Client, cfg engine.Config, userID uuid.UUID) engine.CohortInfo {
	if c == nil {
		return engine.CohortInfo{CohortID: cfg.DefaultCohort()}
	}
	return c.Lookup(ctx, userID)
}
