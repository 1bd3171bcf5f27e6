package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultRateLimit   = 100
	defaultRateWindow  = 60 * time.Second
	defaultBackoffBase = 1 * time.Second
	userAgent          = "sprint-reports/1.0"
)

// Config holds the connection settings for a tracker instance.
type Config struct {
	BaseURL    string
	AuthMethod AuthMethod

	// AuthToken credentials. Email is required on Cloud.
	Email    string
	APIToken string

	// AuthBasic credentials.
	Username string
	Password string

	// AuthOAuth provider-parameterized config (access_token, token_type, ...).
	OAuth map[string]string

	// Rate limit: RateLimit calls per RateWindow (defaults 100 per 60s).
	RateLimit  int
	RateWindow time.Duration

	MaxRetries int
	Timeout    time.Duration

	// StoryPointsField is the custom field id carrying story points
	// (e.g. "customfield_10016").
	StoryPointsField string
}

// Client provides HTTP access to one tracker instance. The rate-limit
// bucket is owned by the client; one client per base URL.
type Client struct {
	baseURL          string
	instance         InstanceType
	authMethod       AuthMethod
	email            string
	apiToken         string
	username         string
	password         string
	oauth            map[string]string
	maxRetries       int
	storyPointsField string

	httpClient *http.Client
	limiter    *rate.Limiter
	apiCalls   atomic.Int64
}

// NewClient creates a tracker client, auto-detecting the instance type
// from the base URL.
func NewClient(cfg Config) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = defaultRateWindow
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	method := cfg.AuthMethod
	if method == "" {
		method = AuthToken
	}

	return &Client{
		baseURL:          base,
		instance:         DetectInstanceType(base),
		authMethod:       method,
		email:            cfg.Email,
		apiToken:         cfg.APIToken,
		username:         cfg.Username,
		password:         cfg.Password,
		oauth:            cfg.OAuth,
		maxRetries:       retries,
		storyPointsField: cfg.StoryPointsField,
		httpClient:       &http.Client{Timeout: timeout},
		// One token every window/limit keeps any rolling window at or
		// under the configured call count.
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), 1),
	}
}

// InstanceType returns the detected deployment type.
func (c *Client) InstanceType() InstanceType { return c.instance }

// APIVersion returns the REST API version in use ("3" cloud, "2" server).
func (c *Client) APIVersion() string { return c.instance.APIVersion() }

// APICalls returns the number of HTTP requests issued since creation or
// the last ResetAPICalls. Sync batches record this in their history rows.
func (c *Client) APICalls() int64 { return c.apiCalls.Load() }

// ResetAPICalls zeroes the request counter.
func (c *Client) ResetAPICalls() { c.apiCalls.Store(0) }

// apiPath builds a versioned core-API path.
func (c *Client) apiPath(suffix string) string {
	return "/rest/api/" + c.APIVersion() + suffix
}

// TestConnection pings /serverInfo and reports reachability.
func (c *Client) TestConnection(ctx context.Context) bool {
	var info serverInfoDTO
	body, err := c.doRequest(ctx, http.MethodGet, c.apiPath("/serverInfo"), nil, nil)
	if err != nil {
		return false
	}
	return json.Unmarshal(body, &info) == nil
}

// GetSprints returns sprints for a board. boardID 0 aggregates sprints
// across all visible boards.
func (c *Client) GetSprints(ctx context.Context, boardID int64) ([]SprintDTO, error) {
	if boardID == 0 {
		boards, err := c.GetBoards(ctx, "")
		if err != nil {
			return nil, err
		}
		var all []SprintDTO
		for _, b := range boards {
			sprints, err := c.GetSprints(ctx, b.ID)
			if err != nil {
				return nil, err
			}
			all = append(all, sprints...)
		}
		return all, nil
	}

	var sprints []SprintDTO
	path := fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID)
	err := c.paginateValues(ctx, path, url.Values{}, 0, func(raw json.RawMessage) error {
		var s SprintDTO
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		s.State = strings.ToLower(s.State)
		sprints = append(sprints, s)
		return nil
	})
	return sprints, err
}

// GetSprintIssues returns the issues of a sprint. excludeSubtasks filters
// subtasks server-side; jqlFilter is ANDed onto the sprint clause.
func (c *Client) GetSprintIssues(ctx context.Context, sprintID int64, excludeSubtasks bool, jqlFilter string) ([]IssueDTO, error) {
	jql := fmt.Sprintf("sprint = %d", sprintID)
	if excludeSubtasks {
		jql += " AND issuetype not in subtaskIssueTypes()"
	}
	if jqlFilter != "" {
		jql += " AND (" + jqlFilter + ")"
	}
	return c.SearchIssues(ctx, jql, nil, 0)
}

// GetBoards lists boards, optionally filtered by project key.
func (c *Client) GetBoards(ctx context.Context, projectKey string) ([]BoardDTO, error) {
	params := url.Values{}
	if projectKey != "" {
		params.Set("projectKeyOrId", projectKey)
	}
	var boards []BoardDTO
	err := c.paginateValues(ctx, "/rest/agile/1.0/board", params, 0, func(raw json.RawMessage) error {
		var b BoardDTO
		if err := json.Unmarshal(raw, &b); err != nil {
			return err
		}
		boards = append(boards, b)
		return nil
	})
	return boards, err
}

// GetBoardConfiguration fetches a board's configuration document.
func (c *Client) GetBoardConfiguration(ctx context.Context, boardID int64) (map[string]interface{}, error) {
	body, err := c.doRequest(ctx, http.MethodGet,
		fmt.Sprintf("/rest/agile/1.0/board/%d/configuration", boardID), nil, nil)
	if err != nil {
		return nil, err
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("parse board configuration: %w", err)
	}
	return cfg, nil
}

// GetProjects lists all visible projects.
func (c *Client) GetProjects(ctx context.Context) ([]ProjectDTO, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.apiPath("/project"), nil, nil)
	if err != nil {
		return nil, err
	}
	var projects []ProjectDTO
	if err := json.Unmarshal(body, &projects); err != nil {
		return nil, fmt.Errorf("parse projects: %w", err)
	}
	return projects, nil
}

// GetCustomFields lists custom fields only.
func (c *Client) GetCustomFields(ctx context.Context) ([]FieldDTO, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.apiPath("/field"), nil, nil)
	if err != nil {
		return nil, err
	}
	var fields []FieldDTO
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("parse fields: %w", err)
	}
	custom := fields[:0]
	for _, f := range fields {
		if f.Custom {
			custom = append(custom, f)
		}
	}
	return custom, nil
}

// defaultSearchFields is requested when the caller does not name fields.
var defaultSearchFields = []string{
	"summary", "status", "priority", "issuetype", "assignee", "labels",
	"created", "updated", "resolution", "parent", "components",
}

// SearchIssues runs a JQL query, following pagination until maxResults
// (0 = all) issues are collected.
func (c *Client) SearchIssues(ctx context.Context, jql string, fields []string, maxResults int) ([]IssueDTO, error) {
	if len(fields) == 0 {
		fields = defaultSearchFields
	}
	if c.storyPointsField != "" {
		fields = append(fields, c.storyPointsField)
	}

	var issues []IssueDTO
	startAt := 0
	pageSize := 100
	for {
		params := url.Values{
			"jql":        {jql},
			"fields":     {strings.Join(fields, ",")},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(pageSize)},
		}
		body, err := c.doRequest(ctx, http.MethodGet, c.apiPath("/search"), params, nil)
		if err != nil {
			return nil, err
		}

		var page struct {
			StartAt    int               `json:"startAt"`
			MaxResults int               `json:"maxResults"`
			Total      int               `json:"total"`
			Issues     []json.RawMessage `json:"issues"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parse search response: %w", err)
		}

		for _, raw := range page.Issues {
			issue, err := c.decodeIssue(raw)
			if err != nil {
				return nil, err
			}
			issues = append(issues, issue)
			if maxResults > 0 && len(issues) >= maxResults {
				return issues, nil
			}
		}

		if len(page.Issues) == 0 || startAt+len(page.Issues) >= page.Total {
			return issues, nil
		}
		startAt += len(page.Issues)
	}
}

// GetIssue fetches one issue by key.
func (c *Client) GetIssue(ctx context.Context, key string, fields []string) (*IssueDTO, error) {
	params := url.Values{}
	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ","))
	}
	body, err := c.doRequest(ctx, http.MethodGet,
		c.apiPath("/issue/"+url.PathEscape(key)), params, nil)
	if err != nil {
		return nil, err
	}
	issue, err := c.decodeIssue(body)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// decodeIssue unmarshals an issue, preserving the raw payload and lifting
// the configured story-points custom field into the typed DTO.
func (c *Client) decodeIssue(raw json.RawMessage) (IssueDTO, error) {
	var issue IssueDTO
	if err := json.Unmarshal(raw, &issue); err != nil {
		return issue, fmt.Errorf("parse issue: %w", err)
	}
	issue.Raw = append(json.RawMessage(nil), raw...)
	if c.storyPointsField != "" {
		fields := issue.RawFields()
		if v, ok := fields[c.storyPointsField]; ok {
			if f, ok := toFloat(v); ok {
				issue.Fields.StoryPoints = &f
			}
		}
	}
	return issue, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// paginateValues follows the agile API's values/isLast pagination, invoking
// fn for each element. maxResults 0 means all.
func (c *Client) paginateValues(ctx context.Context, path string, params url.Values, maxResults int, fn func(json.RawMessage) error) error {
	startAt := 0
	seen := 0
	for {
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", "50")
		body, err := c.doRequest(ctx, http.MethodGet, path, params, nil)
		if err != nil {
			return err
		}

		var page struct {
			IsLast bool              `json:"isLast"`
			Values []json.RawMessage `json:"values"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("parse paginated response: %w", err)
		}

		for _, raw := range page.Values {
			if err := fn(raw); err != nil {
				return err
			}
			seen++
			if maxResults > 0 && seen >= maxResults {
				return nil
			}
		}

		if page.IsLast || len(page.Values) == 0 {
			return nil
		}
		startAt += len(page.Values)
	}
}

// newRetryBackoff builds the delay source for 5xx/network retries:
// base x 2^attempt starting at one second.
func newRetryBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultBackoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// doRequest executes one authenticated request with rate limiting and
// retries. 401/403/4xx fail fast; 429 honors Retry-After without
// escalating the exponential backoff; 5xx and connection errors retry up
// to maxRetries with exponential backoff.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body []byte) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("tracker base URL not configured")
	}

	apiURL := c.baseURL + path
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	bo := newRetryBackoff()
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, method, apiURL, body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt >= c.maxRetries {
				return nil, &ServiceError{Cause: err}
			}
			if slept := sleepCtx(ctx, bo.NextBackOff()); slept != nil {
				return nil, slept
			}
		case resp.status >= 200 && resp.status < 300:
			return resp.body, nil
		case resp.status == http.StatusUnauthorized:
			return nil, &AuthError{Status: resp.status, Body: string(resp.body)}
		case resp.status == http.StatusForbidden:
			return nil, &ForbiddenError{Status: resp.status, Body: string(resp.body)}
		case resp.status == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.retryAfter)
			if attempt >= c.maxRetries {
				return nil, &RateLimitError{RetryAfter: retryAfter}
			}
			// Server hint overrides our own pacing; it does not feed the
			// exponential backoff.
			if slept := sleepCtx(ctx, retryAfter); slept != nil {
				return nil, slept
			}
		case resp.status >= 500:
			if attempt >= c.maxRetries {
				return nil, &ServiceError{Status: resp.status, Cause: fmt.Errorf("%s", resp.body)}
			}
			if slept := sleepCtx(ctx, bo.NextBackOff()); slept != nil {
				return nil, slept
			}
		default:
			return nil, &APIError{Status: resp.status, Body: string(resp.body)}
		}
	}
}

// apiResponse is the outcome of a single HTTP exchange.
type apiResponse struct {
	body       []byte
	status     int
	retryAfter string // Retry-After header, verbatim
}

// send issues a single HTTP request and drains the response.
func (c *Client) send(ctx context.Context, method, apiURL string, body []byte) (*apiResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.apiCalls.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &apiResponse{
		body:       respBody,
		status:     resp.StatusCode,
		retryAfter: resp.Header.Get("Retry-After"),
	}, nil
}

// parseRetryAfter interprets a Retry-After header as delay seconds,
// defaulting to the backoff base when absent or malformed.
func parseRetryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultBackoffBase
}

// setAuth applies the configured authentication scheme.
func (c *Client) setAuth(req *http.Request) {
	switch c.authMethod {
	case AuthBasic:
		basicAuth(req, c.username, c.password)
	case AuthOAuth:
		tokenType := c.oauth["token_type"]
		if tokenType == "" {
			tokenType = "Bearer"
		}
		req.Header.Set("Authorization", tokenType+" "+c.oauth["access_token"])
	default: // AuthToken
		if c.instance == InstanceCloud {
			basicAuth(req, c.email, c.apiToken)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.apiToken)
		}
	}
}

func basicAuth(req *http.Request, user, secret string) {
	auth := base64.StdEncoding.EncodeToString([]byte(user + ":" + secret))
	req.Header.Set("Authorization", "Basic "+auth)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
