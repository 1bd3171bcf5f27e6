package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fastConfig keeps the rate limiter out of the way for unit tests.
func fastConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		AuthMethod: AuthToken,
		APIToken:   "secret",
		RateLimit:  100000,
		RateWindow: time.Second,
		MaxRetries: 2,
		Timeout:    5 * time.Second,
	}
}

func TestGetSprintsPaginated(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/rest/agile/1.0/board/7/sprint" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.URL.Query().Get("startAt") {
		case "0":
			fmt.Fprint(w, `{"isLast":false,"values":[{"id":1,"name":"S1","state":"ACTIVE"},{"id":2,"name":"S2","state":"closed"}]}`)
		default:
			fmt.Fprint(w, `{"isLast":true,"values":[{"id":3,"name":"S3","state":"future"}]}`)
		}
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL))
	sprints, err := client.GetSprints(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetSprints failed: %v", err)
	}
	if len(sprints) != 3 {
		t.Fatalf("expected 3 sprints, got %d", len(sprints))
	}
	// State is normalized to lowercase.
	if sprints[0].State != "active" {
		t.Errorf("expected state active, got %s", sprints[0].State)
	}
	if got := client.APICalls(); got != int64(requests.Load()) {
		t.Errorf("APICalls = %d, want %d", got, requests.Load())
	}
}

func TestDoRequestRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"id":"1","key":"P","name":"Project"}]`)
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL))
	projects, err := client.GetProjects(context.Background())
	if err != nil {
		t.Fatalf("GetProjects failed after retry: %v", err)
	}
	if len(projects) != 1 || projects[0].Key != "P" {
		t.Fatalf("unexpected projects %+v", projects)
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", requests.Load())
	}
}

func TestDoRequestAuthFailureIsNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL))
	_, err := client.GetProjects(context.Background())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if requests.Load() != 1 {
		t.Errorf("401 must not be retried; saw %d requests", requests.Load())
	}
}

func TestDoRequestForbiddenAndClientErrors(t *testing.T) {
	for _, tt := range []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusForbidden, func(err error) bool {
			var e *ForbiddenError
			return errors.As(err, &e)
		}},
		{http.StatusNotFound, func(err error) bool {
			var e *APIError
			return errors.As(err, &e)
		}},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		client := NewClient(fastConfig(srv.URL))
		_, err := client.GetProjects(context.Background())
		if !tt.check(err) {
			t.Errorf("status %d: unexpected error %v", tt.status, err)
		}
		srv.Close()
	}
}

func TestDoRequestHonorsRetryAfter(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL))
	start := time.Now()
	if _, err := client.GetProjects(context.Background()); err != nil {
		t.Fatalf("GetProjects failed: %v", err)
	}
	// Retry-After: 0 means immediate retry, not the 1s backoff base.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("retry took %s; Retry-After hint was ignored", elapsed)
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", requests.Load())
	}
}

func TestDoRequestRateLimitExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.MaxRetries = 1
	client := NewClient(cfg)
	_, err := client.GetProjects(context.Background())

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	// The hint comes from the Retry-After header, not the backoff base.
	if rlErr.RetryAfter != 0 {
		t.Errorf("RetryAfter = %s, want 0s from the header", rlErr.RetryAfter)
	}
}

func TestSearchIssuesLiftsStoryPoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"startAt":0,"maxResults":100,"total":1,"issues":[
			{"id":"1","key":"P-1","fields":{"summary":"a","customfield_10016":8}}]}`)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.StoryPointsField = "customfield_10016"
	client := NewClient(cfg)

	issues, err := client.SearchIssues(context.Background(), "project = P", nil, 0)
	if err != nil {
		t.Fatalf("SearchIssues failed: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].Fields.StoryPoints == nil || *issues[0].Fields.StoryPoints != 8 {
		t.Errorf("story points not lifted: %+v", issues[0].Fields.StoryPoints)
	}
	if len(issues[0].Raw) == 0 {
		t.Error("raw payload not preserved")
	}
}

func TestCloudAuthUsesBasic(t *testing.T) {
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.Email = "dev@example.com"
	client := NewClient(cfg)
	// Server-type instance (httptest URL) uses Bearer for token auth.
	if _, err := client.GetProjects(context.Background()); err != nil {
		t.Fatalf("GetProjects failed: %v", err)
	}
	if header != "Bearer secret" {
		t.Errorf("server instance auth = %q, want Bearer", header)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://acme.atlassian.net/x", nil)
	cloud := NewClient(Config{BaseURL: "https://acme.atlassian.net", Email: "dev@example.com", APIToken: "secret"})
	cloud.setAuth(req)
	if got := req.Header.Get("Authorization"); len(got) < 6 || got[:6] != "Basic " {
		t.Errorf("cloud instance auth = %q, want Basic", got)
	}
}

func TestResetAPICalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]ProjectDTO{})
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL))
	if _, err := client.GetProjects(context.Background()); err != nil {
		t.Fatalf("GetProjects failed: %v", err)
	}
	if client.APICalls() == 0 {
		t.Fatal("expected counted API calls")
	}
	client.ResetAPICalls()
	if client.APICalls() != 0 {
		t.Error("counter not reset")
	}
}
