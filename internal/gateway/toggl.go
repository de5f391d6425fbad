package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ayoisaiah/tally/internal/metrics"
)

const (
	defaultBaseURL = "https://api.track.toggl.com/api/v9"
	defaultTimeout = 15 * time.Second
	createdWith    = "tally"
	maxBodySize    = 1 << 20
)

var (
	errUnknownProject = errors.New("no project with that name")
	errNoID           = errors.New("response has no entry id")
)

// TogglOptions configures the Toggl client.
type TogglOptions struct {
	BaseURL     string
	Token       string
	WorkspaceID int64
	Timeout     time.Duration
	// RateLimit is the number of requests per second; Toggl allows one.
	RateLimit float64
}

// Toggl is a Gateway backed by the Toggl Track v9 API.
type Toggl struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	projects    []project
	baseURL     string
	token       string
	workspaceID int64
	mu          sync.Mutex
}

type timeEntry struct {
	ProjectID   *int64   `json:"project_id,omitempty"`
	Stop        string   `json:"stop,omitempty"`
	Start       string   `json:"start,omitempty"`
	Description string   `json:"description,omitempty"`
	CreatedWith string   `json:"created_with,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	WorkspaceID int64    `json:"workspace_id"`
	Duration    int64    `json:"duration"`
}

type project struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// NewToggl returns a Toggl client.
func NewToggl(opts TogglOptions) *Toggl {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = 1
	}

	return &Toggl{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		token:       opts.Token,
		workspaceID: opts.WorkspaceID,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(limit), 1),
	}
}

func (t *Toggl) Register(ctx context.Context, e Entry) (string, error) {
	m := metrics.Get()

	id, err := t.register(ctx, e)
	if err != nil {
		m.RegistrationsTotal.WithLabelValues(string(KindOf(err))).Inc()
		return "", err
	}

	m.RegistrationsTotal.WithLabelValues("created").Inc()

	return id, nil
}

func (t *Toggl) register(ctx context.Context, e Entry) (string, error) {
	entry := timeEntry{
		Description: e.Description,
		WorkspaceID: t.workspaceID,
		Start:       e.Start.UTC().Format(time.RFC3339),
		Stop:        e.End.UTC().Format(time.RFC3339),
		Duration:    int64(e.End.Sub(e.Start).Seconds()),
		CreatedWith: createdWith,
		Tags:        e.Tags,
	}

	if e.Project != "" {
		pid, err := t.ProjectID(ctx, e.Project)
		if err != nil {
			return "", err
		}

		entry.ProjectID = &pid
	}

	var resp struct {
		ID int64 `json:"id"`
	}

	path := fmt.Sprintf("/workspaces/%d/time_entries", t.workspaceID)

	if err := t.do(ctx, http.MethodPost, path, entry, &resp); err != nil {
		return "", err
	}

	if resp.ID == 0 {
		return "", newError(KindNetwork, 0, errNoID)
	}

	return strconv.FormatInt(resp.ID, 10), nil
}

func (t *Toggl) Extend(ctx context.Context, entryID string, e Entry) error {
	m := metrics.Get()

	entry := timeEntry{
		WorkspaceID: t.workspaceID,
		Stop:        e.End.UTC().Format(time.RFC3339),
		Duration:    int64(e.End.Sub(e.Start).Seconds()),
	}

	path := fmt.Sprintf("/workspaces/%d/time_entries/%s", t.workspaceID, entryID)

	if err := t.do(ctx, http.MethodPut, path, entry, nil); err != nil {
		m.RegistrationsTotal.WithLabelValues(string(KindOf(err))).Inc()
		return err
	}

	m.RegistrationsTotal.WithLabelValues("extended").Inc()

	return nil
}

// Projects returns the names of the workspace's active projects in the
// order Toggl lists them.
func (t *Toggl) Projects(ctx context.Context) ([]string, error) {
	list, err := t.cachedProjects(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(list))
	for _, p := range list {
		names = append(names, p.Name)
	}

	return names, nil
}

// ProjectID resolves a project name. An exact match wins over one that only
// differs in case. The project list is cached per client and fetched again
// once when name is not in it.
func (t *Toggl) ProjectID(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)

	list, err := t.cachedProjects(ctx)
	if err != nil {
		return 0, err
	}

	if id, ok := findProject(list, name); ok {
		return id, nil
	}

	list, err = t.loadProjects(ctx)
	if err != nil {
		return 0, err
	}

	if id, ok := findProject(list, name); ok {
		return id, nil
	}

	return 0, newError(KindInvalidProject, 0, fmt.Errorf("%w: %q", errUnknownProject, name))
}

func findProject(list []project, name string) (int64, bool) {
	for _, p := range list {
		if p.Name == name {
			return p.ID, true
		}
	}

	for _, p := range list {
		if strings.EqualFold(p.Name, name) {
			return p.ID, true
		}
	}

	return 0, false
}

func (t *Toggl) cachedProjects(ctx context.Context) ([]project, error) {
	t.mu.Lock()
	list := t.projects
	t.mu.Unlock()

	if list != nil {
		return list, nil
	}

	return t.loadProjects(ctx)
}

func (t *Toggl) loadProjects(ctx context.Context) ([]project, error) {
	var list []project

	path := fmt.Sprintf("/workspaces/%d/projects?active=true", t.workspaceID)

	if err := t.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	if list == nil {
		list = []project{}
	}

	t.mu.Lock()
	t.projects = list
	t.mu.Unlock()

	slog.DebugContext(ctx, "toggl projects loaded", slog.Int("count", len(list)))

	return list, nil
}

// do sends a request and maps every failure to a RegistrationError.
func (t *Toggl) do(ctx context.Context, method, path string, in, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return newError(KindNetwork, 0, err)
	}

	var body io.Reader

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return newError(KindNetwork, 0, err)
		}

		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return newError(KindNetwork, 0, err)
	}

	req.SetBasicAuth(t.token, "api_token")
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return newError(KindNetwork, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return newError(KindNetwork, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.WarnContext(
			ctx,
			"toggl request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(respBody)),
		)

		cause := fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(respBody)))

		return newError(statusKind(resp.StatusCode), resp.StatusCode, cause)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return newError(KindNetwork, resp.StatusCode, err)
	}

	return nil
}

func statusKind(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return KindInvalidProject
	default:
		return KindNetwork
	}
}
