package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayoisaiah/tally/internal/apperr"
)

const testWorkspace = 42

type fakeToggl struct {
	lastEntry timeEntry
	projects  []project
	created   atomic.Int32
	updated   atomic.Int32
	listed    atomic.Int32
	status    int
	mu        sync.Mutex
}

func (f *fakeToggl) setProjects(list []project) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.projects = list
}

func (f *fakeToggl) decode(t *testing.T, r *http.Request) bool {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	return assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastEntry))
}

func (f *fakeToggl) last() timeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lastEntry
}

func (f *fakeToggl) handler(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /workspaces/42/projects", func(w http.ResponseWriter, r *http.Request) {
		f.listed.Add(1)

		f.mu.Lock()
		list := f.projects
		f.mu.Unlock()

		if list == nil {
			list = []project{
				{ID: 7, Name: "Admin"},
				{ID: 9, Name: "Client Work"},
			}
		}

		_ = json.NewEncoder(w).Encode(list)
	})

	mux.HandleFunc("POST /workspaces/42/time_entries", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "secret" || pass != "api_token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`"boom"`))

			return
		}

		if !f.decode(t, r) {
			return
		}

		f.created.Add(1)

		_, _ = w.Write([]byte(`{"id": 1001}`))
	})

	mux.HandleFunc("PUT /workspaces/42/time_entries/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1001" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if !f.decode(t, r) {
			return
		}

		f.updated.Add(1)

		_, _ = w.Write([]byte(`{"id": 1001}`))
	})

	return mux
}

func newTestToggl(t *testing.T, f *fakeToggl, token string) *Toggl {
	t.Helper()

	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	return NewToggl(TogglOptions{
		BaseURL:     srv.URL,
		Token:       token,
		WorkspaceID: testWorkspace,
		Timeout:     time.Second,
		RateLimit:   100,
	})
}

var (
	entryStart = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	entryEnd   = entryStart.Add(15 * time.Minute)
)

func TestRegister(t *testing.T) {
	f := &fakeToggl{}
	c := newTestToggl(t, f, "secret")

	id, err := c.Register(context.Background(), Entry{
		Description: "Email",
		Project:     "admin",
		Start:       entryStart,
		End:         entryEnd,
		Tags:        []string{"tally"},
	})
	require.NoError(t, err)

	assert.Equal(t, "1001", id)
	assert.EqualValues(t, 1, f.created.Load())

	got := f.last()

	require.NotNil(t, got.ProjectID)
	assert.EqualValues(t, 7, *got.ProjectID)
	assert.EqualValues(t, 900, got.Duration)
	assert.Equal(t, "2024-03-04T09:00:00Z", got.Start)
	assert.Equal(t, "2024-03-04T09:15:00Z", got.Stop)
	assert.Equal(t, "tally", got.CreatedWith)
	assert.EqualValues(t, testWorkspace, got.WorkspaceID)
}

func TestRegisterWithoutProject(t *testing.T) {
	f := &fakeToggl{}
	c := newTestToggl(t, f, "secret")

	_, err := c.Register(context.Background(), Entry{
		Description: "Reading",
		Start:       entryStart,
		End:         entryEnd,
	})
	require.NoError(t, err)

	assert.Nil(t, f.last().ProjectID)
}

func TestRegisterErrors(t *testing.T) {
	testCases := []struct {
		name    string
		token   string
		project string
		status  int
		kind    ErrorKind
	}{
		{
			name:  "bad token",
			token: "wrong",
			kind:  KindAuth,
		},
		{
			name:    "unknown project",
			token:   "secret",
			project: "Gardening",
			kind:    KindInvalidProject,
		},
		{
			name:   "rejected entry",
			token:  "secret",
			status: http.StatusBadRequest,
			kind:   KindInvalidProject,
		},
		{
			name:   "server error",
			token:  "secret",
			status: http.StatusBadGateway,
			kind:   KindNetwork,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeToggl{status: tc.status}
			c := newTestToggl(t, f, tc.token)

			_, err := c.Register(context.Background(), Entry{
				Description: "Email",
				Project:     tc.project,
				Start:       entryStart,
				End:         entryEnd,
			})
			require.Error(t, err)

			assert.Equal(t, tc.kind, KindOf(err))
			assert.Equal(t, apperr.KindRegistration, apperr.KindOf(err))
			assert.True(t, errors.Is(err, errRegistration))
			assert.Zero(t, f.created.Load())
		})
	}
}

func TestRegisterTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := NewToggl(TogglOptions{
		BaseURL:     srv.URL,
		Token:       "secret",
		WorkspaceID: testWorkspace,
		Timeout:     50 * time.Millisecond,
	})

	_, err := c.Register(context.Background(), Entry{
		Description: "Email",
		Start:       entryStart,
		End:         entryEnd,
	})
	require.Error(t, err)

	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestExtend(t *testing.T) {
	f := &fakeToggl{}
	c := newTestToggl(t, f, "secret")

	err := c.Extend(context.Background(), "1001", Entry{
		Start: entryStart,
		End:   entryEnd.Add(15 * time.Minute),
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.updated.Load())
	assert.EqualValues(t, 1800, f.last().Duration)
	assert.Equal(t, "2024-03-04T09:30:00Z", f.last().Stop)

	err = c.Extend(context.Background(), "55", Entry{
		Start: entryStart,
		End:   entryEnd,
	})
	assert.Equal(t, KindInvalidProject, KindOf(err))
}

func TestProjects(t *testing.T) {
	f := &fakeToggl{}
	c := newTestToggl(t, f, "secret")

	names, err := c.Projects(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Admin", "Client Work"}, names)

	id, err := c.ProjectID(context.Background(), " client work ")
	require.NoError(t, err)
	assert.EqualValues(t, 9, id)
	assert.EqualValues(t, 1, f.listed.Load())
}

func TestProjectIDPrefersExactCase(t *testing.T) {
	f := &fakeToggl{}
	f.setProjects([]project{
		{ID: 1, Name: "admin"},
		{ID: 2, Name: "Admin"},
		{ID: 3, Name: "ADMIN"},
	})

	c := newTestToggl(t, f, "secret")

	for range 20 {
		id, err := c.ProjectID(context.Background(), "Admin")
		require.NoError(t, err)
		assert.EqualValues(t, 2, id)

		id, err = c.ProjectID(context.Background(), "aDmIn")
		require.NoError(t, err)
		assert.EqualValues(t, 1, id)
	}

	assert.EqualValues(t, 1, f.listed.Load())
}

func TestProjectCreatedLaterIsFound(t *testing.T) {
	f := &fakeToggl{}
	c := newTestToggl(t, f, "secret")

	_, err := c.ProjectID(context.Background(), "Admin")
	require.NoError(t, err)

	f.setProjects([]project{
		{ID: 7, Name: "Admin"},
		{ID: 9, Name: "Client Work"},
		{ID: 11, Name: "Gardening"},
	})

	id, err := c.Register(context.Background(), Entry{
		Description: "Weeding",
		Project:     "Gardening",
		Start:       entryStart,
		End:         entryEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, "1001", id)

	got := f.last()
	require.NotNil(t, got.ProjectID)
	assert.EqualValues(t, 11, *got.ProjectID)
	assert.EqualValues(t, 2, f.listed.Load())

	_, err = c.ProjectID(context.Background(), "Gardening")
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.listed.Load())

	_, err = c.ProjectID(context.Background(), "Knitting")
	assert.Equal(t, KindInvalidProject, KindOf(err))
	assert.EqualValues(t, 3, f.listed.Load())
}
