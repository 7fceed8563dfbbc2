package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliolabs/portfolio-assistant/chat"
	"github.com/foliolabs/portfolio-assistant/content"
	"github.com/foliolabs/portfolio-assistant/docstore"
	"github.com/foliolabs/portfolio-assistant/embeddings"
	"github.com/foliolabs/portfolio-assistant/llm"
	"github.com/foliolabs/portfolio-assistant/rag"
	"github.com/foliolabs/portfolio-assistant/settings"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		// crude but deterministic: co-locate texts sharing a first word
		vectors[i] = []float32{float32(len(strings.Fields(text))), float32(len(text) % 7), 1}
	}
	return vectors, nil
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

type stubProjects struct {
	projects []content.Project
	err      error
}

func (s *stubProjects) List(_ context.Context) ([]content.Project, error) {
	return s.projects, s.err
}

func (s *stubProjects) Get(_ context.Context, id string) (content.Project, error) {
	for _, project := range s.projects {
		if project.ID == id {
			return project, nil
		}
	}
	return content.Project{}, content.ErrNotFound
}

func (s *stubProjects) Upsert(_ context.Context, project content.Project) error {
	for i, existing := range s.projects {
		if existing.ID == project.ID {
			s.projects[i] = project
			return nil
		}
	}
	s.projects = append(s.projects, project)
	return nil
}

func (s *stubProjects) Delete(_ context.Context, id string) error {
	for i, project := range s.projects {
		if project.ID == id {
			s.projects = append(s.projects[:i], s.projects[i+1:]...)
			return nil
		}
	}
	return content.ErrNotFound
}

var _ content.Repository = (*stubProjects)(nil)

type serverOptions struct {
	embedErr error
	apiKey   string
	projects content.Repository
}

func newTestServer(t *testing.T, opts serverOptions) *Server {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	store := docstore.NewMemoryStore()
	settingsStore := settings.NewMemoryStore()
	sessions := chat.NewMemorySessionStore()

	ragSvc := rag.NewService(store, &stubEmbedder{err: opts.embedErr}, logger)
	chatSvc := chat.NewService(sessions, llm.NewGeminiClient(opts.apiKey), settingsStore,
		[]string{"primary-model"}, opts.apiKey, ragSvc, logger)

	return New(ragSvc, chatSvc, opts.projects, settingsStore, logger)
}

func doJSON(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, serverOptions{})

	rec := doJSON(t, server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatRequiresSessionAndMessage(t *testing.T) {
	server := newTestServer(t, serverOptions{})

	rec := doJSON(t, server, http.MethodPost, "/v1/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/v1/chat", `{"sessionId":"s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUnconfiguredReturnsCannedReply(t *testing.T) {
	server := newTestServer(t, serverOptions{})

	rec := doJSON(t, server, http.MethodPost, "/v1/chat", `{"sessionId":"s1","message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Reply, "hasn't been configured yet")
}

func TestIngestSurfacesRealErrorToAdmin(t *testing.T) {
	server := newTestServer(t, serverOptions{embedErr: errors.New("quota exceeded for project")})

	rec := doJSON(t, server, http.MethodPost, "/v1/ingest", `{"title":"t","text":"some text","type":"note"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "quota exceeded for project")
}

func TestIngestThenSearch(t *testing.T) {
	server := newTestServer(t, serverOptions{})

	rec := doJSON(t, server, http.MethodPost, "/v1/ingest",
		`{"title":"Project: Foo","text":"Foo is a banking app.","type":"project","sourceId":"proj_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/v1/search?q=banking+app&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "Project: Foo", resp.Documents[0].Title)
	assert.Equal(t, "proj_1", resp.Documents[0].SourceID)
}

func TestSyncReportsPerProjectOutcome(t *testing.T) {
	server := newTestServer(t, serverOptions{projects: &stubProjects{projects: []content.Project{
		{ID: "p1", Title: "First"},
		{ID: "p2", Title: "Second"},
	}}})

	rec := doJSON(t, server, http.MethodPost, "/v1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp syncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Synced)
	assert.Empty(t, resp.Failures)
}

func TestModelSettingRoundTrip(t *testing.T) {
	server := newTestServer(t, serverOptions{})

	rec := doJSON(t, server, http.MethodPut, "/v1/settings/model", `{"model":"gemini-2.0-flash"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/v1/settings/model", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp modelSettingRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gemini-2.0-flash", resp.Model)
}

func TestAPIKeySettingIsWriteOnly(t *testing.T) {
	server := newTestServer(t, serverOptions{})

	rec := doJSON(t, server, http.MethodPut, "/v1/settings/key", `{"key":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/v1/settings/key", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestProjectCRUD(t *testing.T) {
	server := newTestServer(t, serverOptions{projects: &stubProjects{}})

	rec := doJSON(t, server, http.MethodPost, "/v1/projects",
		`{"id":"p1","title":"Ledgerly","tags":["fintech"],"year":2024}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/v1/projects/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var project projectPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	assert.Equal(t, "Ledgerly", project.Title)

	rec = doJSON(t, server, http.MethodDelete, "/v1/projects/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/v1/projects/p1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectRequiresIDAndTitle(t *testing.T) {
	server := newTestServer(t, serverOptions{projects: &stubProjects{}})

	rec := doJSON(t, server, http.MethodPost, "/v1/projects", `{"title":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	server := newTestServer(t, serverOptions{})

	rec := doJSON(t, server, http.MethodGet, "/v1/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
