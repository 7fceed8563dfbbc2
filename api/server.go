package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/foliolabs/portfolio-assistant/chat"
	"github.com/foliolabs/portfolio-assistant/content"
	"github.com/foliolabs/portfolio-assistant/docstore"
	"github.com/foliolabs/portfolio-assistant/rag"
	"github.com/foliolabs/portfolio-assistant/settings"
)

// Server exposes the assistant over HTTP. The public surface is the chat
// endpoint, which never leaks raw errors; the admin endpoints surface real
// error text so operators can diagnose credential and quota problems.
type Server struct {
	rag      *rag.Service
	chat     *chat.Service
	projects content.Repository
	settings settings.Store
	logger   *log.Logger
	handler  http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type ingestRequest struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	SourceID string `json:"sourceId"`
}

type ingestResponse struct {
	ID string `json:"id"`
}

type syncResponse struct {
	Synced   int               `json:"synced"`
	Failures map[string]string `json:"failures,omitempty"`
	Skipped  []string          `json:"skipped,omitempty"`
}

type searchDocument struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	SourceID string `json:"sourceId,omitempty"`
}

type searchResponse struct {
	Documents []searchDocument `json:"documents"`
}

type projectSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
	Enabled bool   `json:"enabled"`
}

type projectPayload struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Tags        []string         `json:"tags,omitempty"`
	Year        int              `json:"year,omitempty"`
	Description string           `json:"description,omitempty"`
	Sections    []projectSection `json:"sections,omitempty"`
	Featured    bool             `json:"featured,omitempty"`
	SortOrder   int              `json:"sortOrder,omitempty"`
}

func (p projectPayload) toProject() content.Project {
	sections := make([]content.Section, 0, len(p.Sections))
	for _, section := range p.Sections {
		sections = append(sections, content.Section(section))
	}
	return content.Project{
		ID:          p.ID,
		Title:       p.Title,
		Tags:        p.Tags,
		Year:        p.Year,
		Description: p.Description,
		Sections:    sections,
		Featured:    p.Featured,
		SortOrder:   p.SortOrder,
	}
}

func toProjectPayload(project content.Project) projectPayload {
	sections := make([]projectSection, 0, len(project.Sections))
	for _, section := range project.Sections {
		sections = append(sections, projectSection(section))
	}
	return projectPayload{
		ID:          project.ID,
		Title:       project.Title,
		Tags:        project.Tags,
		Year:        project.Year,
		Description: project.Description,
		Sections:    sections,
		Featured:    project.Featured,
		SortOrder:   project.SortOrder,
	}
}

func toProjectPayloads(projects []content.Project) []projectPayload {
	payloads := make([]projectPayload, 0, len(projects))
	for _, project := range projects {
		payloads = append(payloads, toProjectPayload(project))
	}
	return payloads
}

type modelSettingRequest struct {
	Model string `json:"model"`
}

type keySettingRequest struct {
	Key string `json:"key"`
}

func New(ragSvc *rag.Service, chatSvc *chat.Service, projects content.Repository, settingsStore settings.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		rag:      ragSvc,
		chat:     chatSvc,
		projects: projects,
		settings: settingsStore,
		logger:   logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/sync", s.handleSync)
	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/settings/model", s.handleModelSetting)
	mux.HandleFunc("/v1/settings/key", s.handleKeySetting)
	mux.HandleFunc("/v1/projects", s.handleProjects)
	mux.HandleFunc("/v1/projects/", s.handleProjectByID)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.SessionID) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("sessionId is required"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("message is required"))
		return
	}

	reply, err := s.chat.Send(r.Context(), req.SessionID, req.Message)
	if err != nil {
		// visitors never see raw errors, only a canned apology
		s.logger.Printf("chat turn failed for %s: %v", req.SessionID, err)
		s.writeJSON(w, http.StatusOK, chatResponse{Reply: chat.ReplyUnavailable})
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("text is required"))
		return
	}

	id, err := s.rag.Ingest(r.Context(), req.Title, req.Text, req.Type, req.SourceID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingest failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, ingestResponse{ID: id.String()})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	if s.projects == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("project repository not configured"))
		return
	}

	ctx := r.Context()

	projects, err := s.projects.List(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("list projects: %w", err))
		return
	}

	report := s.rag.SyncProjects(ctx, projects)

	resp := syncResponse{Synced: report.Synced, Skipped: report.Skipped}
	if len(report.Failures) > 0 {
		resp.Failures = make(map[string]string, len(report.Failures))
		for id, ferr := range report.Failures {
			resp.Failures[id] = ferr.Error()
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("q is required"))
		return
	}

	limit := docstore.DefaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	docs, err := s.rag.Retrieve(r.Context(), query, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("search failed: %w", err))
		return
	}

	resp := searchResponse{Documents: make([]searchDocument, 0, len(docs))}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, searchDocument{
			ID:       doc.ID.String(),
			Title:    doc.Title,
			Text:     doc.Text,
			Type:     doc.Type,
			SourceID: doc.SourceID,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModelSetting(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		model, err := s.settings.Get(r.Context(), settings.KeyChatModel)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("read model setting: %w", err))
			return
		}
		s.writeJSON(w, http.StatusOK, modelSettingRequest{Model: model})
	case http.MethodPut:
		var req modelSettingRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
		if err := s.settings.Set(r.Context(), settings.KeyChatModel, strings.TrimSpace(req.Model)); err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("write model setting: %w", err))
			return
		}
		s.writeJSON(w, http.StatusOK, messageResponse{Message: "model updated"})
	default:
		s.methodNotAllowed(w, "GET, PUT")
	}
}

// handleKeySetting is write-only: the stored credential is never readable
// back through the API.
func (s *Server) handleKeySetting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.methodNotAllowed(w, http.MethodPut)
		return
	}

	var req keySettingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Key) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("key is required"))
		return
	}

	if err := s.settings.Set(r.Context(), settings.KeyGeminiAPIKey, strings.TrimSpace(req.Key)); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("write key setting: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "key updated"})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if s.projects == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("project repository not configured"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		projects, err := s.projects.List(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("list projects: %w", err))
			return
		}
		s.writeJSON(w, http.StatusOK, toProjectPayloads(projects))
	case http.MethodPost:
		var req projectPayload
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
		if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Title) == "" {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("id and title are required"))
			return
		}
		if err := s.projects.Upsert(r.Context(), req.toProject()); err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("save project: %w", err))
			return
		}
		s.writeJSON(w, http.StatusOK, messageResponse{Message: "project saved"})
	default:
		s.methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request) {
	if s.projects == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("project repository not configured"))
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/projects/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("project not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		project, err := s.projects.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, content.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, err)
				return
			}
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load project: %w", err))
			return
		}
		s.writeJSON(w, http.StatusOK, toProjectPayload(project))
	case http.MethodDelete:
		if err := s.projects.Delete(r.Context(), id); err != nil {
			if errors.Is(err, content.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, err)
				return
			}
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("delete project: %w", err))
			return
		}
		s.writeJSON(w, http.StatusOK, messageResponse{Message: "project deleted"})
	default:
		s.methodNotAllowed(w, "GET, DELETE")
	}
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}
