// Package chi exposes papers, auth and retrieval over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/metrics"
	healthuc "github.com/kailas-cloud/papernest/internal/usecase/health"
	"github.com/kailas-cloud/papernest/internal/version"
)

// Retrieval headers set on chat and context responses.
const (
	headerProvider = "X-Retrieval-Provider"
	headerFallback = "X-Retrieval-Fallback"
	headerTokens   = "X-Embedding-Tokens"
)

// DefaultMaxUploadBytes bounds multipart uploads when Config.MaxUploadBytes is unset.
const DefaultMaxUploadBytes = 32 << 20

// Config holds transport settings.
type Config struct {
	MaxUploadBytes int64
	AllowedOrigins []string
}

// Server serves the papernest HTTP API.
type Server struct {
	auth   AuthService
	papers PaperService
	health HealthService
	cfg    Config
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(auth AuthService, papers PaperService, health HealthService, cfg Config, logger *zap.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{auth: auth, papers: papers, health: health, cfg: cfg, logger: logger}
}

// Handler builds the router with the full middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEvent(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", SessionHeader},
		ExposedHeaders:   []string{"X-Request-ID", headerProvider, headerFallback, headerTokens},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware())
	r.Use(SessionMiddleware(s.auth, func(w http.ResponseWriter, err error) {
		s.logger.Error("session lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}))

	r.Get("/", s.Root)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
		r.Post("/logout", s.Logout)
		r.Get("/me", s.Me)
	})

	r.Route("/papers", func(r chi.Router) {
		r.Post("/", s.CreatePaper)
		r.Get("/", s.ListPapers)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetPaper)
			r.Patch("/", s.UpdatePaper)
			r.Delete("/", s.DeletePaper)
			r.Post("/upload", s.UploadPaper)
			r.Post("/summarize", s.SummarizePaper)
			r.Post("/chat", s.ChatPaper)
			r.Post("/context", s.PaperContext)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})
	return r
}

// Root handles GET /.
func (s *Server) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to PaperNest API",
		"version": version.Version,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// Register handles POST /auth/register.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	user, err := s.auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userToResponse(user))
}

// Login handles POST /auth/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	session, user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
		User:      userToResponse(user),
	})
}

// Logout handles POST /auth/logout.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), r.Header.Get(SessionHeader)); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me handles GET /auth/me.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(user))
}

// CreatePaper handles POST /papers.
func (s *Server) CreatePaper(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req PaperRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	p, err := s.papers.Create(r.Context(), user.ID, paperFromRequest(req))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/papers/%d", p.ID))
	writeJSON(w, http.StatusCreated, paperToResponse(p))
}

// ListPapers handles GET /papers?skip&limit.
func (s *Server) ListPapers(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var skip, limit *int
	if err := runtime.BindQueryParameter("form", true, false, "skip", r.URL.Query(), &skip); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid skip parameter")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid limit parameter")
		return
	}

	papers, err := s.papers.List(r.Context(), user.ID, derefInt(skip), derefInt(limit))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]PaperResponse, len(papers))
	for i, p := range papers {
		items[i] = paperToResponse(p)
	}
	writeJSON(w, http.StatusOK, items)
}

// GetPaper handles GET /papers/{id}.
func (s *Server) GetPaper(w http.ResponseWriter, r *http.Request) {
	user, id, ok := s.paperScope(w, r)
	if !ok {
		return
	}

	p, err := s.papers.Get(r.Context(), user.ID, id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paperToResponse(p))
}

// UpdatePaper handles PATCH /papers/{id}.
func (s *Server) UpdatePaper(w http.ResponseWriter, r *http.Request) {
	user, id, ok := s.paperScope(w, r)
	if !ok {
		return
	}

	var req PaperPatchRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	p, err := s.papers.Update(r.Context(), user.ID, id, patchFromRequest(req))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paperToResponse(p))
}

// DeletePaper handles DELETE /papers/{id}.
func (s *Server) DeletePaper(w http.ResponseWriter, r *http.Request) {
	user, id, ok := s.paperScope(w, r)
	if !ok {
		return
	}

	if err := s.papers.Delete(r.Context(), user.ID, id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadPaper handles POST /papers/{id}/upload with a multipart "file" field.
func (s *Server) UploadPaper(w http.ResponseWriter, r *http.Request) {
	user, id, ok := s.paperScope(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "failed to read upload")
		return
	}

	p, err := s.papers.UploadText(r.Context(), user.ID, id, header.Filename, data)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paperToResponse(p))
}

// SummarizePaper handles POST /papers/{id}/summarize.
func (s *Server) SummarizePaper(w http.ResponseWriter, r *http.Request) {
	user, id, ok := s.paperScope(w, r)
	if !ok {
		return
	}

	p, err := s.papers.Summarize(r.Context(), user.ID, id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paperToResponse(p))
}

// ChatPaper handles POST /papers/{id}/chat.
func (s *Server) ChatPaper(w http.ResponseWriter, r *http.Request) {
	user, id, ok := s.paperScope(w, r)
	if !ok {
		return
	}

	var req QueryRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	ans, err := s.papers.Chat(ctx, user.ID, id, req.Query, derefInt(req.TopK))
	setRetrievalHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	chunks := ans.ContextChunks
	if chunks == nil {
		chunks = []string{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{Answer: ans.Answer, ContextChunks: chunks})
}

// PaperContext handles POST /papers/{id}/context.
func (s *Server) PaperContext(w http.ResponseWriter, r *http.Request) {
	user, id, ok := s.paperScope(w, r)
	if !ok {
		return
	}

	var req QueryRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.papers.Context(ctx, user.ID, id, req.Query, derefInt(req.TopK))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	setRetrievalHeaders(w, usage)

	chunks := make([]ScoredChunkResponse, len(res.Chunks))
	for i, c := range res.Chunks {
		chunks[i] = ScoredChunkResponse{
			Index: c.Chunk.Index,
			Start: c.Chunk.Start,
			End:   c.Chunk.End,
			Score: c.Score,
			Text:  c.Chunk.Text,
		}
	}
	provider := ""
	if res.Provider.Name != "" {
		provider = res.Provider.String()
	}
	writeJSON(w, http.StatusOK, ContextResponse{
		Provider:    provider,
		Fallback:    res.Fallback,
		Scored:      res.Scored,
		TotalChunks: res.TotalChunks,
		Chunks:      chunks,
		Context:     res.Context,
	})
}

// paperScope returns the caller and the {id} path parameter, writing the error response on failure.
func (s *Server) paperScope(w http.ResponseWriter, r *http.Request) (domain.User, int64, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return domain.User{}, 0, false
	}

	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid paper id")
		return domain.User{}, 0, false
	}
	return user, id, true
}

func setRetrievalHeaders(w http.ResponseWriter, usage *domain.RetrievalUsage) {
	tokens, provider, fallback := usage.Snapshot()
	if provider == "" {
		return
	}
	w.Header().Set(headerProvider, provider)
	w.Header().Set(headerFallback, strconv.FormatBool(fallback))
	if tokens > 0 {
		w.Header().Set(headerTokens, strconv.Itoa(tokens))
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
