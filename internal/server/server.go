package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/firstpro/mock-feedback-service/internal/config"
	"github.com/firstpro/mock-feedback-service/internal/models"
)

const (
	maxRequestBodySize = 1 << 20

	banner = "First Pro Feedback Generator API\n\nEndpoints:\n- POST /generate (body: {\"count\": 10})\n- GET /progress\n- GET /list"
)

// CorpusService is the part of the corpus service the HTTP layer needs.
type CorpusService interface {
	Generate(ctx context.Context, count int) (*models.BatchResult, error)
	Progress(ctx context.Context) (*models.Progress, error)
	List(ctx context.Context) (*models.Listing, error)
}

// Server handles HTTP requests
type Server struct {
	config  config.ServerConfig
	service CorpusService
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, svc CorpusService, logger *zap.Logger) *Server {
	s := &Server{
		config:  cfg,
		service: svc,
		logger:  logger,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Routes returns the router serving the corpus API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Post("/generate", s.handleGenerate)
	r.Get("/progress", s.handleProgress)
	r.Get("/list", s.handleList)
	r.Get("/health", s.handleHealth)

	r.NotFound(s.handleBanner)
	r.MethodNotAllowed(s.handleBanner)

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type generateResponse struct {
	Success bool `json:"success"`
	*models.BatchResult
}

type failureResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Stack   []string `json:"stack"`
}

type emptyProgressResponse struct {
	Count    int    `json:"count"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleGenerate produces one batch. A missing or unparsable body, or a
// count below one, is passed on as 0 so the service applies its configured
// default batch size.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req models.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Count < 1 {
		req.Count = 0
	}

	result, err := s.service.Generate(r.Context(), req.Count)
	if err != nil {
		s.logger.Error("generate failed", zap.Int("count", req.Count), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failureResponse{
			Success: false,
			Error:   err.Error(),
			Stack:   errorChain(err),
		})
		return
	}

	allowAnyOrigin(w)
	writeJSON(w, http.StatusOK, generateResponse{Success: true, BatchResult: result})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.Progress(r.Context())
	if err != nil {
		s.logger.Error("progress failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	allowAnyOrigin(w)
	if progress.Empty {
		writeJSON(w, http.StatusOK, emptyProgressResponse{
			Count:    0,
			Progress: 0,
			Message:  "No feedbacks generated yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	listing, err := s.service.List(r.Context())
	if err != nil {
		s.logger.Error("list failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	allowAnyOrigin(w)
	writeJSON(w, http.StatusOK, listing)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(banner))
}

func allowAnyOrigin(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// errorChain lists the messages of err and everything it wraps, outermost
// first.
func errorChain(err error) []string {
	var chain []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		chain = append(chain, e.Error())
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		default:
			walk(errors.Unwrap(e))
		}
	}
	walk(err)
	return chain
}
