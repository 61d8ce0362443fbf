// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"meal-scale/internal/meallog"
	"meal-scale/internal/models"
)

type Config struct {
	Host     string
	Port     int
	Location *time.Location
	Version  string
}

// MealStore is the persistence the server reads from and writes to.
type MealStore interface {
	SaveMeals(ctx context.Context, meals []models.Meal) error
	GetMeals(ctx context.Context, startDate, endDate string, limit int) ([]models.Meal, error)
}

type MealLogServer struct {
	server     *server.Server
	httpServer *http.Server
	storage    MealStore
	groups     meallog.GroupLookup
	logger     *slog.Logger
	config     *Config
	tools      map[string]toolHandler
}

func NewMealLogServer(cfg *Config, store MealStore, groups meallog.GroupLookup, logger *slog.Logger) (*MealLogServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	mealServer := &MealLogServer{
		storage: store,
		groups:  groups,
		logger:  logger,
		config:  cfg,
	}

	// Tool calls arrive over plain HTTP, so the MCP server has no transport.
	mcpServer, err := server.NewServer(
		nil,
		server.WithServerInfo(protocol.Implementation{
			Name:    "meal-scale",
			Version: cfg.Version,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	mealServer.server = mcpServer

	if err := mealServer.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	mealServer.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mealServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return mealServer, nil
}

// Handler returns the HTTP routes.
func (s *MealLogServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/mcp", s.handleMCP)
	r.Route("/meals", func(r chi.Router) {
		r.Get("/", s.handleGetMeals)
		r.Get("/summary", s.handleSummary)
		r.Post("/log", s.handleUpload)
	})
	return r
}

func (s *MealLogServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *MealLogServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	result, err := handler(r.Context(), &request)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *MealLogServer) Start(ctx context.Context) error {
	s.logger.Info("starting meal-scale companion server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *MealLogServer) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *MealLogServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
