// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"meal-scale/internal/meallog"
	"meal-scale/internal/models"
)

const (
	defaultLimit  = 20
	maxUploadSize = 1 << 20
)

var errNoMeals = errors.New("no closed meal in record stream")

type toolHandler func(context.Context, *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type IngestLogParams struct {
	Records string `json:"records" description:"Meal log records, one per line"`
}

type GetMealsParams struct {
	StartDate string `json:"start_date,omitempty" description:"Start date for meal query (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" description:"End date for meal query (YYYY-MM-DD)"`
	Limit     int    `json:"limit,omitempty" description:"Maximum number of meals to return"`
}

// IngestResult reports what a record stream produced.
type IngestResult struct {
	Document  models.Document `json:"document"`
	Stored    int             `json:"stored"`
	Discarded int             `json:"discarded"`
	Problems  []string        `json:"problems,omitempty"`
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	return nil
}

func (s *MealLogServer) registerTools() error {
	s.tools = map[string]toolHandler{
		"ingest_log":   s.handleIngestLogTool,
		"get_meals":    s.handleGetMealsTool,
		"meal_summary": s.handleMealSummaryTool,
	}

	for name := range s.tools {
		s.logger.Debug("registered tool", "tool", name)
	}

	return nil
}

// ingest decodes a record stream and stores its closed meals.
func (s *MealLogServer) ingest(ctx context.Context, r io.Reader) (IngestResult, error) {
	opts := []meallog.Option{meallog.WithLocation(s.config.Location), meallog.WithLogger(s.logger)}
	if s.groups != nil {
		opts = append(opts, meallog.WithGroups(s.groups))
	}

	res, err := meallog.Decode(r, opts...)
	if err != nil {
		return IngestResult{}, err
	}

	out := IngestResult{Document: res.Document, Discarded: res.Discarded}
	for _, p := range res.Problems {
		out.Problems = append(out.Problems, p.Error())
	}
	if len(res.Meals) == 0 {
		return out, errNoMeals
	}
	if err := s.storage.SaveMeals(ctx, res.Meals); err != nil {
		return out, fmt.Errorf("failed to save meals: %w", err)
	}
	out.Stored = len(res.Meals)
	return out, nil
}

func (s *MealLogServer) query(ctx context.Context, params GetMealsParams) ([]models.Meal, error) {
	if params.Limit <= 0 {
		params.Limit = defaultLimit
	}
	for _, d := range []string{params.StartDate, params.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", d, err)
		}
	}

	meals, err := s.storage.GetMeals(ctx, params.StartDate, params.EndDate, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve meals: %w", err)
	}
	return meals, nil
}

func (s *MealLogServer) handleIngestLogTool(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params IngestLogParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(params.Records) == "" {
		return nil, fmt.Errorf("records are required")
	}

	result, err := s.ingest(ctx, strings.NewReader(params.Records))
	if err != nil && !errors.Is(err, errNoMeals) {
		return nil, err
	}
	return s.createJSONResponse(result)
}

func (s *MealLogServer) handleGetMealsTool(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetMealsParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	meals, err := s.query(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(models.ToDocument(meals))
}

func (s *MealLogServer) handleMealSummaryTool(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetMealsParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	meals, err := s.query(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(summaries(meals))
}

func summaries(meals []models.Meal) []models.MealSummary {
	out := make([]models.MealSummary, 0, len(meals))
	for i := range meals {
		out = append(out, meals[i].Summary())
	}
	return out
}

func paramsFromQuery(r *http.Request) (GetMealsParams, error) {
	q := r.URL.Query()
	params := GetMealsParams{StartDate: q.Get("start"), EndDate: q.Get("end")}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			return params, fmt.Errorf("invalid limit %q", l)
		}
		params.Limit = n
	}
	return params, nil
}

func (s *MealLogServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	result, err := s.ingest(r.Context(), body)
	switch {
	case errors.Is(err, errNoMeals):
		writeJSON(w, http.StatusUnprocessableEntity, result)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusCreated, result)
	}
}

func (s *MealLogServer) handleGetMeals(w http.ResponseWriter, r *http.Request) {
	params, err := paramsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	meals, err := s.query(r.Context(), params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, models.ToDocument(meals))
}

func (s *MealLogServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	params, err := paramsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	meals, err := s.query(r.Context(), params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, summaries(meals))
}
