package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nutriplan/nutriplan/internal/api/models"
	"github.com/nutriplan/nutriplan/internal/api/response"
	"github.com/nutriplan/nutriplan/internal/diet"
)

// History page sizes.
const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

// JobPublisher queues background plan generation.
type JobPublisher interface {
	EnqueueGeneration(ctx context.Context, userID string) (string, error)
}

// DietPlanHandler handles plan generation and daily tracking endpoints.
type DietPlanHandler struct {
	plans     *diet.Service
	tracker   *diet.Tracker
	publisher JobPublisher
	logger    zerolog.Logger
}

// NewDietPlanHandler creates a new DietPlanHandler. publisher may be nil,
// in which case ?async=true runs inline.
func NewDietPlanHandler(plans *diet.Service, tracker *diet.Tracker, publisher JobPublisher, logger zerolog.Logger) *DietPlanHandler {
	return &DietPlanHandler{
		plans:     plans,
		tracker:   tracker,
		publisher: publisher,
		logger:    logger,
	}
}

// GetTargets handles GET /v1/me/targets.
func (h *DietPlanHandler) GetTargets(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	targets, err := h.plans.Targets(r.Context(), userID)
	if err != nil {
		writeError(w, r, asIncomplete(err))
		return
	}

	response.JSON(w, r, http.StatusOK, models.Targets{
		MacroTargets: targets,
		Meals:        diet.MealSlots(targets.ProteinG),
	})
}

// GetCurrentPlan handles GET /v1/me/diet-plan.
func (h *DietPlanHandler) GetCurrentPlan(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	plan, err := h.tracker.CurrentPlan(r.Context(), userID)
	if errors.Is(err, diet.ErrUserNotFound) {
		err = diet.ErrPlanNotFound
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, plan)
}

// GeneratePlan handles POST /v1/me/diet-plan:generate. The plan is
// generated inline unless ?async=true, which queues a job and answers 202.
func (h *DietPlanHandler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async && h.publisher != nil {
		jobID, err := h.publisher.EnqueueGeneration(r.Context(), userID)
		if err != nil {
			h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to enqueue generation job")
			response.ServiceUnavailable(w, r, diet.UserMessage(diet.ErrServiceUnavailable, localeOf(r)))
			return
		}
		response.Accepted(w, r, "/v1/me/diet-plan", models.GenerationJob{JobID: jobID, Status: "queued"})
		return
	}

	plan, err := h.plans.GeneratePlan(r.Context(), userID)
	if err != nil {
		writeError(w, r, asIncomplete(err))
		return
	}

	response.Created(w, r, "/v1/me/diet-plan", plan)
}

// GetHistory handles GET /v1/me/diet-plan/history?limit=N.
func (h *DietPlanHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			response.BadRequest(w, r, "validation failed", []models.FieldError{
				{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxHistoryLimit)},
			})
			return
		}
		limit = n
	}

	plans, err := h.tracker.History(r.Context(), userID, limit)
	if errors.Is(err, diet.ErrUserNotFound) {
		plans, err = nil, nil
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if plans == nil {
		plans = []*diet.DietPlan{}
	}

	response.JSON(w, r, http.StatusOK, models.History{Plans: plans})
}

// GetStats handles GET /v1/me/diet-plan/stats.
func (h *DietPlanHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	stats, err := h.tracker.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, stats)
}

// CompleteMeal handles POST /v1/me/diet-plan/meals/{mealId}/complete.
func (h *DietPlanHandler) CompleteMeal(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	stats, err := h.tracker.CompleteMeal(r.Context(), userID, chi.URLParam(r, "mealId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, stats)
}

// LogWater handles POST /v1/me/water.
func (h *DietPlanHandler) LogWater(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	var input models.WaterInput
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	stats, err := h.tracker.LogWater(r.Context(), userID, input.AmountML)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, stats)
}

// asIncomplete treats a user without a profile like one with missing
// biometrics.
func asIncomplete(err error) error {
	if errors.Is(err, diet.ErrUserNotFound) {
		return fmt.Errorf("%w: %w", diet.ErrIncompleteProfile, err)
	}
	return err
}
