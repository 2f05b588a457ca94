package handler

import (
	"errors"
	"net/http"

	"github.com/nutriplan/nutriplan/internal/api/models"
	"github.com/nutriplan/nutriplan/internal/api/response"
	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/user"
)

// ProfileHandler handles user profile endpoints.
type ProfileHandler struct {
	userService *user.Service
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(userService *user.Service) *ProfileHandler {
	return &ProfileHandler{userService: userService}
}

// GetProfile handles GET /v1/me/profile. A user seen for the first time is
// provisioned with a default profile.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	u, err := h.userService.GetProfile(r.Context(), userID)
	if errors.Is(err, user.ErrUserNotFound) {
		u, err = h.userService.CreateUser(r.Context(), userID, localeOf(r))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, profileResponse(u))
}

// UpsertProfile handles PUT /v1/me/profile - create or update profile.
func (h *ProfileHandler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	var input user.ProfileInput
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Locale == nil {
		locale := localeOf(r)
		input.Locale = &locale
	}

	u, err := h.userService.UpsertProfile(r.Context(), userID, &input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, profileResponse(u))
}

// DeleteProfile handles DELETE /v1/me/profile. The user's plans, history
// and stats go with it.
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	if err := h.userService.DeleteUser(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}

	response.NoContent(w, r)
}

// RecordFoodFeedback handles POST /v1/me/profile/food-feedback.
func (h *ProfileHandler) RecordFoodFeedback(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	var input models.FoodFeedbackInput
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Liked == nil {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "liked", Message: "is required"},
		})
		return
	}

	score, err := h.userService.RecordFoodFeedback(r.Context(), userID, input.Food, *input.Liked)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.FoodFeedback{Food: input.Food, Score: score})
}

// SaveFavoriteMeal handles POST /v1/me/profile/favorite-meals.
func (h *ProfileHandler) SaveFavoriteMeal(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "user not authenticated")
		return
	}

	var meal diet.Meal
	if err := decodeJSON(w, r, &meal); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	favorites, err := h.userService.SaveFavoriteMeal(r.Context(), userID, meal)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.FavoriteMeals{Meals: favorites})
}

func profileResponse(u *user.User) models.Profile {
	out := models.Profile{
		UserID:    u.ID,
		Locale:    u.Locale,
		CreatedAt: models.Timestamp(u.CreatedAt),
		UpdatedAt: models.Timestamp(u.UpdatedAt),
	}
	if p := u.Profile; p != nil {
		out.Biometrics = p.Biometrics
		out.DietType = p.DietType
		out.Budget = p.Budget
		out.Allergies = p.Allergies
		out.FoodScores = p.FoodScores
		out.FavoriteMeals = p.FavoriteMeals
	}
	if out.Allergies == nil {
		out.Allergies = []string{}
	}
	if out.FoodScores == nil {
		out.FoodScores = map[string]int{}
	}
	if out.FavoriteMeals == nil {
		out.FavoriteMeals = []diet.Meal{}
	}
	return out
}
