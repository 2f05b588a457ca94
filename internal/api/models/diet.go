package models

import (
	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/nutrition"
)

// FoodFeedbackInput is the request body for liking or disliking a food.
type FoodFeedbackInput struct {
	Food  string `json:"food"`
	Liked *bool  `json:"liked"`
}

// FoodFeedback is the food's score after the feedback was applied.
type FoodFeedback struct {
	Food  string `json:"food"`
	Score int    `json:"score"`
}

// FavoriteMeals lists the user's saved meals, newest first.
type FavoriteMeals struct {
	Meals []diet.Meal `json:"meals"`
}

// Targets is the response for GET /v1/me/targets.
type Targets struct {
	nutrition.MacroTargets
	Meals []diet.MealSlot `json:"meals"`
}

// WaterInput is the request body for logging water intake.
type WaterInput struct {
	AmountML float64 `json:"amountMl"`
}

// GenerationJob is returned when generation is queued instead of run inline.
type GenerationJob struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// History lists superseded plans, newest first.
type History struct {
	Plans []*diet.DietPlan `json:"plans"`
}
