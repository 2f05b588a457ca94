package models

import (
	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/nutrition"
)

// Profile is the response for the profile endpoints.
type Profile struct {
	UserID        string               `json:"userId"`
	Locale        string               `json:"locale"`
	Biometrics    nutrition.Biometrics `json:"biometrics"`
	DietType      diet.DietType        `json:"dietType"`
	Budget        diet.BudgetTier      `json:"budget"`
	Allergies     []string             `json:"allergies"`
	FoodScores    map[string]int       `json:"foodScores"`
	FavoriteMeals []diet.Meal          `json:"favoriteMeals"`
	CreatedAt     Timestamp            `json:"createdAt"`
	UpdatedAt     Timestamp            `json:"updatedAt"`
}
