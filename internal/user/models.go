// Package user stores the profile a diet plan is generated from: biometrics,
// diet preferences, food likes and dislikes, and saved meals.
//
// # Data stored
//
//   - UserID: identifier issued by the auth provider
//   - Locale: language for user-facing messages
//   - Biometrics: weight, height, age, gender, activity, goal and
//     pregnancy/lactation context, used only to compute targets
//   - Preferences: diet type, budget, allergies, food scores, favourite meals
//
// Names, emails and contact details are not stored here.
package user

import (
	"time"

	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/nutrition"
)

// Bounds on user-curated data.
const (
	MinFoodScore     = -5
	MaxFoodScore     = 5
	MaxFavoriteMeals = 10
)

// User represents a user's profile.
type User struct {
	// ID is the user identifier from the bearer token subject.
	ID string

	// Locale is the preferred language (BCP 47, e.g. "pt-BR").
	Locale string

	// Profile contains the user's biometrics and diet preferences.
	Profile *Profile

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile holds everything plan generation reads about a user.
type Profile struct {
	Biometrics    nutrition.Biometrics `json:"biometrics"`
	DietType      diet.DietType        `json:"dietType"`
	Budget        diet.BudgetTier      `json:"budget"`
	Allergies     []string             `json:"allergies,omitempty"`
	FoodScores    map[string]int       `json:"foodScores,omitempty"`
	FavoriteMeals []diet.Meal          `json:"favoriteMeals,omitempty"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// DefaultUser returns a new user with an empty standard-diet profile.
func DefaultUser(id, locale string, now time.Time) *User {
	if locale == "" {
		locale = diet.DefaultLocale
	}
	return &User{
		ID:        id,
		Locale:    locale,
		Profile:   DefaultProfile(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DefaultProfile returns a profile with no biometrics and default preferences.
func DefaultProfile(now time.Time) *Profile {
	return &Profile{
		Biometrics: nutrition.Biometrics{
			Activity: nutrition.ActivitySedentary,
			Goal:     nutrition.GoalMaintenance,
		},
		DietType:   diet.DietStandard,
		Budget:     diet.BudgetModerate,
		FoodScores: map[string]int{},
		UpdatedAt:  now,
	}
}

// ProfileInput is a full profile replacement as accepted from clients.
type ProfileInput struct {
	WeightKg       float64  `json:"weightKg" validate:"omitempty,gt=0,lte=400"`
	HeightCm       float64  `json:"heightCm" validate:"omitempty,gt=0,lte=260"`
	Age            int      `json:"age" validate:"omitempty,gte=14,lte=120"`
	Gender         string   `json:"gender" validate:"omitempty,gender"`
	ActivityLevel  string   `json:"activityLevel" validate:"omitempty,oneof=sedentary light moderate active very_active"`
	Goal           string   `json:"goal" validate:"omitempty,oneof=loss gain maintenance"`
	TargetWeightKg *float64 `json:"targetWeightKg" validate:"omitempty,gt=0,lte=400"`
	TargetWeeks    *int     `json:"targetWeeks" validate:"omitempty,gte=1,lte=104"`
	LifeContext    string   `json:"lifeContext" validate:"omitempty,oneof=pregnancy lactation"`
	DietType       string   `json:"dietType" validate:"omitempty,oneof=standard vegetarian vegan keto"`
	Budget         string   `json:"budget" validate:"omitempty,oneof=economic moderate premium"`
	Allergies      []string `json:"allergies" validate:"max=30,dive,required,max=60"`
	Locale         *string  `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

// copyProfile returns a deep copy of p.
func copyProfile(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Biometrics.TargetWeightKg != nil {
		v := *p.Biometrics.TargetWeightKg
		cp.Biometrics.TargetWeightKg = &v
	}
	if p.Biometrics.TargetWeeks != nil {
		v := *p.Biometrics.TargetWeeks
		cp.Biometrics.TargetWeeks = &v
	}
	cp.Allergies = append([]string(nil), p.Allergies...)
	if p.FoodScores != nil {
		cp.FoodScores = make(map[string]int, len(p.FoodScores))
		for k, v := range p.FoodScores {
			cp.FoodScores[k] = v
		}
	}
	if p.FavoriteMeals != nil {
		cp.FavoriteMeals = make([]diet.Meal, len(p.FavoriteMeals))
		for i, m := range p.FavoriteMeals {
			m.Foods = append([]diet.Food(nil), m.Foods...)
			cp.FavoriteMeals[i] = m
		}
	}
	return &cp
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Profile = copyProfile(u.Profile)
	return &cp
}
