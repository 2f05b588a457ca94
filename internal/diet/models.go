// Package diet generates, validates and stores AI-generated meal plans and
// tracks daily consumption against them.
package diet

import (
	"math"
	"slices"
	"time"

	"github.com/nutriplan/nutriplan/internal/nutrition"
)

// DietType restricts which ingredients a plan may contain.
type DietType string

// Diet types.
const (
	DietStandard   DietType = "standard"
	DietVegetarian DietType = "vegetarian"
	DietVegan      DietType = "vegan"
	DietKeto       DietType = "keto"
)

// BudgetTier steers ingredient cost in the generated plan.
type BudgetTier string

// Budget tiers.
const (
	BudgetEconomic BudgetTier = "economic"
	BudgetModerate BudgetTier = "moderate"
	BudgetPremium  BudgetTier = "premium"
)

// Food is a single item within a meal.
type Food struct {
	Name         string  `json:"name"`
	Portion      string  `json:"portion"`
	Calories     float64 `json:"calories"`
	Protein      float64 `json:"protein"`
	Carbs        float64 `json:"carbs"`
	Fat          float64 `json:"fat"`
	ImageURL     string  `json:"imageUrl,omitempty"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty"`
	Alternatives []Food  `json:"alternatives,omitempty"`
}

// Meal is a scheduled group of foods. Its macro fields are aggregates of
// Foods and are refreshed by Recompute.
type Meal struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Time     string  `json:"time"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Foods    []Food  `json:"foods"`
}

// Recompute sets the meal aggregates to the sums of its foods.
func (m *Meal) Recompute() {
	var cal, protein, carbs, fat float64
	for _, f := range m.Foods {
		cal += f.Calories
		protein += f.Protein
		carbs += f.Carbs
		fat += f.Fat
	}
	m.Calories = round1(cal)
	m.Protein = round1(protein)
	m.Carbs = round1(carbs)
	m.Fat = round1(fat)
}

// DailyStats tracks what the user consumed today.
type DailyStats struct {
	CaloriesConsumed float64             `json:"caloriesConsumed"`
	ProteinConsumed  float64             `json:"proteinConsumed"`
	CarbsConsumed    float64             `json:"carbsConsumed"`
	FatConsumed      float64             `json:"fatConsumed"`
	WaterIntakeML    float64             `json:"waterIntake"`
	CompletedMeals   map[string][]string `json:"completedMeals,omitempty"`
	LastUpdated      time.Time           `json:"lastUpdated"`
}

// IsCompleted reports whether mealID was completed on date (YYYY-MM-DD).
func (s *DailyStats) IsCompleted(date, mealID string) bool {
	return slices.Contains(s.CompletedMeals[date], mealID)
}

// Clone returns a deep copy.
func (s DailyStats) Clone() DailyStats {
	out := s
	if s.CompletedMeals != nil {
		out.CompletedMeals = make(map[string][]string, len(s.CompletedMeals))
		for date, ids := range s.CompletedMeals {
			out.CompletedMeals[date] = slices.Clone(ids)
		}
	}
	return out
}

// DietPlan is a generated plan. Totals are aggregates of Meals; Targets
// are what the calculator asked for.
type DietPlan struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"userId"`
	CreatedAt     time.Time              `json:"createdAt"`
	DietType      DietType               `json:"dietType"`
	Targets       nutrition.MacroTargets `json:"targets"`
	TotalCalories float64                `json:"totalCalories"`
	TotalProtein  float64                `json:"totalProtein"`
	TotalCarbs    float64                `json:"totalCarbs"`
	TotalFat      float64                `json:"totalFat"`
	Meals         []Meal                 `json:"meals"`
	DailyStats    DailyStats             `json:"dailyStats"`
}

// Recompute refreshes every meal aggregate and the plan totals.
func (p *DietPlan) Recompute() {
	var cal, protein, carbs, fat float64
	for i := range p.Meals {
		p.Meals[i].Recompute()
		cal += p.Meals[i].Calories
		protein += p.Meals[i].Protein
		carbs += p.Meals[i].Carbs
		fat += p.Meals[i].Fat
	}
	p.TotalCalories = round1(cal)
	p.TotalProtein = round1(protein)
	p.TotalCarbs = round1(carbs)
	p.TotalFat = round1(fat)
}

// Meal returns the meal with the given ID.
func (p *DietPlan) Meal(id string) (*Meal, bool) {
	for i := range p.Meals {
		if p.Meals[i].ID == id {
			return &p.Meals[i], true
		}
	}
	return nil, false
}

// UserDocument is the per-user record that owns the current plan and the
// daily stats. It is the unit of atomic update.
type UserDocument struct {
	UserID      string     `json:"userId"`
	CurrentPlan *DietPlan  `json:"currentDietPlan,omitempty"`
	DailyStats  DailyStats `json:"dailyStats"`

	// Archived holds plans superseded during the current update. The
	// repository moves them to history when the update commits.
	Archived []*DietPlan `json:"-"`
}

// Profile is everything the pipeline needs to know about a user.
type Profile struct {
	UserID        string
	Locale        string
	Biometrics    nutrition.Biometrics
	DietType      DietType
	Budget        BudgetTier
	Allergies     []string
	FoodScores    map[string]int
	FavoriteMeals []Meal
}

// MealSlot is a fixed meal-timing slot offered to the model.
type MealSlot struct {
	Name         string  `json:"name"`
	Time         string  `json:"time"`
	ProteinRatio float64 `json:"proteinRatio"`
}

// PreWorkoutProteinThreshold is the daily protein target (g) from which a
// pre-workout meal is added.
const PreWorkoutProteinThreshold = 150

// MealSlots returns the meal schedule for a daily protein target.
func MealSlots(proteinTarget int) []MealSlot {
	slots := []MealSlot{
		{Name: "Breakfast", Time: "07:00", ProteinRatio: 0.25},
		{Name: "Lunch", Time: "12:30", ProteinRatio: 0.35},
		{Name: "Afternoon Snack", Time: "16:00", ProteinRatio: 0.10},
	}
	if proteinTarget >= PreWorkoutProteinThreshold {
		slots = append(slots, MealSlot{Name: "Pre-Workout", Time: "18:00", ProteinRatio: 0.15})
	}
	return append(slots, MealSlot{Name: "Dinner", Time: "20:00", ProteinRatio: 0.25})
}

// ExpectedMealCount returns how many meals a plan must have.
func ExpectedMealCount(proteinTarget int) int {
	return len(MealSlots(proteinTarget))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
