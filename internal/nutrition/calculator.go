package nutrition

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	kcalPerKg = 7700.0

	maternityBonus      = 300.0
	maternityMaxDeficit = 0.10

	floorMale      = 1500.0
	floorFemale    = 1200.0
	floorMaternity = 1800.0

	minDeficit = 0.10
	maxDeficit = 0.25
	minSurplus = 0.05
	maxSurplus = 0.15

	leanGainKgPerWeek  = 0.5
	longStreakDays     = 90
	variationAmplitude = 0.10
)

var activityFactors = map[ActivityLevel]float64{
	ActivitySedentary:  1.2,
	ActivityLight:      1.375,
	ActivityModerate:   1.55,
	ActivityActive:     1.725,
	ActivityVeryActive: 1.9,
}

// macroSplit is the calorie share of protein, carbs and fat.
type macroSplit struct {
	protein, carbs, fat float64
}

var goalSplits = map[Goal]macroSplit{
	GoalLoss:        {protein: 0.35, carbs: 0.35, fat: 0.30},
	GoalGain:        {protein: 0.25, carbs: 0.50, fat: 0.25},
	GoalMaintenance: {protein: 0.30, carbs: 0.40, fat: 0.30},
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithClock sets the clock used to detect variation days.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// WithRandom sets the source of uniform values in [0, 1) used for variation.
func WithRandom(r func() float64) Option {
	return func(c *Calculator) { c.random = r }
}

// WithoutVariation disables the Monday/Wednesday/Friday calorie variation.
func WithoutVariation() Option {
	return func(c *Calculator) { c.variation = false }
}

// Calculator computes daily targets. It holds no mutable state and is safe
// for concurrent use.
type Calculator struct {
	now       func() time.Time
	random    func() float64
	variation bool
}

// NewCalculator creates a calculator with the wall clock and the global
// random source.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		now:       time.Now,
		random:    rand.Float64,
		variation: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate returns the daily calorie and macro targets for b.
func (c *Calculator) Calculate(b Biometrics) (MacroTargets, error) {
	gender := ParseGender(string(b.Gender))
	if err := checkComplete(b, gender); err != nil {
		return MacroTargets{}, err
	}

	tdee := BMR(b.WeightKg, b.HeightCm, b.Age, gender) * ActivityFactor(b.Activity)
	calories := tdee

	goal := normalizeGoal(b.Goal)
	switch goal {
	case GoalLoss:
		deficit := lossDeficit(b, tdee)
		if b.LifeContext.Maternity() {
			deficit = math.Min(deficit, maternityMaxDeficit)
		}
		calories = tdee * (1 - deficit)
	case GoalGain:
		calories = tdee * (1 + gainSurplus(b, tdee))
	}

	if b.LifeContext.Maternity() {
		calories += maternityBonus
	}

	floor := calorieFloor(gender, b.LifeContext)
	calories = math.Max(calories, floor)

	if c.variation && IsVariationDay(c.now()) {
		calories *= 1 + (c.random()*2-1)*variationAmplitude
		calories = math.Max(calories, floor)
	}

	return splitMacros(int(math.Round(calories)), goalSplits[goal]), nil
}

func checkComplete(b Biometrics, gender Gender) error {
	var missing []string
	if b.WeightKg <= 0 {
		missing = append(missing, "weight")
	}
	if b.HeightCm <= 0 {
		missing = append(missing, "height")
	}
	if b.Age <= 0 {
		missing = append(missing, "age")
	}
	if gender == "" {
		missing = append(missing, "gender")
	}
	if len(missing) > 0 {
		return &IncompleteProfileError{Missing: missing}
	}
	return nil
}

// BMR returns the Mifflin-St Jeor basal metabolic rate in kcal/day.
func BMR(weightKg, heightCm float64, age int, gender Gender) float64 {
	bmr := 10*weightKg + 6.25*heightCm - 5*float64(age)
	if gender == GenderFemale {
		return bmr - 161
	}
	return bmr + 5
}

// BMI returns the body mass index.
func BMI(weightKg, heightCm float64) float64 {
	if heightCm <= 0 {
		return 0
	}
	m := heightCm / 100
	return weightKg / (m * m)
}

// ActivityFactor returns the TDEE multiplier for level. Unknown levels are
// treated as sedentary.
func ActivityFactor(level ActivityLevel) float64 {
	if f, ok := activityFactors[level]; ok {
		return f
	}
	return activityFactors[ActivitySedentary]
}

// IsVariationDay reports whether t falls on a Monday, Wednesday or Friday.
func IsVariationDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Monday, time.Wednesday, time.Friday:
		return true
	default:
		return false
	}
}

func normalizeGoal(g Goal) Goal {
	if _, ok := goalSplits[g]; ok {
		return g
	}
	return GoalMaintenance
}

func lossDeficit(b Biometrics, tdee float64) float64 {
	bmi := BMI(b.WeightKg, b.HeightCm)

	var deficit, weeklyRate float64
	switch {
	case bmi >= 35:
		deficit, weeklyRate = 0.25, 1.0
	case bmi >= 30:
		deficit, weeklyRate = 0.20, 1.0
	case bmi >= 25:
		deficit, weeklyRate = 0.15, 0.75
	default:
		deficit, weeklyRate = 0.10, 0.5
	}

	if b.TargetWeightKg != nil && b.TargetWeeks != nil && *b.TargetWeeks > 0 && *b.TargetWeightKg < b.WeightKg {
		needed := (b.WeightKg - *b.TargetWeightKg) / float64(*b.TargetWeeks)
		weekly := math.Min(weeklyRate, needed)
		deficit = math.Min(maxDeficit, weekly*kcalPerKg/(tdee*7))
	}

	return clamp(deficit, minDeficit, maxDeficit)
}

func gainSurplus(b Biometrics, tdee float64) float64 {
	if b.StreakDays > longStreakDays {
		return minSurplus
	}

	weekly := leanGainKgPerWeek
	if b.TargetWeightKg != nil && b.TargetWeeks != nil && *b.TargetWeeks > 0 && *b.TargetWeightKg > b.WeightKg {
		weekly = math.Min(weekly, (*b.TargetWeightKg-b.WeightKg)/float64(*b.TargetWeeks))
	}

	return clamp(weekly*kcalPerKg/(tdee*7), minSurplus, maxSurplus)
}

func calorieFloor(gender Gender, lc LifeContext) float64 {
	switch {
	case lc.Maternity():
		return floorMaternity
	case gender == GenderFemale:
		return floorFemale
	default:
		return floorMale
	}
}

// splitMacros converts a calorie target into grams. Carbs absorb the
// rounding remainder so the grams stay within 2 kcal of the target.
func splitMacros(calories int, split macroSplit) MacroTargets {
	cal := float64(calories)
	protein := int(math.Round(cal * split.protein / 4))
	fat := int(math.Round(cal * split.fat / 9))
	carbs := int(math.Round((cal - float64(4*protein) - float64(9*fat)) / 4))
	if carbs < 0 {
		carbs = 0
	}

	return MacroTargets{
		Calories: calories,
		ProteinG: protein,
		CarbsG:   carbs,
		FatG:     fat,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
