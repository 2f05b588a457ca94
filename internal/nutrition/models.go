// Package nutrition derives daily calorie and macronutrient targets from a
// user's biometric profile.
package nutrition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncompleteProfile is returned when required biometrics are missing.
var ErrIncompleteProfile = errors.New("incomplete profile")

// IncompleteProfileError names the biometric fields that are missing.
type IncompleteProfileError struct {
	Missing []string
}

func (e *IncompleteProfileError) Error() string {
	return fmt.Sprintf("incomplete profile: missing %s", strings.Join(e.Missing, ", "))
}

// Is reports whether target is ErrIncompleteProfile.
func (e *IncompleteProfileError) Is(target error) bool {
	return target == ErrIncompleteProfile
}

// Gender is the biological sex used by the BMR equation.
type Gender string

// Gender values.
const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ParseGender accepts English and Portuguese spellings.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "masculino", "m":
		return GenderMale
	case "female", "feminino", "f":
		return GenderFemale
	default:
		return ""
	}
}

// ActivityLevel is the self-reported activity level.
type ActivityLevel string

// Activity levels.
const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// Goal is the user's weight goal.
type Goal string

// Goals.
const (
	GoalLoss        Goal = "loss"
	GoalGain        Goal = "gain"
	GoalMaintenance Goal = "maintenance"
)

// LifeContext flags physiological states that change energy needs.
type LifeContext string

// Life contexts.
const (
	LifeContextNone      LifeContext = ""
	LifeContextPregnancy LifeContext = "pregnancy"
	LifeContextLactation LifeContext = "lactation"
)

// Maternity reports whether the context is pregnancy or lactation.
func (l LifeContext) Maternity() bool {
	return l == LifeContextPregnancy || l == LifeContextLactation
}

// Biometrics is the calculator input.
type Biometrics struct {
	WeightKg       float64       `json:"weightKg"`
	HeightCm       float64       `json:"heightCm"`
	Age            int           `json:"age"`
	Gender         Gender        `json:"gender"`
	Activity       ActivityLevel `json:"activityLevel"`
	Goal           Goal          `json:"goal"`
	TargetWeightKg *float64      `json:"targetWeightKg,omitempty"`
	TargetWeeks    *int          `json:"targetWeeks,omitempty"`
	LifeContext    LifeContext   `json:"lifeContext,omitempty"`
	StreakDays     int           `json:"streakDays,omitempty"`
}

// MacroTargets holds the daily targets in kcal and grams.
type MacroTargets struct {
	Calories int `json:"calories"`
	ProteinG int `json:"proteinG"`
	CarbsG   int `json:"carbsG"`
	FatG     int `json:"fatG"`
}

// Kcal returns the energy implied by the macro grams.
func (m MacroTargets) Kcal() int {
	return 4*m.ProteinG + 4*m.CarbsG + 9*m.FatG
}
