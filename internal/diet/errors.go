package diet

import (
	"errors"
	"fmt"
	"time"

	"github.com/nutriplan/nutriplan/internal/nutrition"
)

// Pipeline errors. Typed errors below match these with errors.Is.
var (
	// ErrIncompleteProfile is returned when required biometrics are missing.
	ErrIncompleteProfile = nutrition.ErrIncompleteProfile

	// ErrRateLimited is returned when the generation model answers 429.
	ErrRateLimited = errors.New("generation rate limited")

	// ErrServiceUnavailable is returned when the generation model is overloaded or unreachable.
	ErrServiceUnavailable = errors.New("generation service unavailable")

	// ErrTimeout is returned when a generation attempt exceeds its time budget.
	ErrTimeout = errors.New("generation timed out")

	// ErrCanceled is returned when the caller abandons the generation.
	ErrCanceled = errors.New("generation canceled")

	// ErrMalformedResponse is returned when the model output is not a usable plan.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrStructuralValidation is returned when a candidate plan has the wrong shape.
	ErrStructuralValidation = errors.New("plan failed structural validation")

	// ErrDietIncompatible is returned when a food violates the diet type.
	ErrDietIncompatible = errors.New("plan incompatible with diet")

	// ErrProteinTarget is returned when protein cannot be brought into range.
	ErrProteinTarget = errors.New("plan misses protein target")

	// ErrPersistenceConflict is returned when the plan cannot be stored.
	ErrPersistenceConflict = errors.New("plan could not be stored")

	// ErrTransientStore marks store failures that are safe to retry.
	ErrTransientStore = errors.New("transient store failure")

	// ErrUserNotFound is returned when the user document does not exist.
	ErrUserNotFound = errors.New("user document not found")

	// ErrPlanNotFound is returned when the user has no current plan.
	ErrPlanNotFound = errors.New("no current diet plan")

	// ErrMealNotFound is returned when a meal ID is not in the current plan.
	ErrMealNotFound = errors.New("meal not found in current plan")
)

// RateLimitError carries the upstream wait hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("generation rate limited, retry after %s", e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

// Is matches ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// MalformedResponseError describes why the model output was rejected.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed model response: %s: %v", e.Reason, e.Err)
	}
	return "malformed model response: " + e.Reason
}

// Is matches ErrMalformedResponse.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// StructuralValidationError names the offending meal and rule.
type StructuralValidationError struct {
	Meal   string
	Reason string
}

func (e *StructuralValidationError) Error() string {
	if e.Meal == "" {
		return "invalid plan: " + e.Reason
	}
	return fmt.Sprintf("invalid plan: meal %q: %s", e.Meal, e.Reason)
}

// Is matches ErrStructuralValidation.
func (e *StructuralValidationError) Is(target error) bool {
	return target == ErrStructuralValidation
}

// DietIncompatibilityError names the food that broke the diet.
type DietIncompatibilityError struct {
	Diet       DietType
	Meal       string
	Food       string
	Ingredient string
}

func (e *DietIncompatibilityError) Error() string {
	return fmt.Sprintf("food %q in meal %q contains %q, not allowed on a %s diet", e.Food, e.Meal, e.Ingredient, e.Diet)
}

// Is matches ErrDietIncompatible.
func (e *DietIncompatibilityError) Is(target error) bool {
	return target == ErrDietIncompatible
}

// ProteinTargetError reports a protein miss. Meal is empty for the plan total.
type ProteinTargetError struct {
	Meal   string
	Actual float64
	Target float64
	Lower  float64
	Upper  float64
}

func (e *ProteinTargetError) Error() string {
	if e.Meal != "" {
		return fmt.Sprintf("meal %q has %.1fg protein, target %.1fg", e.Meal, e.Actual, e.Target)
	}
	return fmt.Sprintf("plan has %.1fg protein, target %.1fg (allowed %.1f-%.1fg)", e.Actual, e.Target, e.Lower, e.Upper)
}

// Is matches ErrProteinTarget.
func (e *ProteinTargetError) Is(target error) bool {
	return target == ErrProteinTarget
}

// PersistenceConflictError wraps a terminal store failure.
type PersistenceConflictError struct {
	UserID string
	Err    error
}

func (e *PersistenceConflictError) Error() string {
	return fmt.Sprintf("storing plan for user %s: %v", e.UserID, e.Err)
}

// Is matches ErrPersistenceConflict.
func (e *PersistenceConflictError) Is(target error) bool {
	return target == ErrPersistenceConflict
}

func (e *PersistenceConflictError) Unwrap() error {
	return e.Err
}

// retryableGeneration reports whether a new generation attempt may fix err.
func retryableGeneration(err error) bool {
	return errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrStructuralValidation) ||
		errors.Is(err, ErrDietIncompatible) ||
		errors.Is(err, ErrProteinTarget)
}
