package user

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/nutrition"
)

// Service errors.
var (
	ErrInvalidProfile = errors.New("invalid profile")
	ErrInvalidFood    = errors.New("food name is required")
	ErrInvalidMeal    = errors.New("favorite meal needs a name and at least one food")
)

// ValidationError lists the rejected profile fields by JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return "invalid profile: " + strings.Join(parts, "; ")
}

// Is matches ErrInvalidProfile.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidProfile
}

// ServiceConfig holds user service dependencies.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// Service provides user profile operations.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a new user service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
		return nutrition.ParseGender(fl.Field().String()) != ""
	})

	return &Service{
		repo:     cfg.Repository,
		validate: v,
		logger:   cfg.Logger,
		now:      now,
	}
}

// CreateUser creates a new user with default settings. It is idempotent:
// an existing user is returned unchanged.
func (s *Service) CreateUser(ctx context.Context, userID, locale string) (*User, error) {
	existing, err := s.repo.Get(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user := DefaultUser(userID, locale, s.now())
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return s.repo.Get(ctx, userID)
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", userID).Msg("user created")
	return user, nil
}

// GetProfile returns the user with their profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*User, error) {
	return s.repo.Get(ctx, userID)
}

// UpsertProfile replaces the biometrics and preferences of the user's
// profile, creating the user if needed. Food scores and favourite meals are
// kept.
func (s *Service) UpsertProfile(ctx context.Context, userID string, input *ProfileInput) (*User, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	locale := ""
	if input.Locale != nil {
		locale = *input.Locale
	}
	user, err := s.CreateUser(ctx, userID, locale)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if user.Profile == nil {
		user.Profile = DefaultProfile(now)
	}
	p := user.Profile

	streak := p.Biometrics.StreakDays
	p.Biometrics = nutrition.Biometrics{
		WeightKg:       input.WeightKg,
		HeightCm:       input.HeightCm,
		Age:            input.Age,
		Gender:         nutrition.ParseGender(input.Gender),
		Activity:       nutrition.ActivityLevel(input.ActivityLevel),
		Goal:           nutrition.Goal(input.Goal),
		TargetWeightKg: input.TargetWeightKg,
		TargetWeeks:    input.TargetWeeks,
		LifeContext:    nutrition.LifeContext(input.LifeContext),
		StreakDays:     streak,
	}
	if p.Biometrics.Activity == "" {
		p.Biometrics.Activity = nutrition.ActivitySedentary
	}
	if p.Biometrics.Goal == "" {
		p.Biometrics.Goal = nutrition.GoalMaintenance
	}

	p.DietType = diet.DietType(input.DietType)
	if p.DietType == "" {
		p.DietType = diet.DietStandard
	}
	p.Budget = diet.BudgetTier(input.Budget)
	if p.Budget == "" {
		p.Budget = diet.BudgetModerate
	}
	p.Allergies = cleanList(input.Allergies)
	p.UpdatedAt = now

	if input.Locale != nil {
		user.Locale = *input.Locale
	}
	user.UpdatedAt = now

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// RecordFoodFeedback moves the food's score one step up (liked) or down,
// within [MinFoodScore, MaxFoodScore], and returns the new score.
func (s *Service) RecordFoodFeedback(ctx context.Context, userID, food string, liked bool) (int, error) {
	key := diet.Normalize(food)
	if key == "" {
		return 0, ErrInvalidFood
	}

	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.Profile == nil {
		user.Profile = DefaultProfile(s.now())
	}
	if user.Profile.FoodScores == nil {
		user.Profile.FoodScores = map[string]int{}
	}

	score := user.Profile.FoodScores[key]
	if liked {
		score++
	} else {
		score--
	}
	score = max(MinFoodScore, min(MaxFoodScore, score))

	if score == 0 {
		delete(user.Profile.FoodScores, key)
	} else {
		user.Profile.FoodScores[key] = score
	}
	user.Profile.UpdatedAt = s.now()
	user.UpdatedAt = user.Profile.UpdatedAt

	if err := s.repo.Update(ctx, user); err != nil {
		return 0, err
	}
	return score, nil
}

// SaveFavoriteMeal puts meal first in the user's favourites, replacing a
// meal with the same name and keeping at most MaxFavoriteMeals.
func (s *Service) SaveFavoriteMeal(ctx context.Context, userID string, meal diet.Meal) ([]diet.Meal, error) {
	key := diet.Normalize(meal.Name)
	if key == "" || len(meal.Foods) == 0 {
		return nil, ErrInvalidMeal
	}

	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Profile == nil {
		user.Profile = DefaultProfile(s.now())
	}

	meal.Recompute()
	favorites := []diet.Meal{meal}
	for _, m := range user.Profile.FavoriteMeals {
		if diet.Normalize(m.Name) == key {
			continue
		}
		favorites = append(favorites, m)
	}
	if len(favorites) > MaxFavoriteMeals {
		favorites = favorites[:MaxFavoriteMeals]
	}

	user.Profile.FavoriteMeals = favorites
	user.Profile.UpdatedAt = s.now()
	user.UpdatedAt = user.Profile.UpdatedAt

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return favorites, nil
}

// DeleteUser deletes a user and all associated data.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	return s.repo.Delete(ctx, userID)
}

// DietProfile returns what plan generation needs to know about the user.
func (s *Service) DietProfile(ctx context.Context, userID string) (*diet.Profile, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", diet.ErrUserNotFound, err)
		}
		return nil, err
	}

	p := copyProfile(user.Profile)
	if p == nil {
		p = DefaultProfile(user.UpdatedAt)
	}
	return &diet.Profile{
		UserID:        user.ID,
		Locale:        user.Locale,
		Biometrics:    p.Biometrics,
		DietType:      p.DietType,
		Budget:        p.Budget,
		Allergies:     p.Allergies,
		FoodScores:    p.FoodScores,
		FavoriteMeals: p.FavoriteMeals,
	}, nil
}

func (s *Service) validateInput(input *ProfileInput) error {
	if input == nil {
		return &ValidationError{Fields: map[string]string{"profile": "is required"}}
	}
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "required":
		return "must not be empty"
	default:
		return "is invalid"
	}
}

// cleanList trims, drops empties and de-duplicates case-insensitively.
func cleanList(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		key := diet.Normalize(it)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var _ diet.ProfileSource = (*Service)(nil)
