package diet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nutriplan/nutriplan/internal/nutrition"
)

const tracerName = "github.com/nutriplan/nutriplan/internal/diet"

// DefaultMaxAttempts bounds model requests per generation.
const DefaultMaxAttempts = 3

// PlanRequester asks the generation model for a candidate plan.
type PlanRequester interface {
	RequestPlan(ctx context.Context, prompt Prompt) (*CandidatePlan, error)
}

// ProfileSource loads what the pipeline needs to know about a user.
type ProfileSource interface {
	DietProfile(ctx context.Context, userID string) (*Profile, error)
}

// ImageEnricher attaches images to foods. It must not fail.
type ImageEnricher interface {
	EnrichMeals(ctx context.Context, meals []Meal)
}

// ServiceConfig holds the generation pipeline dependencies.
type ServiceConfig struct {
	Profiles   ProfileSource
	Calculator *nutrition.Calculator
	Requester  PlanRequester
	Validator  *Validator
	Persister  *Persister
	Repository Repository

	// Enricher is optional; without it foods keep no images.
	Enricher ImageEnricher

	// MaxAttempts bounds model requests per generation. Default: 3
	MaxAttempts int

	// MaxFavorites bounds saved meals offered to the model. Default: 3
	MaxFavorites int

	Metrics *Metrics
	Logger  zerolog.Logger

	// Now and NewID are overridden in tests.
	Now   func() time.Time
	NewID func() string
}

// Service runs the diet plan generation pipeline.
type Service struct {
	profiles     ProfileSource
	calculator   *nutrition.Calculator
	requester    PlanRequester
	validator    *Validator
	persister    *Persister
	repo         Repository
	enricher     ImageEnricher
	maxAttempts  int
	maxFavorites int
	metrics      *Metrics
	logger       zerolog.Logger
	now          func() time.Time
	newID        func() string
}

// NewService creates a generation service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Calculator == nil {
		cfg.Calculator = nutrition.NewCalculator()
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator(ValidatorConfig{Logger: cfg.Logger})
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxFavorites <= 0 {
		cfg.MaxFavorites = DefaultMaxFavorites
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}

	return &Service{
		profiles:     cfg.Profiles,
		calculator:   cfg.Calculator,
		requester:    cfg.Requester,
		validator:    cfg.Validator,
		persister:    cfg.Persister,
		repo:         cfg.Repository,
		enricher:     cfg.Enricher,
		maxAttempts:  cfg.MaxAttempts,
		maxFavorites: cfg.MaxFavorites,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		now:          cfg.Now,
		newID:        cfg.NewID,
	}
}

// Targets computes the user's current daily targets.
func (s *Service) Targets(ctx context.Context, userID string) (nutrition.MacroTargets, error) {
	profile, err := s.profiles.DietProfile(ctx, userID)
	if err != nil {
		return nutrition.MacroTargets{}, err
	}
	return s.calculator.Calculate(profile.Biometrics)
}

// GeneratePlan creates, validates and stores a new current plan for the
// user. On failure the previous plan is left untouched.
func (s *Service) GeneratePlan(ctx context.Context, userID string) (*DietPlan, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "diet.GeneratePlan")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := s.now()
	logger := s.logger.With().Str("user_id", userID).Logger()

	plan, attempts, err := s.generate(ctx, userID, logger)

	outcome := "success"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.RecordGeneration(ctx, outcome, attempts, s.now().Sub(start))

	switch {
	case err == nil:
		logger.Info().
			Str("plan_id", plan.ID).
			Int("attempts", attempts).
			Int("meals", len(plan.Meals)).
			Float64("protein", plan.TotalProtein).
			Msg("diet plan generated")
		return plan, nil
	case errors.Is(err, ErrCanceled):
		logger.Debug().Msg("diet plan generation canceled")
	default:
		logger.Error().Err(err).Int("attempts", attempts).Msg("diet plan generation failed")
	}
	return nil, err
}

func (s *Service) generate(ctx context.Context, userID string, logger zerolog.Logger) (*DietPlan, int, error) {
	profile, err := s.profiles.DietProfile(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("load profile: %w", err)
	}

	targets, err := s.calculator.Calculate(profile.Biometrics)
	if err != nil {
		return nil, 0, err
	}

	stats, err := s.statsSnapshot(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	input := PromptInput{
		Targets:       targets,
		Biometrics:    profile.Biometrics,
		DietType:      profile.DietType,
		Budget:        profile.Budget,
		Allergies:     profile.Allergies,
		FoodScores:    profile.FoodScores,
		FavoriteMeals: profile.FavoriteMeals,
		MaxFavorites:  s.maxFavorites,
	}

	var (
		result  *ValidationResult
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= s.maxAttempts; attempt++ {
		if err := contextError(ctx); err != nil {
			return nil, attempt - 1, err
		}

		candidate, err := s.requester.RequestPlan(ctx, BuildPrompt(input))
		if err == nil {
			result, err = s.validator.Validate(candidate, targets, profile.DietType)
		}
		if err == nil {
			break
		}
		if !retryableGeneration(err) {
			return nil, attempt, err
		}

		lastErr = err
		input.Feedback = err.Error()
		logger.Warn().Err(err).Int("attempt", attempt).Msg("generation attempt rejected")
	}
	if result == nil {
		return nil, s.maxAttempts, lastErr
	}
	s.metrics.RecordCorrections(ctx, result.Corrections)

	plan := &DietPlan{
		ID:         s.newID(),
		UserID:     userID,
		CreatedAt:  s.now(),
		DietType:   profile.DietType,
		Targets:    targets,
		Meals:      result.Meals,
		DailyStats: stats,
	}
	for i := range plan.Meals {
		plan.Meals[i].ID = s.newID()
	}

	if s.enricher != nil {
		s.enricher.EnrichMeals(ctx, plan.Meals)
	}
	plan.Recompute()

	if err := s.persister.SavePlan(ctx, plan); err != nil {
		return nil, attempt, err
	}
	return plan, attempt, nil
}

// statsSnapshot reads the stored stats before generation starts. The
// persister merges this snapshot with whatever is stored at save time.
func (s *Service) statsSnapshot(ctx context.Context, userID string) (DailyStats, error) {
	doc, err := s.repo.GetDocument(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		if err := s.repo.CreateDocument(ctx, userID); err != nil {
			return DailyStats{}, fmt.Errorf("create user document: %w", err)
		}
		return DailyStats{}, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return DailyStats{}, ErrCanceled
		}
		return DailyStats{}, fmt.Errorf("read user document: %w", err)
	}
	return doc.DailyStats.Clone(), nil
}

// contextError maps a finished context to the pipeline's error taxonomy.
func contextError(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return ErrTimeout
	default:
		return ErrCanceled
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrIncompleteProfile):
		return "incomplete_profile"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrStructuralValidation), errors.Is(err, ErrDietIncompatible), errors.Is(err, ErrProteinTarget):
		return "invalid"
	case errors.Is(err, ErrPersistenceConflict):
		return "persistence"
	default:
		return "error"
	}
}
