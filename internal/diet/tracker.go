package diet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	dateLayout = "2006-01-02"

	// Completed-meal dates older than this are pruned on daily reset.
	completedMealRetention = 7 * 24 * time.Hour
)

// ErrInvalidAmount is returned for non-positive water amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// TrackerConfig holds tracker settings.
type TrackerConfig struct {
	Persister  *Persister
	Repository Repository

	// Location defines the user's local midnight. Default: time.Local
	Location *time.Location

	// Now overrides the clock in tests.
	Now func() time.Time

	Logger zerolog.Logger
}

// Tracker records consumption against the current plan.
type Tracker struct {
	persister *Persister
	repo      Repository
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

// NewTracker creates a tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Tracker{
		persister: cfg.Persister,
		repo:      cfg.Repository,
		loc:       cfg.Location,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
}

// Today returns the local date key used in CompletedMeals.
func (t *Tracker) Today() string {
	return t.now().In(t.loc).Format(dateLayout)
}

// CompleteMeal adds the meal's macros to today's totals. Completing the same
// meal twice on one day has no further effect.
func (t *Tracker) CompleteMeal(ctx context.Context, userID, mealID string) (*DailyStats, error) {
	today := t.Today()
	var stats DailyStats

	err := t.persister.Update(ctx, userID, func(doc *UserDocument) error {
		if doc.CurrentPlan == nil {
			return ErrPlanNotFound
		}
		meal, ok := doc.CurrentPlan.Meal(mealID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMealNotFound, mealID)
		}

		t.rollover(&doc.DailyStats)
		if !doc.DailyStats.IsCompleted(today, mealID) {
			s := &doc.DailyStats
			s.CaloriesConsumed = round1(s.CaloriesConsumed + meal.Calories)
			s.ProteinConsumed = round1(s.ProteinConsumed + meal.Protein)
			s.CarbsConsumed = round1(s.CarbsConsumed + meal.Carbs)
			s.FatConsumed = round1(s.FatConsumed + meal.Fat)
			if s.CompletedMeals == nil {
				s.CompletedMeals = make(map[string][]string)
			}
			s.CompletedMeals[today] = append(s.CompletedMeals[today], mealID)
		}
		doc.DailyStats.LastUpdated = t.now()
		doc.CurrentPlan.DailyStats = doc.DailyStats.Clone()
		stats = doc.DailyStats.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info().Str("user_id", userID).Str("meal_id", mealID).Msg("meal completed")
	return &stats, nil
}

// LogWater adds ml to today's water intake.
func (t *Tracker) LogWater(ctx context.Context, userID string, ml float64) (*DailyStats, error) {
	if ml <= 0 {
		return nil, ErrInvalidAmount
	}

	var stats DailyStats
	err := t.persister.Update(ctx, userID, func(doc *UserDocument) error {
		t.rollover(&doc.DailyStats)
		doc.DailyStats.WaterIntakeML += ml
		doc.DailyStats.LastUpdated = t.now()
		if doc.CurrentPlan != nil {
			doc.CurrentPlan.DailyStats = doc.DailyStats.Clone()
		}
		stats = doc.DailyStats.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ResetDaily zeroes today's totals if they belong to an earlier day and
// prunes old completed-meal entries. It reports whether anything changed.
func (t *Tracker) ResetDaily(ctx context.Context, userID string) (bool, error) {
	var changed bool
	err := t.persister.Update(ctx, userID, func(doc *UserDocument) error {
		changed = t.rollover(&doc.DailyStats)
		if changed {
			doc.DailyStats.LastUpdated = t.now()
			if doc.CurrentPlan != nil {
				doc.CurrentPlan.DailyStats = doc.DailyStats.Clone()
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		t.logger.Info().Str("user_id", userID).Msg("daily stats reset")
	}
	return changed, nil
}

// Stats returns the stored daily stats, as they would look after a reset.
func (t *Tracker) Stats(ctx context.Context, userID string) (*DailyStats, error) {
	doc, err := t.repo.GetDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	t.rollover(&doc.DailyStats)
	return &doc.DailyStats, nil
}

// CurrentPlan returns the user's current plan.
func (t *Tracker) CurrentPlan(ctx context.Context, userID string) (*DietPlan, error) {
	doc, err := t.repo.GetDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	if doc.CurrentPlan == nil {
		return nil, ErrPlanNotFound
	}
	return doc.CurrentPlan, nil
}

// History lists superseded plans, newest first.
func (t *Tracker) History(ctx context.Context, userID string, limit int) ([]*DietPlan, error) {
	return t.repo.ListHistory(ctx, userID, limit)
}

// rollover resets consumed totals when the stats were last touched before
// today's local midnight.
func (t *Tracker) rollover(s *DailyStats) bool {
	now := t.now().In(t.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, t.loc)

	changed := false
	if !s.LastUpdated.IsZero() && s.LastUpdated.Before(midnight) {
		s.CaloriesConsumed = 0
		s.ProteinConsumed = 0
		s.CarbsConsumed = 0
		s.FatConsumed = 0
		s.WaterIntakeML = 0
		changed = true
	}

	cutoff := midnight.Add(-completedMealRetention).Format(dateLayout)
	for date := range s.CompletedMeals {
		if date < cutoff {
			delete(s.CompletedMeals, date)
			changed = true
		}
	}
	return changed
}
