package diet_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/nutrition"
)

type fakeProfiles struct {
	profile *diet.Profile
	err     error
}

func (f *fakeProfiles) DietProfile(_ context.Context, userID string) (*diet.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	p.UserID = userID
	return &p, nil
}

type requesterResponse struct {
	plan *diet.CandidatePlan
	err  error
}

// scriptedRequester returns queued responses in order and repeats the last.
type scriptedRequester struct {
	mu        sync.Mutex
	responses []requesterResponse
	prompts   []diet.Prompt
	onRequest func()
}

func (r *scriptedRequester) RequestPlan(ctx context.Context, prompt diet.Prompt) (*diet.CandidatePlan, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	idx := min(len(r.prompts), len(r.responses)) - 1
	resp := r.responses[idx]
	hook := r.onRequest
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return nil, diet.ErrCanceled
	}
	return resp.plan, resp.err
}

func (r *scriptedRequester) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

type fakeEnricher struct {
	called bool
}

func (e *fakeEnricher) EnrichMeals(_ context.Context, meals []diet.Meal) {
	e.called = true
	for i := range meals {
		for j := range meals[i].Foods {
			meals[i].Foods[j].ImageURL = "https://img.example/" + meals[i].Foods[j].Name
		}
	}
}

// profileFor120g yields a protein target of about 120 g on a regular day.
func profileFor120g() *diet.Profile {
	return &diet.Profile{
		Locale: "pt-BR",
		Biometrics: nutrition.Biometrics{
			WeightKg: 50, HeightCm: 160, Age: 30, Gender: nutrition.GenderFemale,
			Activity: nutrition.ActivityLight, Goal: nutrition.GoalMaintenance,
		},
		DietType: diet.DietStandard,
	}
}

type serviceFixture struct {
	service   *diet.Service
	repo      *diet.InMemoryRepository
	requester *scriptedRequester
	enricher  *fakeEnricher
	targets   nutrition.MacroTargets
}

func newServiceFixture(t *testing.T, profile *diet.Profile, responses ...requesterResponse) *serviceFixture {
	t.Helper()

	tuesday := time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC)
	calc := nutrition.NewCalculator(nutrition.WithClock(func() time.Time { return tuesday }))
	repo := diet.NewInMemoryRepository()
	requester := &scriptedRequester{responses: responses}
	enricher := &fakeEnricher{}

	ids := 0
	svc := diet.NewService(diet.ServiceConfig{
		Profiles:   &fakeProfiles{profile: profile},
		Calculator: calc,
		Requester:  requester,
		Persister:  newPersister(repo),
		Repository: repo,
		Enricher:   enricher,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return tuesday },
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})

	targets, err := calc.Calculate(profile.Biometrics)
	require.NoError(t, err)

	return &serviceFixture{service: svc, repo: repo, requester: requester, enricher: enricher, targets: targets}
}

func TestService_GeneratePlan(t *testing.T) {
	f := newServiceFixture(t, profileFor120g(), requesterResponse{plan: balancedPlan()})
	require.Less(t, f.targets.ProteinG, diet.PreWorkoutProteinThreshold)
	require.InDelta(t, 120, f.targets.ProteinG, 10)

	plan, err := f.service.GeneratePlan(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", plan.UserID)
	assert.Equal(t, f.targets, plan.Targets)
	require.Len(t, plan.Meals, 4)
	assert.NotEmpty(t, plan.ID)
	for _, m := range plan.Meals {
		assert.NotEmpty(t, m.ID)
	}
	assert.InDelta(t, 120, plan.TotalProtein, 0.1)
	assert.True(t, f.enricher.called)
	assert.Equal(t, "https://img.example/Banana", plan.Meals[2].Foods[0].ImageURL)

	doc, err := f.repo.GetDocument(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, doc.CurrentPlan)
	assert.Equal(t, plan.ID, doc.CurrentPlan.ID)
	assert.Equal(t, 1, f.requester.calls())
}

func TestService_RetriesMalformedAndInvalidResponses(t *testing.T) {
	short := balancedPlan()
	short.Meals = short.Meals[:3]

	f := newServiceFixture(t, profileFor120g(),
		requesterResponse{err: &diet.MalformedResponseError{Reason: "no JSON object in response"}},
		requesterResponse{plan: short},
		requesterResponse{plan: balancedPlan()},
	)

	plan, err := f.service.GeneratePlan(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, plan.Meals, 4)
	assert.Equal(t, 3, f.requester.calls())

	// The rejection reason is fed back into the next prompt.
	assert.Contains(t, f.requester.prompts[2].User, "expected 4 meals, got 3")
}

func TestService_ExhaustedAttemptsKeepPreviousPlan(t *testing.T) {
	vegan := profileFor120g()
	vegan.DietType = diet.DietVegan

	f := newServiceFixture(t, vegan, requesterResponse{plan: veganPlan()})
	first, err := f.service.GeneratePlan(context.Background(), "user-1")
	require.NoError(t, err)

	f.requester.responses = []requesterResponse{{plan: balancedPlan()}}
	f.requester.prompts = nil

	_, err = f.service.GeneratePlan(context.Background(), "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, diet.ErrDietIncompatible)
	assert.Equal(t, diet.DefaultMaxAttempts, f.requester.calls())

	doc, err := f.repo.GetDocument(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, doc.CurrentPlan.ID)
}

func TestService_TerminalErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "rate limited", err: &diet.RateLimitError{RetryAfter: 30 * time.Second}, want: diet.ErrRateLimited},
		{name: "unavailable", err: fmt.Errorf("status 503: %w", diet.ErrServiceUnavailable), want: diet.ErrServiceUnavailable},
		{name: "timeout", err: diet.ErrTimeout, want: diet.ErrTimeout},
		{name: "canceled", err: diet.ErrCanceled, want: diet.ErrCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, profileFor120g(), requesterResponse{err: tt.err})

			_, err := f.service.GeneratePlan(context.Background(), "user-1")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, f.requester.calls())
		})
	}
}

func TestService_CancellationMidFlight(t *testing.T) {
	f := newServiceFixture(t, profileFor120g(), requesterResponse{plan: balancedPlan()})

	ctx, cancel := context.WithCancel(context.Background())
	f.requester.onRequest = cancel

	_, err := f.service.GeneratePlan(ctx, "user-1")
	assert.ErrorIs(t, err, diet.ErrCanceled)
	assert.Equal(t, 1, f.requester.calls())
	assert.Empty(t, diet.UserMessage(err, "pt-BR"))

	doc, err := f.repo.GetDocument(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, doc.CurrentPlan)
}

func TestService_IncompleteProfile(t *testing.T) {
	profile := profileFor120g()
	profile.Biometrics.Age = 0

	repo := diet.NewInMemoryRepository()
	requester := &scriptedRequester{}
	svc := diet.NewService(diet.ServiceConfig{
		Profiles:   &fakeProfiles{profile: profile},
		Requester:  requester,
		Persister:  newPersister(repo),
		Repository: repo,
		Logger:     zerolog.Nop(),
	})

	_, err := svc.GeneratePlan(context.Background(), "user-1")
	assert.ErrorIs(t, err, diet.ErrIncompleteProfile)
	assert.Equal(t, 0, requester.calls())
}

func TestService_PreservesConcurrentMealCompletion(t *testing.T) {
	f := newServiceFixture(t, profileFor120g(), requesterResponse{plan: balancedPlan()})
	ctx := context.Background()

	first, err := f.service.GeneratePlan(ctx, "user-1")
	require.NoError(t, err)
	lunch := first.Meals[1]

	tracker := diet.NewTracker(diet.TrackerConfig{
		Persister:  newPersister(f.repo),
		Repository: f.repo,
		Location:   time.UTC,
		Now:        func() time.Time { return time.Date(2026, 10, 13, 13, 0, 0, 0, time.UTC) },
	})

	// The user completes lunch while the next plan is being generated.
	var once sync.Once
	f.requester.onRequest = func() {
		once.Do(func() {
			_, err := tracker.CompleteMeal(ctx, "user-1", lunch.ID)
			require.NoError(t, err)
		})
	}

	second, err := f.service.GeneratePlan(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, lunch.Calories, second.DailyStats.CaloriesConsumed)
	assert.Equal(t, []string{lunch.ID}, second.DailyStats.CompletedMeals["2026-10-13"])

	history, err := f.repo.ListHistory(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)
}

func TestService_DailyResetDuringGenerationSticks(t *testing.T) {
	f := newServiceFixture(t, profileFor120g(), requesterResponse{plan: balancedPlan()})
	ctx := context.Background()

	lateMonday := time.Date(2026, 10, 12, 23, 50, 0, 0, time.UTC)
	require.NoError(t, f.repo.CreateDocument(ctx, "user-1"))
	require.NoError(t, f.repo.UpdateDocument(ctx, "user-1", func(doc *diet.UserDocument) error {
		doc.DailyStats = diet.DailyStats{
			CaloriesConsumed: 1800,
			ProteinConsumed:  110,
			WaterIntakeML:    2000,
			LastUpdated:      lateMonday,
		}
		return nil
	}))

	tracker := diet.NewTracker(diet.TrackerConfig{
		Persister:  newPersister(f.repo),
		Repository: f.repo,
		Location:   time.UTC,
		Now:        func() time.Time { return time.Date(2026, 10, 13, 0, 1, 0, 0, time.UTC) },
	})

	// Midnight passes while the model is answering.
	var once sync.Once
	f.requester.onRequest = func() {
		once.Do(func() {
			changed, err := tracker.ResetDaily(ctx, "user-1")
			require.NoError(t, err)
			assert.True(t, changed)
		})
	}

	plan, err := f.service.GeneratePlan(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, plan.DailyStats.CaloriesConsumed)

	stats, err := tracker.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, stats.CaloriesConsumed)
	assert.Zero(t, stats.ProteinConsumed)
	assert.Zero(t, stats.WaterIntakeML)
}

func TestService_ProfileErrors(t *testing.T) {
	repo := diet.NewInMemoryRepository()
	boom := errors.New("profile store down")
	svc := diet.NewService(diet.ServiceConfig{
		Profiles:   &fakeProfiles{err: boom},
		Requester:  &scriptedRequester{},
		Persister:  newPersister(repo),
		Repository: repo,
	})

	_, err := svc.GeneratePlan(context.Background(), "user-1")
	assert.ErrorIs(t, err, boom)
}
