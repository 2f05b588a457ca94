package diet_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/nutriplan/internal/diet"
)

// flakyRepository fails the first failures calls to UpdateDocument with err.
type flakyRepository struct {
	*diet.InMemoryRepository

	mu        sync.Mutex
	failures  int
	err       error
	callCount int
}

func (r *flakyRepository) UpdateDocument(ctx context.Context, userID string, fn func(*diet.UserDocument) error) error {
	r.mu.Lock()
	r.callCount++
	fail := r.callCount <= r.failures
	r.mu.Unlock()

	if fail {
		return r.err
	}
	return r.InMemoryRepository.UpdateDocument(ctx, userID, fn)
}

func (r *flakyRepository) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callCount
}

func newPersister(repo diet.Repository) *diet.Persister {
	return diet.NewPersister(diet.PersisterConfig{
		Repository:      repo,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Location:        time.UTC,
		Logger:          zerolog.Nop(),
	})
}

func storedPlan(id string) *diet.DietPlan {
	return &diet.DietPlan{
		ID:     id,
		UserID: "user-1",
		Meals: []diet.Meal{
			{ID: id + "-m1", Name: "Breakfast", Time: "07:00", Calories: 400, Protein: 30},
		},
	}
}

func TestPersister_SavePlanArchivesPreviousAndMergesStats(t *testing.T) {
	ctx := context.Background()
	repo := diet.NewInMemoryRepository()
	require.NoError(t, repo.CreateDocument(ctx, "user-1"))

	persister := newPersister(repo)
	require.NoError(t, persister.SavePlan(ctx, storedPlan("plan-1")))

	// A meal completion lands while the next plan is being generated.
	require.NoError(t, repo.UpdateDocument(ctx, "user-1", func(doc *diet.UserDocument) error {
		doc.DailyStats.CaloriesConsumed = 400
		doc.DailyStats.CompletedMeals = map[string][]string{"2026-10-15": {"plan-1-m1"}}
		return nil
	}))

	next := storedPlan("plan-2")
	next.DailyStats = diet.DailyStats{WaterIntakeML: 250}
	require.NoError(t, persister.SavePlan(ctx, next))

	doc, err := repo.GetDocument(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, doc.CurrentPlan)
	assert.Equal(t, "plan-2", doc.CurrentPlan.ID)
	assert.Equal(t, 400.0, doc.DailyStats.CaloriesConsumed)
	assert.Equal(t, 250.0, doc.DailyStats.WaterIntakeML)
	assert.Equal(t, []string{"plan-1-m1"}, doc.DailyStats.CompletedMeals["2026-10-15"])
	assert.Equal(t, doc.DailyStats, doc.CurrentPlan.DailyStats)
	assert.Equal(t, 400.0, next.DailyStats.CaloriesConsumed)

	history, err := repo.ListHistory(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "plan-1", history[0].ID)
}

func TestPersister_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepository{
		InMemoryRepository: diet.NewInMemoryRepository(),
		failures:           2,
		err:                diet.ErrTransientStore,
	}
	require.NoError(t, repo.CreateDocument(ctx, "user-1"))

	require.NoError(t, newPersister(repo).SavePlan(ctx, storedPlan("plan-1")))
	assert.Equal(t, 3, repo.calls())
}

func TestPersister_GivesUpAfterThreeRetries(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepository{
		InMemoryRepository: diet.NewInMemoryRepository(),
		failures:           100,
		err:                diet.ErrTransientStore,
	}
	require.NoError(t, repo.CreateDocument(ctx, "user-1"))

	err := newPersister(repo).SavePlan(ctx, storedPlan("plan-1"))
	assert.ErrorIs(t, err, diet.ErrPersistenceConflict)
	assert.Equal(t, 4, repo.calls())
}

func TestPersister_MissingDocumentIsTerminal(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepository{InMemoryRepository: diet.NewInMemoryRepository()}

	err := newPersister(repo).SavePlan(ctx, storedPlan("plan-1"))
	require.Error(t, err)

	var conflict *diet.PersistenceConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, diet.ErrUserNotFound)
	assert.Equal(t, 1, repo.calls())
}

func TestPersister_UpdateReturnsCallbackErrorUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepository{InMemoryRepository: diet.NewInMemoryRepository()}
	require.NoError(t, repo.CreateDocument(ctx, "user-1"))

	boom := errors.New("boom")
	err := newPersister(repo).Update(ctx, "user-1", func(*diet.UserDocument) error { return boom })
	assert.Same(t, boom, err)
	assert.Equal(t, 1, repo.calls())
}

func TestPersister_CanceledContext(t *testing.T) {
	repo := diet.NewInMemoryRepository()
	require.NoError(t, repo.CreateDocument(context.Background(), "user-1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newPersister(repo).SavePlan(ctx, storedPlan("plan-1"))
	assert.ErrorIs(t, err, diet.ErrCanceled)
}
