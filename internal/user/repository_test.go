package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/nutriplan/internal/user"
)

func TestInMemoryRepository_CopiesOnReadAndWrite(t *testing.T) {
	repo := user.NewInMemoryRepository(nil)
	ctx := context.Background()

	u := user.DefaultUser("usr_1", "pt-BR", time.Now())
	u.Profile.FoodScores["tofu"] = 2
	require.NoError(t, repo.Create(ctx, u))

	u.Profile.FoodScores["tofu"] = 5
	got, err := repo.Get(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Profile.FoodScores["tofu"])

	got.Profile.FoodScores["tofu"] = -1
	again, err := repo.Get(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Profile.FoodScores["tofu"])
}

func TestInMemoryRepository_Errors(t *testing.T) {
	repo := user.NewInMemoryRepository(nil)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrUserNotFound)

	assert.ErrorIs(t, repo.Update(ctx, user.DefaultUser("missing", "", time.Now())), user.ErrUserNotFound)

	require.NoError(t, repo.Create(ctx, user.DefaultUser("usr_1", "", time.Now())))
	assert.ErrorIs(t, repo.Create(ctx, user.DefaultUser("usr_1", "", time.Now())), user.ErrUserExists)

	require.NoError(t, repo.Delete(ctx, "usr_1"))
	_, err = repo.Get(ctx, "usr_1")
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}
