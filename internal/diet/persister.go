package diet

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// PersisterConfig holds persister settings.
type PersisterConfig struct {
	Repository Repository

	// MaxRetries bounds retries of transient store failures. Default: 3
	MaxRetries uint64

	// InitialInterval is the first retry delay. Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps the retry delay. Default: 2s
	MaxInterval time.Duration

	// Location defines the local day used when merging stats. Default: time.Local
	Location *time.Location

	Logger zerolog.Logger
}

// Persister stores finalized plans without losing concurrent stats updates.
type Persister struct {
	repo            Repository
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	loc             *time.Location
	logger          zerolog.Logger
}

// NewPersister creates a persister.
func NewPersister(cfg PersisterConfig) *Persister {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &Persister{
		repo:            cfg.Repository,
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
		loc:             cfg.Location,
		logger:          cfg.Logger,
	}
}

// SavePlan makes plan the user's current plan. The previous plan moves to
// history and the stored daily stats are merged with the plan's stats.
// On success plan.DailyStats holds the merged stats.
func (p *Persister) SavePlan(ctx context.Context, plan *DietPlan) error {
	var merged DailyStats
	err := p.Update(ctx, plan.UserID, func(doc *UserDocument) error {
		if doc.CurrentPlan != nil && doc.CurrentPlan.ID != plan.ID {
			doc.Archived = append(doc.Archived, doc.CurrentPlan)
		}

		merged = MergeDailyStats(doc.DailyStats, plan.DailyStats, p.loc)
		next := copyPlan(plan)
		next.DailyStats = merged.Clone()

		doc.CurrentPlan = next
		doc.DailyStats = merged.Clone()
		return nil
	})
	if err != nil {
		return err
	}

	plan.DailyStats = merged
	return nil
}

// Update runs fn through Repository.UpdateDocument, retrying transient
// store failures with exponential backoff. Errors returned by fn are not
// retried.
func (p *Persister) Update(ctx context.Context, userID string, fn func(doc *UserDocument) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialInterval
	bo.MaxInterval = p.maxInterval
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := p.repo.UpdateDocument(ctx, userID, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTransientStore) && ctx.Err() == nil {
			p.logger.Warn().
				Err(err).
				Str("user_id", userID).
				Int("attempt", attempt).
				Msg("transient store failure, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, p.maxRetries), ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return ErrCanceled
	case errors.Is(err, ErrUserNotFound):
		return &PersistenceConflictError{UserID: userID, Err: err}
	case errors.Is(err, ErrTransientStore):
		p.logger.Error().Err(err).Str("user_id", userID).Int("attempts", attempt).Msg("store unavailable")
		return &PersistenceConflictError{UserID: userID, Err: err}
	default:
		return err
	}
}
