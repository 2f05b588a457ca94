// Package worker runs NutriPlan background jobs delivered over Pub/Sub.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutriplan/nutriplan/internal/diet"
)

// Job types.
const (
	JobGeneratePlan = "generate_plan"
	JobDailyReset   = "daily_reset"
)

// JobMessage is the payload of a job message.
type JobMessage struct {
	JobID   string `json:"job_id,omitempty"`
	JobType string `json:"job_type"`
	UserID  string `json:"user_id"`
}

// Outcome tells the subscriber what to do with a delivered message.
type Outcome int

const (
	// Ack removes the message from the subscription.
	Ack Outcome = iota
	// Nack asks for redelivery.
	Nack
)

func (o Outcome) String() string {
	if o == Nack {
		return "nack"
	}
	return "ack"
}

// PlanGenerator runs the generation pipeline for a user.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, userID string) (*diet.DietPlan, error)
}

// DailyResetter rolls daily stats over at local midnight.
type DailyResetter interface {
	ResetDaily(ctx context.Context, userID string) (bool, error)
}

// ProcessorConfig holds Processor dependencies.
type ProcessorConfig struct {
	Generator PlanGenerator
	Resetter  DailyResetter
	// JobTimeout bounds a single job. Zero means no extra bound.
	JobTimeout time.Duration
	Logger     zerolog.Logger
}

// Processor decodes job messages and runs them.
type Processor struct {
	generator  PlanGenerator
	resetter   DailyResetter
	jobTimeout time.Duration
	logger     zerolog.Logger
	metrics    *JobMetrics
}

// NewProcessor creates a Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		generator:  cfg.Generator,
		resetter:   cfg.Resetter,
		jobTimeout: cfg.JobTimeout,
		logger:     cfg.Logger,
		metrics:    &JobMetrics{},
	}
}

// Process runs the job in data and reports whether the message should be
// acknowledged. Payloads that can never succeed are acknowledged so they
// are not redelivered forever.
func (p *Processor) Process(ctx context.Context, data []byte) Outcome {
	start := time.Now()

	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Error().Err(err).Msg("dropping unparseable job message")
		p.metrics.record("", Ack, 0)
		return Ack
	}

	logger := p.logger.With().
		Str("job_id", msg.JobID).
		Str("job_type", msg.JobType).
		Str("user_id", msg.UserID).
		Logger()

	if strings.TrimSpace(msg.UserID) == "" && msg.JobType != "" {
		logger.Error().Msg("dropping job without user_id")
		p.metrics.record(msg.JobType, Ack, 0)
		return Ack
	}

	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	var err error
	switch msg.JobType {
	case JobGeneratePlan:
		var plan *diet.DietPlan
		plan, err = p.generator.GeneratePlan(ctx, msg.UserID)
		if err == nil {
			logger = logger.With().Str("plan_id", plan.ID).Logger()
		}
	case JobDailyReset:
		var changed bool
		changed, err = p.resetter.ResetDaily(ctx, msg.UserID)
		if err == nil {
			logger = logger.With().Bool("changed", changed).Logger()
		}
	default:
		logger.Warn().Msg("unknown job type")
		p.metrics.record(msg.JobType, Ack, 0)
		return Ack
	}

	duration := time.Since(start)
	if err != nil {
		outcome := classify(err)
		logger.Error().
			Err(err).
			Stringer("outcome", outcome).
			Dur("duration", duration).
			Msg("job failed")
		p.metrics.record(msg.JobType, outcome, duration)
		return outcome
	}

	logger.Info().Dur("duration", duration).Msg("job completed successfully")
	p.metrics.record(msg.JobType, Ack, duration)
	return Ack
}

// Metrics returns a snapshot of the job counters.
func (p *Processor) Metrics() JobMetricsSnapshot {
	return p.metrics.snapshot()
}

// classify acks failures that a retry cannot fix and nacks the rest.
func classify(err error) Outcome {
	permanent := []error{
		diet.ErrIncompleteProfile,
		diet.ErrUserNotFound,
		diet.ErrMalformedResponse,
		diet.ErrStructuralValidation,
		diet.ErrDietIncompatible,
		diet.ErrProteinTarget,
	}
	for _, target := range permanent {
		if errors.Is(err, target) {
			return Ack
		}
	}
	return Nack
}

// JobMetrics tracks processed jobs.
type JobMetrics struct {
	mu sync.Mutex

	processed    int64
	acked        int64
	nacked       int64
	byType       map[string]int64
	lastJobAt    time.Time
	lastDuration time.Duration
}

// JobMetricsSnapshot is a point-in-time copy of JobMetrics.
type JobMetricsSnapshot struct {
	Processed    int64            `json:"processed"`
	Acked        int64            `json:"acked"`
	Nacked       int64            `json:"nacked"`
	ByType       map[string]int64 `json:"byType"`
	LastJobAt    time.Time        `json:"lastJobAt"`
	LastDuration time.Duration    `json:"lastDuration"`
}

func (m *JobMetrics) record(jobType string, outcome Outcome, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processed++
	if outcome == Ack {
		m.acked++
	} else {
		m.nacked++
	}
	if jobType != "" {
		if m.byType == nil {
			m.byType = make(map[string]int64)
		}
		m.byType[jobType]++
	}
	m.lastJobAt = time.Now()
	m.lastDuration = d
}

func (m *JobMetrics) snapshot() JobMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType := make(map[string]int64, len(m.byType))
	for k, v := range m.byType {
		byType[k] = v
	}
	return JobMetricsSnapshot{
		Processed:    m.processed,
		Acked:        m.acked,
		Nacked:       m.nacked,
		ByType:       byType,
		LastJobAt:    m.lastJobAt,
		LastDuration: m.lastDuration,
	}
}
