package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PubSubHandler receives job messages from a subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	processor        *Processor
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	// MaxOutstanding caps concurrent jobs. Generation is slow and
	// rate limited upstream, so keep it small.
	MaxOutstanding int
	Processor      *Processor
	Logger         zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	maxOutstanding := cfg.MaxOutstanding
	if maxOutstanding <= 0 {
		maxOutstanding = 4
	}
	subscriber.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		processor:        cfg.Processor,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is canceled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	h.logger.Debug().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Msg("received pubsub message")

	if h.processor.Process(ctx, msg.Data) == Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}

// Sender delivers an encoded message and returns its server ID.
type Sender interface {
	Send(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// Publisher enqueues jobs for the worker.
type Publisher struct {
	sender Sender
	newID  func() string
	logger zerolog.Logger
}

// NewPublisher creates a Publisher over sender.
func NewPublisher(sender Sender, logger zerolog.Logger) *Publisher {
	return &Publisher{
		sender: sender,
		newID:  uuid.NewString,
		logger: logger,
	}
}

// EnqueueGeneration queues plan generation for userID and returns the job ID.
func (p *Publisher) EnqueueGeneration(ctx context.Context, userID string) (string, error) {
	return p.enqueue(ctx, JobGeneratePlan, userID)
}

// EnqueueDailyReset queues a daily stats rollover for userID.
func (p *Publisher) EnqueueDailyReset(ctx context.Context, userID string) (string, error) {
	return p.enqueue(ctx, JobDailyReset, userID)
}

func (p *Publisher) enqueue(ctx context.Context, jobType, userID string) (string, error) {
	msg := JobMessage{JobID: p.newID(), JobType: jobType, UserID: userID}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encoding job: %w", err)
	}

	serverID, err := p.sender.Send(ctx, data, map[string]string{"job_type": jobType})
	if err != nil {
		return "", fmt.Errorf("publishing %s job: %w", jobType, err)
	}

	p.logger.Debug().
		Str("job_id", msg.JobID).
		Str("job_type", jobType).
		Str("user_id", userID).
		Str("message_id", serverID).
		Msg("job enqueued")
	return msg.JobID, nil
}

// TopicSender publishes to a Pub/Sub topic.
type TopicSender struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// NewTopicSender opens a publisher for topic.
func NewTopicSender(ctx context.Context, projectID, topic string) (*TopicSender, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &TopicSender{client: client, publisher: client.Publisher(topic)}, nil
}

// Send publishes data and waits for the server ID.
func (s *TopicSender) Send(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	result := s.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
	return result.Get(ctx)
}

// Close flushes pending messages and closes the client.
func (s *TopicSender) Close() error {
	s.publisher.Stop()
	return s.client.Close()
}
