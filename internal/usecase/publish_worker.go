package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/config"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/jetstream"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/utils"
)

// publishTaskData holds one ledger event queued for publishing.
type publishTaskData struct {
	Ctx   context.Context // Context derived for the task, NOT the original request context
	Event model.LedgerEvent
}

// IEventPublisher defines the interface for the ledger event publisher pool.
// Publishing is fire-and-forget from the caller's perspective; failures are
// logged and counted, never propagated back into the request path.
type IEventPublisher interface {
	Publish(ctx context.Context, event model.LedgerEvent)
	Stop()
}

// EventPublisher fans ledger events out to JetStream through a bounded worker
// pool so slow brokers cannot stall webhook or send handling.
type EventPublisher struct {
	pool          *ants.PoolWithFunc
	js            jetstream.ClientInterface
	subjectPrefix string
	cfg           config.PublisherWorkerPoolConfig
	baseLogger    *zap.Logger
}

// Ensure EventPublisher implements IEventPublisher
var _ IEventPublisher = (*EventPublisher)(nil)

// NewEventPublisher creates and initializes a new publisher worker pool.
func NewEventPublisher(
	cfg config.PublisherWorkerPoolConfig,
	subjectPrefix string,
	js jetstream.ClientInterface,
	baseLogger *zap.Logger,
) (*EventPublisher, error) {
	publisher := &EventPublisher{
		js:            js,
		subjectPrefix: subjectPrefix,
		cfg:           cfg,
		baseLogger:    baseLogger.Named("event_publisher"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(publishTaskData)
		if !ok {
			publisher.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		publisher.processPublishTask(taskData)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false), // Blocking if queue is full, bounded by MaxBlockingTasks
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			publisher.baseLogger.Error("Panic recovered in event publisher", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher pool: %w", err)
	}
	publisher.pool = pool
	publisher.baseLogger.Info("Event publisher pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
		zap.Duration("max_block_time", cfg.MaxBlock),
	)
	return publisher, nil
}

// Publish submits one ledger event to the worker pool.
func (p *EventPublisher) Publish(ctx context.Context, event model.LedgerEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = utils.Now()
	}
	observer.IncPublisherTasksSubmitted(event.OwnerID)
	observer.SetPublisherQueueLength(p.pool.Waiting()) // Approximate queue length

	err := p.pool.Invoke(publishTaskData{Ctx: ctx, Event: event})
	if err != nil {
		p.baseLogger.Warn("Failed to submit publish task to pool",
			zap.String("event", event.Event),
			zap.String("owner_id", event.OwnerID),
			zap.Error(err),
		)
		observer.IncPublisherPublishError(event.OwnerID)
		if errors.Is(err, ants.ErrPoolOverload) {
			// Events are advisory; dropping under overload beats blocking the
			// request path.
			return
		}
	}
}

// processPublishTask contains the actual logic executed by a worker goroutine.
func (p *EventPublisher) processPublishTask(taskData publishTaskData) {
	log := logger.FromContextOr(taskData.Ctx, p.baseLogger).With(
		zap.String("event", taskData.Event.Event),
		zap.String("owner_id", taskData.Event.OwnerID),
	)

	subject := fmt.Sprintf("%s.%s.%s", p.subjectPrefix, taskData.Event.OwnerID, taskData.Event.Event)
	data := utils.MustMarshalJSON(taskData.Event)

	start := time.Now()
	if err := p.js.Publish(subject, data, nil); err != nil {
		observer.IncPublisherPublishError(taskData.Event.OwnerID)
		log.Error("Failed to publish ledger event",
			zap.String("subject", subject),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	log.Debug("Published ledger event",
		zap.String("subject", subject),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop gracefully shuts down the publisher pool.
func (p *EventPublisher) Stop() {
	if p.pool != nil {
		p.baseLogger.Info("Releasing event publisher pool")
		start := time.Now()
		p.pool.Release()
		p.baseLogger.Info("Event publisher pool released", zap.Duration("duration", time.Since(start)))
	}
}

// NoopPublisher satisfies IEventPublisher when lifecycle events are disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that discards all events.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish discards the event.
func (p *NoopPublisher) Publish(ctx context.Context, event model.LedgerEvent) {}

// Stop is a no-op.
func (p *NoopPublisher) Stop() {}
