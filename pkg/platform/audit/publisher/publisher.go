// Package publisher seals audit records into the hash chain and persists
// them off the request path.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "medfayda/pkg/domain-errors"
	audit "medfayda/pkg/platform/audit"
	"medfayda/pkg/platform/audit/metrics"
)

// Publisher captures audit records. It is append-only: a single writer seals
// each record against the previous hash before it reaches the store, so the
// chain order is the persist order.
type Publisher struct {
	store   audit.Store
	sinks   []audit.Sink
	records chan audit.Record
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.Metrics
	async   bool

	// mu guards the queue against Close; chainMu serializes sealing so
	// synchronous callers share one chain head.
	mu       sync.Mutex
	chainMu  sync.Mutex
	lastHash string
	loaded   bool

	closeOnce sync.Once
	closed    chan struct{}
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Records are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.records = make(chan audit.Record, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithPublisherMetrics enables queue and persistence metrics.
func WithPublisherMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithSink forwards every persisted record to sink. Sink failures never
// affect the stored chain.
func WithSink(sink audit.Sink) PublisherOption {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

func NewPublisher(store audit.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, closed: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processRecords()
	}
	return p
}

// processRecords runs in a goroutine and persists records from the channel.
func (p *Publisher) processRecords() {
	defer p.wg.Done()
	for record := range p.records {
		if p.metrics != nil {
			p.metrics.DecQueueDepth()
		}
		p.persist(context.Background(), record)
		select {
		case <-p.closed:
			if p.metrics != nil {
				p.metrics.IncDrainedOnClose()
			}
		default:
		}
	}
}

// Close stops accepting records and waits for queued ones to be persisted.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		close(p.closed)
		if p.async {
			close(p.records)
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// Emit queues r. It never blocks the caller: when the buffer is full or the
// publisher is closed the record is dropped and counted. In synchronous mode
// the record is persisted before Emit returns, but persistence failures are
// still only logged.
func (p *Publisher) Emit(ctx context.Context, r audit.Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if r.ID == "" {
		r.ID = audit.NewID(r.Timestamp)
	}
	if !p.async {
		select {
		case <-p.closed:
			return p.drop(ctx, r, "audit publisher closed")
		default:
		}
		p.persist(ctx, r)
		return nil
	}

	// Holding mu keeps Close from closing the channel mid-send.
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.closed:
		return p.drop(ctx, r, "audit publisher closed")
	default:
	}
	select {
	case p.records <- r:
		if p.metrics != nil {
			p.metrics.IncRecordsEnqueued()
			p.metrics.IncQueueDepth()
		}
		return nil
	default:
		return p.drop(ctx, r, "audit buffer full")
	}
}

func (p *Publisher) drop(ctx context.Context, r audit.Record, reason string) error {
	if p.metrics != nil {
		p.metrics.IncRecordsDropped()
	}
	if p.logger != nil {
		p.logger.WarnContext(ctx, "audit record dropped",
			"reason", reason,
			"action", r.Action,
			"actor_id", r.ActorID,
			"request_id", r.RequestID,
		)
	}
	return dErrors.New(dErrors.CodeUnavailable, reason)
}

// persist seals and stores r. Failures are logged and counted, never returned.
func (p *Publisher) persist(ctx context.Context, r audit.Record) {
	start := time.Now()

	p.chainMu.Lock()
	err := p.appendLocked(ctx, &r)
	p.chainMu.Unlock()

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "failed to persist audit record",
				"error", err,
				"action", r.Action,
				"actor_id", r.ActorID,
				"request_id", r.RequestID,
			)
		}
		return
	}
	if p.metrics != nil {
		p.metrics.IncRecordsWritten(r.Action.String(), r.Success)
	}

	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, r); err != nil {
			if p.metrics != nil {
				p.metrics.IncSinkFailures()
			}
			if p.logger != nil {
				p.logger.WarnContext(ctx, "audit sink rejected record",
					"error", err,
					"record_id", r.ID,
				)
			}
		}
	}
}

func (p *Publisher) appendLocked(ctx context.Context, r *audit.Record) error {
	if !p.loaded {
		head, err := p.store.LastHash(ctx)
		if err != nil {
			return err
		}
		p.lastHash = head
		p.loaded = true
	}
	if err := audit.Seal(r, p.lastHash); err != nil {
		return err
	}
	if err := p.store.Append(ctx, *r); err != nil {
		// The store may hold a newer head than we think; reload next time.
		p.loaded = false
		return err
	}
	p.lastHash = r.Hash
	return nil
}
