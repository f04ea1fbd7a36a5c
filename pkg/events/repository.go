package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/beacon/pkg/index"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// EventsKey is the hash holding every canonical event record, keyed by id.
const EventsKey = "analytics_events"

var tracer = otel.Tracer("beacon/events")

// Store is the subset of the Redis adapter the repository needs
type Store interface {
	HSet(ctx context.Context, key, field string, value interface{}, ttl time.Duration) (int64, error)
	HGet(ctx context.Context, key, field string) (string, bool, error)
}

// CounterRecorder applies an accepted event to the aggregate counters
type CounterRecorder interface {
	Record(ctx context.Context, event *Event) error
}

// Repository stores, retrieves and enriches events
type Repository struct {
	store     Store
	index     *index.Index
	counters  CounterRecorder
	retention Retention
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newID     func() string
}

// Option customizes a Repository
type Option func(*Repository)

// WithRetention overrides DefaultRetention
func WithRetention(r Retention) Option {
	return func(repo *Repository) { repo.retention = r }
}

// WithLogger sets the repository logger
func WithLogger(logger *observability.Logger) Option {
	return func(repo *Repository) { repo.logger = logger }
}

// WithMetrics enables event counters
func WithMetrics(metrics *observability.Metrics) Option {
	return func(repo *Repository) { repo.metrics = metrics }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(repo *Repository) { repo.now = now }
}

// WithIDGenerator replaces NewEventID
func WithIDGenerator(newID func() string) Option {
	return func(repo *Repository) { repo.newID = newID }
}

// NewRepository creates a Repository. counters receives every stored event
// after its record and index entries are written.
func NewRepository(store Store, idx *index.Index, counters CounterRecorder, opts ...Option) *Repository {
	r := &Repository{
		store:     store,
		index:     idx,
		counters:  counters,
		retention: DefaultRetention(),
		now:       time.Now,
		newID:     NewEventID,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = observability.NewNopLogger()
	}
	r.logger = r.logger.WithComponent("events")
	return r
}

// NewEventID returns "evt_" followed by 12 hex characters of a random UUID.
// Ids are not checked for collisions.
func NewEventID() string {
	u := uuid.New()
	return fmt.Sprintf("evt_%x", u[:6])
}

// Retention returns the TTLs the repository writes with
func (r *Repository) Retention() Retention {
	return r.retention
}

// StoreEvent validates req and fans the event out to the canonical record,
// the user and session indexes and the aggregate counters, in that order.
//
// The writes are not transactional. A failure at any step aborts the
// remaining steps and leaves the earlier ones in place; the caller sees the
// error and no event id.
func (r *Repository) StoreEvent(ctx context.Context, req StoreRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "events.StoreEvent")
	defer span.End()

	req, err := req.normalize()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	event := &Event{
		EventID:    r.newID(),
		EventType:  req.EventType,
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Timestamp:  NewTimestamp(r.now()),
		Properties: req.Properties,
	}
	span.SetAttributes(
		attribute.String("event.id", event.EventID),
		attribute.String("event.type", event.EventType),
		attribute.String("user.id", event.UserID),
	)

	data, err := json.Marshal(event)
	if err != nil {
		return "", r.fail(span, "encode", &PlatformError{Op: "store_event", Key: event.EventID, Err: err})
	}

	if _, err := r.store.HSet(ctx, EventsKey, event.EventID, string(data), r.retention.Events); err != nil {
		return "", r.fail(span, "record", Wrap("store_event", EventsKey, err))
	}

	userKey := index.UserKey(event.UserID)
	if err := r.index.Add(ctx, userKey, event.EventID, event.Timestamp.Time, r.retention.Sessions); err != nil {
		return "", r.fail(span, "user_index", Wrap("store_event", userKey, err))
	}

	sessionKey := index.SessionKey(event.SessionID)
	if err := r.index.Add(ctx, sessionKey, event.EventID, event.Timestamp.Time, r.retention.Sessions); err != nil {
		return "", r.fail(span, "session_index", Wrap("store_event", sessionKey, err))
	}

	if r.counters != nil {
		if err := r.counters.Record(ctx, event); err != nil {
			return "", r.fail(span, "counters", Wrap("store_event", "counters", err))
		}
	}

	if r.metrics != nil {
		r.metrics.EventsStoredTotal.WithLabelValues(event.EventType).Inc()
	}
	r.logger.WithFields(map[string]interface{}{
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"user_id":    event.UserID,
	}).Info("Event stored")

	span.SetStatus(codes.Ok, "")
	return event.EventID, nil
}

func (r *Repository) fail(span trace.Span, step string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	if r.metrics != nil {
		r.metrics.EventStoreFailures.WithLabelValues(step).Inc()
	}
	r.logger.WithError(err).WithField("step", step).Error("Failed to store event")
	return err
}

// GetEvent returns the canonical record for id. A missing event is
// (nil, false, nil); an undecodable record is a DataCorruptionError wrapped in
// a PlatformError.
func (r *Repository) GetEvent(ctx context.Context, id string) (*Event, bool, error) {
	ctx, span := tracer.Start(ctx, "events.GetEvent", trace.WithAttributes(attribute.String("event.id", id)))
	defer span.End()

	raw, ok, err := r.store.HGet(ctx, EventsKey, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read event")
		r.logger.WithError(err).WithField("event_id", id).Error("Failed to retrieve event")
		return nil, false, Wrap("get_event", id, err)
	}
	if !ok {
		return nil, false, nil
	}

	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		corrupt := &PlatformError{Op: "get_event", Key: id, Err: &DataCorruptionError{EventID: id, Err: err}}
		span.RecordError(corrupt)
		span.SetStatus(codes.Error, "corrupt event record")
		r.logger.WithError(err).WithField("event_id", id).Error("Failed to decode event")
		return nil, false, corrupt
	}
	if event.Properties == nil {
		event.Properties = map[string]interface{}{}
	}

	return &event, true, nil
}

// Exists reports whether a canonical record is present for id
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	_, ok, err := r.store.HGet(ctx, EventsKey, id)
	if err != nil {
		return false, Wrap("event_exists", id, err)
	}
	return ok, nil
}

// EnrichEvent shallow-merges props into the event's properties (incoming
// values win), stamps last_enriched and rewrites the record with the full
// event TTL. It returns false when the event does not exist.
func (r *Repository) EnrichEvent(ctx context.Context, id string, props map[string]interface{}) (bool, error) {
	ctx, span := tracer.Start(ctx, "events.EnrichEvent", trace.WithAttributes(attribute.String("event.id", id)))
	defer span.End()

	event, ok, err := r.GetEvent(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read event")
		return false, err
	}
	if !ok {
		r.logger.WithField("event_id", id).Warn("Event not found for enrichment")
		return false, nil
	}

	for k, v := range props {
		event.Properties[k] = v
	}
	enriched := NewTimestamp(r.now())
	event.LastEnriched = &enriched

	data, err := json.Marshal(event)
	if err != nil {
		return false, &PlatformError{Op: "enrich_event", Key: id, Err: err}
	}

	if _, err := r.store.HSet(ctx, EventsKey, id, string(data), r.retention.Events); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write event")
		r.logger.WithError(err).WithField("event_id", id).Error("Failed to enrich event")
		return false, Wrap("enrich_event", id, err)
	}

	if r.metrics != nil {
		r.metrics.EventsEnrichedTotal.Inc()
	}
	r.logger.WithField("event_id", id).Info("Event enriched")
	return true, nil
}
