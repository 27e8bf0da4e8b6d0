// Package event implements the in-process publish/subscribe bus and the
// static event catalog. Dispatch rides on a Watermill gochannel transport:
// a single subscription drains the shared topic and invokes the registered
// handlers sequentially, so both per-subscriber publish order and the
// relative dispatch order across subscribers are deterministic, and
// subscriber failures never reach the publisher.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/pkg/utilities"
)

const eventsTopic = "app.events"

// SubscribeAll matches every event name.
const SubscribeAll = "*"

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_core_events_published_total",
		Help: "Events published on the in-process bus, by event name.",
	}, []string{"event_name"})
	handlerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_core_event_handler_failures_total",
		Help: "Captured subscriber errors and panics, by handler name.",
	}, []string{"handler"})
)

// Event is the immutable record published on the bus.
type Event struct {
	ID        string         `json:"id"`
	EventName string         `json:"event_name"`
	Version   string         `json:"version"`
	Source    string         `json:"source"`
	Severity  string         `json:"severity"`
	Payload   map[string]any `json:"payload,omitempty"`
	ErrorData string         `json:"error_data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Params describes an event to create and publish.
type Params struct {
	EventName string
	Source    string
	Severity  string
	Payload   map[string]any
	Err       error
}

// HandlerFunc consumes one event. Returned errors are logged and swallowed.
type HandlerFunc func(ctx context.Context, ev Event) error

// registration is one subscriber entry; order of appearance is dispatch order.
type registration struct {
	name      string
	eventName string
	fn        HandlerFunc
}

// Bus is the in-process dispatcher. Subscribers must be registered before
// Start; Publish may be called from any goroutine afterwards.
type Bus struct {
	pubSub *gochannel.GoChannel
	router *message.Router
	logger *zap.SugaredLogger

	mu       sync.Mutex
	handlers []registration
	started  bool
}

// NewBus constructs a Bus over a gochannel transport.
func NewBus(logger *zap.SugaredLogger) (*Bus, error) {
	wmLogger := newWatermillZapLogger(logger)
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("event router: %w", err)
	}
	return &Bus{pubSub: pubSub, router: router, logger: logger}, nil
}

// Subscribe registers fn for events named eventName (or SubscribeAll).
// handlerName must be unique per bus. Registration order defines relative
// dispatch order: handlers run one after another for every delivered event.
func (b *Bus) Subscribe(handlerName, eventName string, fn HandlerFunc) error {
	if handlerName == "" {
		return errors.New("handler name required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.New("bus already started")
	}
	for _, reg := range b.handlers {
		if reg.name == handlerName {
			return fmt.Errorf("handler %q already registered", handlerName)
		}
	}
	b.handlers = append(b.handlers, registration{name: handlerName, eventName: eventName, fn: fn})
	return nil
}

// dispatch decodes one message and walks the handler list in registration
// order. Filtering happens per handler so a wildcard subscriber still sees
// names a filtered one skips.
func (b *Bus) dispatch(msg *message.Message) error {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.logger.Warnw("undecodable event payload", "err", err)
		return nil
	}
	for _, reg := range b.handlers {
		if reg.eventName != SubscribeAll && ev.EventName != reg.eventName {
			continue
		}
		b.invoke(msg.Context(), reg.name, reg.fn, ev)
	}
	return nil
}

// invoke runs one handler, capturing both errors and panics so failures stay
// inside the subscriber.
func (b *Bus) invoke(ctx context.Context, handlerName string, fn HandlerFunc, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			handlerFailuresTotal.WithLabelValues(handlerName).Inc()
			b.logger.Errorw("event handler panicked", "handler", handlerName, "event", ev.EventName, "panic", r)
		}
	}()
	if err := fn(ctx, ev); err != nil {
		handlerFailuresTotal.WithLabelValues(handlerName).Inc()
		b.logger.Warnw("event handler failed", "handler", handlerName, "event", ev.EventName, "err", err)
	}
}

// Start runs the dispatch loop in the background and returns once the router
// is ready to deliver.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.New("bus already started")
	}
	b.started = true
	b.router.AddNoPublisherHandler("dispatch", eventsTopic, b.pubSub, b.dispatch)
	b.mu.Unlock()

	go func() {
		if err := b.router.Run(ctx); err != nil {
			b.logger.Errorw("event router stopped", "err", err)
		}
	}()
	select {
	case <-b.router.Running():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the router and the underlying transport.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubSub.Close()
}

// CreateAndPublishEvent stamps an ID, version and timestamp on the described
// event and publishes it. Unknown event names are still published with the
// default schema version; malformed names are logged at warn level first.
func (b *Bus) CreateAndPublishEvent(ctx context.Context, p Params) (Event, error) {
	if p.EventName == "" {
		return Event{}, errors.New("event name required")
	}
	if !IsValidEventType(p.EventName) {
		b.logger.Warnw("publishing unregistered event type", "event", p.EventName)
	}
	severity := p.Severity
	if severity == "" {
		severity = "info"
	}
	ev := Event{
		ID:        utilities.NewULID(),
		EventName: p.EventName,
		Version:   SchemaVersion(p.EventName),
		Source:    p.Source,
		Severity:  severity,
		Payload:   p.Payload,
		Timestamp: time.Now().UTC(),
	}
	if p.Err != nil {
		ev.ErrorData = p.Err.Error()
		if p.Severity == "" {
			ev.Severity = "error"
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.SetContext(ctx)
	if err := b.pubSub.Publish(eventsTopic, msg); err != nil {
		return Event{}, fmt.Errorf("publish %s: %w", ev.EventName, err)
	}
	publishedTotal.WithLabelValues(ev.EventName).Inc()
	return ev, nil
}

// watermillZapLogger adapts a zap sugared logger to watermill.LoggerAdapter.
type watermillZapLogger struct {
	s *zap.SugaredLogger
}

func newWatermillZapLogger(s *zap.SugaredLogger) watermill.LoggerAdapter {
	return watermillZapLogger{s: s}
}

func (l watermillZapLogger) kv(fields watermill.LogFields) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func (l watermillZapLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.s.Errorw(msg, append([]any{"err", err}, l.kv(fields)...)...)
}

func (l watermillZapLogger) Info(msg string, fields watermill.LogFields) {
	l.s.Infow(msg, l.kv(fields)...)
}

func (l watermillZapLogger) Debug(msg string, fields watermill.LogFields) {
	l.s.Debugw(msg, l.kv(fields)...)
}

func (l watermillZapLogger) Trace(msg string, fields watermill.LogFields) {
	l.s.Debugw(msg, l.kv(fields)...)
}

func (l watermillZapLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillZapLogger{s: l.s.With(l.kv(fields)...)}
}
