package stream

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/supplychain/notifyconsole/internal/notify"
)

const (
	DefaultTopic          = "/topic/notifications"
	DefaultReconnectDelay = 5 * time.Second
)

type Logger interface {
	Printf(format string, args ...any)
}

type Normalizer interface {
	Normalize(raw notify.RawEvent) notify.NormalizedEvent
}

// Observer receives connector counters.
type Observer interface {
	ObserveMessage()
	ObserveDecodeFailure()
	ObserveTransportError()
	ObserveReconnect()
	ObserveDrop()
}

// Event is one decoded message with its canonical form.
type Event struct {
	Raw        notify.RawEvent
	Normalized notify.NormalizedEvent
	ReceivedAt time.Time
}

type ConnectorOptions struct {
	Transport       Transport
	Topic           string
	ReconnectDelay  time.Duration
	ReconnectJitter float64
	// HistoryLimit caps the raw history kept for Recent. Zero keeps
	// everything received during the connector's lifetime.
	HistoryLimit int
	Normalizer   Normalizer
	Logger       Logger
	Observer     Observer
	Now          func() time.Time
}

// Connector owns one topic subscription for the life of the process and
// publishes every decoded message to its subscribers. Delivery is
// at-most-once: messages published while disconnected are not replayed.
type Connector struct {
	transport  Transport
	topic      string
	delay      time.Duration
	jitter     float64
	limit      int
	normalizer Normalizer
	logger     Logger
	observer   Observer
	now        func() time.Time

	mu          sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	done        chan struct{}
	active      Subscription
	history     []notify.RawEvent
	subscribers map[int]chan Event
	nextSubID   int
}

func NewConnector(opts ConnectorOptions) (*Connector, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	topic := strings.TrimSpace(opts.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = notify.NewNormalizer(notify.NormalizerOptions{})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limit := opts.HistoryLimit
	if limit < 0 {
		limit = 0
	}
	return &Connector{
		transport:   opts.Transport,
		topic:       topic,
		delay:       delay,
		jitter:      ClampJitterRatio(opts.ReconnectJitter),
		limit:       limit,
		normalizer:  normalizer,
		logger:      opts.Logger,
		observer:    opts.Observer,
		now:         now,
		subscribers: map[int]chan Event{},
	}, nil
}

func (c *Connector) Topic() string {
	return c.topic
}

// Start launches the subscription loop. The loop runs until ctx is
// cancelled or Stop is called.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.started = true
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
	return nil
}

// Stop closes the transport and every subscriber channel. No event is
// delivered once Stop returns. Stop is safe to call more than once.
func (c *Connector) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel, done, active := c.cancel, c.done, c.active
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if active != nil {
		if err := active.Close(); err != nil {
			c.logf("close %s subscription: %v", c.topic, err)
		}
	}
	if done != nil {
		<-done
	}
}

// Subscribe registers a consumer. Events that do not fit in the buffer are
// dropped for that consumer only. The returned func unregisters it.
func (c *Connector) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if existing, ok := c.subscribers[id]; ok {
				close(existing)
				delete(c.subscribers, id)
			}
		})
	}
}

// Recent returns the raw events received so far, newest first.
func (c *Connector) Recent() []notify.RawEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.RawEvent, len(c.history))
	for i, raw := range c.history {
		out[len(c.history)-1-i] = raw
	}
	return out
}

func (c *Connector) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		if ctx.Err() != nil {
			return
		}
		sub, err := c.transport.Subscribe(ctx, c.topic)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.observeTransportError()
			c.logf("subscribe %s failed: %v", c.topic, err)
		} else if c.attach(sub) {
			err = c.consume(ctx, sub)
			c.detach()
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				c.observeTransportError()
			}
			c.logf("stream %s disconnected: %v", c.topic, errOrEOF(err))
		} else {
			_ = sub.Close()
			return
		}

		delay := JitteredDelay(c.delay, c.jitter, rng.Float64())
		c.logf("reconnecting to %s in %s", c.topic, delay)
		if err := waitWithContext(ctx, delay); err != nil {
			return
		}
		if c.observer != nil {
			c.observer.ObserveReconnect()
		}
	}
}

func (c *Connector) attach(sub Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.active = sub
	return true
}

func (c *Connector) detach() {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

func (c *Connector) consume(ctx context.Context, sub Subscription) error {
	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return sub.Err()
			}
			c.handle(msg)
		}
	}
}

func (c *Connector) handle(msg Message) {
	raw, err := notify.DecodeRawEvent(msg.Body)
	if err != nil {
		if c.observer != nil {
			c.observer.ObserveDecodeFailure()
		}
		c.logf("dropping undecodable message on %s: %v", c.topic, err)
		return
	}
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = c.now()
	}
	event := Event{Raw: raw, Normalized: c.normalizer.Normalize(raw), ReceivedAt: receivedAt}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.history = append(c.history, raw)
	if c.limit > 0 && len(c.history) > c.limit {
		c.history = append(c.history[:0:0], c.history[len(c.history)-c.limit:]...)
	}
	if c.observer != nil {
		c.observer.ObserveMessage()
	}
	for _, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
			if c.observer != nil {
				c.observer.ObserveDrop()
			}
		}
	}
}

func (c *Connector) observeTransportError() {
	if c.observer != nil {
		c.observer.ObserveTransportError()
	}
}

func (c *Connector) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}

func errOrEOF(err error) any {
	if err == nil {
		return "end of stream"
	}
	return err
}
