package stream

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("connector already started")
	ErrStopped        = errors.New("connector stopped")
	ErrInvalidInput   = errors.New("invalid input")
)

// Message is one frame body delivered on a topic.
type Message struct {
	Topic      string
	Body       []byte
	ReceivedAt time.Time
}

// Transport opens subscriptions to a named topic. A returned subscription
// delivers messages in transport order until it fails or is closed.
type Transport interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is one live connection. Messages is closed when the
// connection ends; Err then reports why (nil after Close).
type Subscription interface {
	Messages() <-chan Message
	Err() error
	Close() error
}

// pipeSubscription is the shared plumbing for transports that pump a
// blocking reader into a channel.
type pipeSubscription struct {
	messages chan Message
	stop     chan struct{}

	closeOnce  sync.Once
	finishOnce sync.Once
	onClose    func() error

	mu  sync.Mutex
	err error
}

func newPipeSubscription(buffer int, onClose func() error) *pipeSubscription {
	if buffer < 0 {
		buffer = 0
	}
	return &pipeSubscription{
		messages: make(chan Message, buffer),
		stop:     make(chan struct{}),
		onClose:  onClose,
	}
}

func (p *pipeSubscription) Messages() <-chan Message {
	return p.messages
}

func (p *pipeSubscription) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// deliver hands msg to the consumer. It reports false once the
// subscription has been closed.
func (p *pipeSubscription) deliver(msg Message) bool {
	select {
	case <-p.stop:
		return false
	default:
	}
	select {
	case p.messages <- msg:
		return true
	case <-p.stop:
		return false
	}
}

// finish ends the subscription from the producing side. Errors reported
// after Close are discarded.
func (p *pipeSubscription) finish(err error) {
	p.finishOnce.Do(func() {
		p.mu.Lock()
		select {
		case <-p.stop:
		default:
			p.err = err
		}
		p.mu.Unlock()
		close(p.messages)
	})
}

func (p *pipeSubscription) stopped() <-chan struct{} {
	return p.stop
}

func (p *pipeSubscription) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.stop)
		if p.onClose != nil {
			err = p.onClose()
		}
	})
	return err
}
