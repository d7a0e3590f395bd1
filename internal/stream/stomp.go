package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3"
	"nhooyr.io/websocket"
)

const (
	DefaultStompURL = "ws://localhost:8084/ws-notifications/websocket"

	defaultStompReadLimit  = 1 << 20
	defaultStompBuffer     = 64
	defaultDialTimeout     = 10 * time.Second
	stompDisconnectTimeout = 2 * time.Second
)

var stompSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// STOMPTransport speaks STOMP over a plain websocket, the framing used by
// Spring's message broker relay endpoints.
type STOMPTransport struct {
	URL         string
	Host        string
	Login       string
	Passcode    string
	Header      http.Header
	HeartBeat   time.Duration
	ReadLimit   int64
	Buffer      int
	DialTimeout time.Duration
}

func (t *STOMPTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	url := strings.TrimSpace(t.URL)
	if url == "" {
		url = DefaultStompURL
	}
	dialTimeout := t.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	ws, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		Subprotocols: stompSubprotocols,
		HTTPHeader:   t.Header,
	})
	cancelDial()
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	readLimit := t.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultStompReadLimit
	}
	ws.SetReadLimit(readLimit)

	// The websocket must outlive the dial context; Close cancels it.
	connCtx, cancelConn := context.WithCancel(context.Background())
	netConn := websocket.NetConn(connCtx, ws, websocket.MessageText)

	conn, err := stomp.Connect(netConn, t.connectOptions()...)
	if err != nil {
		_ = netConn.Close()
		cancelConn()
		return nil, fmt.Errorf("stomp connect %s: %w", url, err)
	}
	sub, err := conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		_ = conn.MustDisconnect()
		cancelConn()
		return nil, fmt.Errorf("stomp subscribe %s: %w", topic, err)
	}

	buffer := t.Buffer
	if buffer <= 0 {
		buffer = defaultStompBuffer
	}
	pipe := newPipeSubscription(buffer, func() error {
		defer cancelConn()
		return disconnectStomp(conn, netConn)
	})
	go pumpStomp(pipe, sub, topic)
	return pipe, nil
}

func (t *STOMPTransport) connectOptions() []func(*stomp.Conn) error {
	host := strings.TrimSpace(t.Host)
	if host == "" {
		host = "/"
	}
	opts := []func(*stomp.Conn) error{stomp.ConnOpt.Host(host)}
	if t.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(t.Login, t.Passcode))
	}
	if t.HeartBeat > 0 {
		opts = append(opts, stomp.ConnOpt.HeartBeat(t.HeartBeat, t.HeartBeat))
	}
	return opts
}

func pumpStomp(pipe *pipeSubscription, sub *stomp.Subscription, topic string) {
	for {
		select {
		case <-pipe.stopped():
			pipe.finish(nil)
			return
		case msg, ok := <-sub.C:
			if !ok {
				pipe.finish(errors.New("stomp subscription closed"))
				return
			}
			if msg.Err != nil {
				pipe.finish(msg.Err)
				return
			}
			if !pipe.deliver(Message{Topic: topic, Body: msg.Body, ReceivedAt: time.Now()}) {
				pipe.finish(nil)
				return
			}
		}
	}
}

// disconnectStomp asks the broker for a clean DISCONNECT and drops the
// socket when the receipt does not arrive in time.
func disconnectStomp(conn *stomp.Conn, socket io.Closer) error {
	done := make(chan error, 1)
	go func() { done <- conn.Disconnect() }()
	select {
	case err := <-done:
		return err
	case <-time.After(stompDisconnectTimeout):
		_ = socket.Close()
		return errors.New("stomp disconnect receipt timed out")
	}
}
