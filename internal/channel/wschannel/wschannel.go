// Package wschannel implements the channel contract over a single websocket
// connection to the authority. Events travel as JSON envelopes of the form
// {"event": name, "data": payload}.
package wschannel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quizbattle/client/internal/channel"
)

var ErrClosed = errors.New("channel closed")

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Options struct {
	// PingInterval between protocol-level pings. Zero disables pings.
	PingInterval time.Duration
	WriteTimeout time.Duration
	// Clock drives the ping schedule; tests inject a fake.
	Clock clockwork.Clock
	// OnDisconnect fires once when the read loop ends for any reason.
	OnDisconnect func(err error)
}

func (o *Options) withDefaults() {
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// Conn is a live connection. Inbound envelopes are dispatched to handlers
// sequentially on the read loop goroutine, which gives the session core the
// one-event-at-a-time delivery it assumes.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	clock        clockwork.Clock
	onDisconnect func(error)

	writeMu sync.Mutex
	closed  bool

	handlerMu sync.RWMutex
	handlers  map[string]channel.Handler

	done chan struct{}
}

var _ channel.Channel = (*Conn)(nil)

// Dial connects to the authority at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	opts.withDefaults()
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		ws:           ws,
		writeTimeout: opts.WriteTimeout,
		clock:        opts.Clock,
		onDisconnect: opts.OnDisconnect,
		handlers:     make(map[string]channel.Handler),
		done:         make(chan struct{}),
	}
	go c.readLoop()
	if opts.PingInterval > 0 {
		go c.pingLoop(opts.PingInterval)
	}
	return c, nil
}

func (c *Conn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.ws.SetWriteDeadline(c.clock.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) On(event string, handler channel.Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[event] = handler
}

func (c *Conn) Off(event string) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	delete(c.handlers, event)
}

func (c *Conn) Close() error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	c.writeMu.Unlock()
	close(c.done)
	return c.ws.Close()
}

func (c *Conn) readLoop() {
	var cause error
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			cause = err
			break
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.handlerMu.RLock()
		handler := c.handlers[env.Event]
		c.handlerMu.RUnlock()
		if handler == nil {
			continue
		}
		handler(env.Data)
	}

	wasClosed := c.isClosed()
	_ = c.Close()
	if c.onDisconnect != nil {
		if wasClosed {
			cause = nil
		}
		c.onDisconnect(cause)
	}
}

func (c *Conn) pingLoop(interval time.Duration) {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
			c.writeMu.Lock()
			if c.closed {
				c.writeMu.Unlock()
				return
			}
			deadline := c.clock.Now().Add(c.writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn().Err(err).Msg("ping failed")
			}
			c.writeMu.Unlock()
		}
	}
}

func (c *Conn) isClosed() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closed
}
