package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"github.com/post-kserks/messenger-client/models"
)

// ReconnectDelay is the fixed pause before re-dialing a dropped connection.
const ReconnectDelay = 5 * time.Second

const eventBufferSize = 256

// ErrNotConnected indicates there is no live connection to write to.
var ErrNotConnected = errors.New("push: not connected")

// reactionFrame is the outbound reaction toggle.
type reactionFrame struct {
	Type      string           `json:"type"`
	MessageID models.MessageID `json:"message_id"`
	ChatID    int              `json:"chat_id"`
	Emoji     string           `json:"emoji"`
}

// Channel is a self-healing websocket subscription. Events arrive on
// Events() in server order per connection; a dropped connection is re-dialed
// after ReconnectDelay until Close is called. Events published by the server
// while disconnected are not replayed; callers refresh via REST after a gap.
type Channel struct {
	url    string
	token  string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	events chan Event
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
}

// Connect dials the push endpoint and starts the read loop. The returned
// Channel keeps itself connected until Close.
func Connect(ctx context.Context, url, token string) (*Channel, error) {
	ch := &Channel{
		url:    url,
		token:  token,
		dialer: websocket.DefaultDialer,
		events: make(chan Event, eventBufferSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	if err := ch.dial(ctx); err != nil {
		return nil, err
	}
	go ch.run()
	return ch, nil
}

// Events delivers inbound push events. The channel is closed on Close.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Errors reports connection drops. Delivery is best-effort; the channel
// reconnects regardless of whether the error is consumed.
func (c *Channel) Errors() <-chan error {
	return c.errs
}

// SendReaction toggles the user's emoji on a message. An empty emoji clears
// the user's reaction.
func (c *Channel) SendReaction(messageID models.MessageID, chatID int, emoji string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame := reactionFrame{Type: EventReaction, MessageID: messageID, ChatID: chatID, Emoji: emoji}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send reaction: %w", err)
	}
	return nil
}

// Close tears down the connection and closes the event channel.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	})
	return nil
}

func (c *Channel) dial(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial push endpoint: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// run reads frames until the connection drops, then re-dials after the
// fixed delay. It exits only when Close fires.
func (c *Channel) run() {
	defer close(c.events)

	for {
		c.readLoop()

		select {
		case <-c.done:
			return
		default:
		}

		c.reportError(fmt.Errorf("push connection lost, reconnecting in %s", ReconnectDelay))

		select {
		case <-c.done:
			return
		case <-time.After(ReconnectDelay):
		}

		if err := c.dial(context.Background()); err != nil {
			log.Printf("push reconnect failed: %v", err)
			continue
		}
	}
}

func (c *Channel) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			conn.Close()
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("push: dropping malformed frame: %v", err)
			continue
		}
		if event.Type == "" {
			continue
		}

		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) reportError(err error) {
	select {
	case c.errs <- err:
	default:
	}
}
