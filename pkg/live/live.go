// Package live streams server-pushed user changes into the store over a
// WebSocket. Changes made by other console sessions appear without a manual
// refresh; records with a pending optimistic mutation are never clobbered.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/userdeck/userdeck/pkg/store"
	"github.com/userdeck/userdeck/pkg/user"
)

// Event types pushed by the user service.
const (
	EventSnapshot = "snapshot"      // full collection replace
	EventUpserted = "user.upserted" // created or updated
	EventDeleted  = "user.deleted"
)

// Event is one frame on the live feed.
type Event struct {
	Type  string        `json:"type"`
	User  *user.Record  `json:"user,omitempty"`
	ID    string        `json:"id,omitempty"`
	Users []user.Record `json:"users,omitempty"`
}

// Feed maintains the WebSocket connection to the user service and applies
// incoming events to the store. It reconnects with exponential backoff.
type Feed struct {
	url    string
	store  *store.Store
	log    *slog.Logger
	dialer *websocket.Dialer

	readTimeout  time.Duration
	pingInterval time.Duration
	backoffMin   time.Duration
	backoffMax   time.Duration
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the feed's logger.
func WithLogger(log *slog.Logger) Option {
	return func(f *Feed) { f.log = log }
}

// WithDialer replaces the default WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(f *Feed) { f.dialer = d }
}

// WithBackoff bounds the reconnect delay.
func WithBackoff(min, max time.Duration) Option {
	return func(f *Feed) {
		f.backoffMin = min
		f.backoffMax = max
	}
}

// New creates a feed for the given ws:// or wss:// URL.
func New(url string, st *store.Store, opts ...Option) *Feed {
	f := &Feed{
		url:          url,
		store:        st,
		log:          slog.Default(),
		dialer:       websocket.DefaultDialer,
		readTimeout:  90 * time.Second,
		pingInterval: 30 * time.Second,
		backoffMin:   time.Second,
		backoffMax:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run connects and processes events until ctx is cancelled. Connection
// errors trigger a reconnect; Run only returns ctx.Err().
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.backoffMin
	for {
		err := f.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn("live feed disconnected", "error", err, "retry_in", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > f.backoffMax {
			backoff = f.backoffMax
		}
	}
}

// connectOnce dials, then reads events until the connection fails or ctx is
// cancelled.
func (f *Feed) connectOnce(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()
	f.log.Info("live feed connected", "url", f.url)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(ctx, conn, done)

	for {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				return fmt.Errorf("read: %w", err)
			}
			return err
		}

		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			f.log.Error("live event decode error", "error", err)
			continue
		}
		f.apply(ev)
	}
}

// pingLoop keeps the connection alive. Closing done or cancelling ctx stops
// it; a write failure tears down the connection so ReadMessage unblocks.
func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

func (f *Feed) apply(ev Event) {
	switch ev.Type {
	case EventSnapshot:
		f.store.ReplaceAll(ev.Users)
		f.log.Debug("live snapshot applied", "count", len(ev.Users))

	case EventUpserted:
		if ev.User == nil {
			f.log.Warn("upsert event without user")
			return
		}
		f.store.ApplyRemote(*ev.User)

	case EventDeleted:
		if ev.ID == "" {
			f.log.Warn("delete event without id")
			return
		}
		f.store.RemoveRemote(ev.ID)

	default:
		f.log.Warn("unknown live event type", "type", ev.Type)
	}
}
