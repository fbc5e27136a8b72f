// Package matrix lets the assistant be driven from Matrix chat rooms.
//
// The client joins the configured rooms and hands every text message to a
// MessageHandler. Bridge is the handler the assistant installs: it keeps one
// continuous conversation per room and replies in-thread.
package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds the Matrix connection parameters.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// MessageHandler is called for each incoming message event.
type MessageHandler func(ctx context.Context, evt *event.Event)

// Client is a minimal sync-and-reply Matrix client.
type Client struct {
	mxc      *mautrix.Client
	cfg      Config
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Matrix client but does not start syncing yet.
func New(cfg Config) (*Client, error) {
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	return &Client{mxc: mxc, cfg: cfg, stopCh: make(chan struct{})}, nil
}

// Start joins rooms and begins the sync loop, calling handler for every
// message not sent by this account. The sync loop reconnects with
// exponential back-off on errors.
func (c *Client) Start(ctx context.Context, rooms []string, handler MessageHandler) error {
	slog.Warn("Matrix E2EE is not enabled; messages are in plaintext")

	syncer, ok := c.mxc.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("matrix: unexpected syncer type %T", c.mxc.Syncer)
	}
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		if evt.Sender == id.UserID(c.cfg.UserID) {
			return
		}
		handler(ctx, evt)
	})

	for _, room := range rooms {
		c.join(ctx, id.RoomID(room))
	}

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.stopCh:
		}
	}()

	go func() {
		const backoffMax = 5 * time.Minute
		backoff := 2 * time.Second
		for {
			if err := c.mxc.Sync(); err != nil {
				if c.stopped() {
					return
				}
				slog.Error("matrix sync error; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, backoffMax)
				continue
			}
			if c.stopped() {
				return
			}
			backoff = 2 * time.Second
		}
	}()
	return nil
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Stop halts the sync loop. It is safe to call more than once.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mxc.StopSync()
	})
}

// SendReply sends a plain-text reply referencing the given event.
func (c *Client) SendReply(ctx context.Context, roomID, replyToEventID, text string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}
	if replyToEventID != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(replyToEventID)},
		}
	}
	_, err := c.mxc.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
	return err
}

// join joins a room, ignoring "already joined" errors.
func (c *Client) join(ctx context.Context, roomID id.RoomID) {
	if _, err := c.mxc.JoinRoomByID(ctx, roomID); err != nil {
		// mautrix returns an error even when already a member
		slog.Info("join room result", "room", roomID, "err", err)
	}
}

// UserID returns the account's Matrix user ID.
func (c *Client) UserID() string { return c.cfg.UserID }
