// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"github.com/perch-chat/perch/lib/clock"
	"github.com/perch-chat/perch/lib/ref"
	"github.com/perch-chat/perch/messaging"
	"github.com/perch-chat/perch/roomstate"
	"github.com/perch-chat/perch/stream"
)

const (
	// syncHoldMS is how long the server holds an idle /sync request.
	syncHoldMS = 30_000
	// retryHoldMS replaces syncHoldMS after a failure so retries
	// resolve quickly.
	retryHoldMS = 1_000
	// maxConsecutiveFailures ends the run when exceeded.
	maxConsecutiveFailures = 5
	// retryDelay spaces consecutive retry attempts.
	retryDelay = time.Second
	// backfillLimit is the page size for backward pagination.
	backfillLimit = 30
	// typingTimeoutMS bounds how long the server advertises the local
	// user as typing.
	typingTimeoutMS = 4_000
)

// NotificationSink receives the protocol events extracted from sync
// responses. *stream.Ingestor implements it.
type NotificationSink interface {
	HandleNotification(stream.Notification)
}

// session is the slice of messaging.Session the engine uses, split out
// so tests can substitute a scripted fake.
type session interface {
	UserID() ref.UserID
	Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error)
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, string, error)
	RoomMessages(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error)
	SetFullyRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error
	SendTyping(ctx context.Context, roomID ref.RoomID, typing bool, timeoutMS int64) error
	CloseIdleConnections()
}

// Config holds configuration for creating a MatrixClient.
type Config struct {
	// Homeserver is the base URL of the Matrix homeserver.
	Homeserver string
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
	// Clock drives retry delays. If nil, the real clock.
	Clock clock.Clock
	// HTTPClient is used for all requests. If nil, http.DefaultClient.
	HTTPClient *http.Client
}

// MatrixClient is the synchronization engine. Login must succeed
// before any other method is used.
type MatrixClient struct {
	matrix *messaging.Client
	logger *slog.Logger
	clock  clock.Clock

	session session
	store   *roomstate.Store

	mu           sync.Mutex
	nextBatch    string
	scrollTokens map[ref.RoomID]string
}

// New creates a MatrixClient. No network traffic happens until Login.
func New(config Config) (*MatrixClient, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	matrix, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: config.Homeserver,
		HTTPClient:    config.HTTPClient,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	return &MatrixClient{
		matrix:       matrix,
		logger:       logger,
		clock:        clk,
		scrollTokens: make(map[ref.RoomID]string),
	}, nil
}

// Login authenticates with the homeserver and prepares room state
// tracking for the logged-in user.
func (c *MatrixClient) Login(ctx context.Context, username, password string) error {
	authenticated, err := c.matrix.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	c.session = authenticated
	c.store = roomstate.NewStore(authenticated.UserID())
	return nil
}

// UserID returns the logged-in user's ID.
func (c *MatrixClient) UserID() ref.UserID {
	return c.session.UserID()
}

// Store returns the room-state registry. Read-only for callers; the
// engine is the only writer.
func (c *MatrixClient) Store() *roomstate.Store {
	return c.store
}

// Run drives the /sync long-poll loop until ctx is cancelled or the
// homeserver fails persistently. The first iteration is the initial
// sync (no since token); every response is dispatched into sink in
// server order.
func (c *MatrixClient) Run(ctx context.Context, sink NotificationSink) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		holdMS := syncHoldMS
		if failures > 0 {
			holdMS = retryHoldMS
		}

		c.mu.Lock()
		since := c.nextBatch
		c.mu.Unlock()

		response, err := c.session.Sync(ctx, messaging.SyncOptions{
			Since:      since,
			Timeout:    holdMS,
			SetTimeout: true,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			failures++
			if failures > maxConsecutiveFailures {
				return fmt.Errorf("client: sync failed %d times in a row: %w", failures, err)
			}
			c.logger.Warn("sync failed, retrying",
				"attempt", failures,
				"error", err,
			)
			// Drop pooled connections so the retry does not reuse a
			// connection the failure may have poisoned.
			c.session.CloseIdleConnections()
			c.clock.Sleep(retryDelay)
			continue
		}
		failures = 0

		c.dispatch(response, sink)

		c.mu.Lock()
		c.nextBatch = response.NextBatch
		c.mu.Unlock()
	}
}

// SendText sends a plain-text message.
func (c *MatrixClient) SendText(ctx context.Context, roomID ref.RoomID, body string) (ref.EventID, string, error) {
	return c.session.SendMessage(ctx, roomID, messaging.NewTextMessage(body))
}

// SendMarkdown renders body as Markdown and sends it with an HTML
// rendition alongside the raw text fallback.
func (c *MatrixClient) SendMarkdown(ctx context.Context, roomID ref.RoomID, body string) (ref.EventID, string, error) {
	var html bytes.Buffer
	if err := goldmark.Convert([]byte(body), &html); err != nil {
		// Markdown that fails to convert still goes out as plain text.
		c.logger.Warn("markdown conversion failed, sending plain", "error", err)
		return c.SendText(ctx, roomID, body)
	}
	return c.session.SendMessage(ctx, roomID, messaging.NewFormattedMessage(body, html.String()))
}

// Backfill fetches one page of older messages for roomID and replays
// them through sink as ordinary notifications, so the translation path
// is identical to live events. Subsequent calls continue from where
// the previous page ended.
func (c *MatrixClient) Backfill(ctx context.Context, roomID ref.RoomID, sink NotificationSink) error {
	c.mu.Lock()
	from := c.scrollTokens[roomID]
	c.mu.Unlock()

	if from == "" {
		return fmt.Errorf("client: no scroll token for %s yet; wait for first sync", roomID)
	}

	response, err := c.session.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
		From:      from,
		Direction: "b",
		Limit:     backfillLimit,
	})
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}

	c.mu.Lock()
	c.scrollTokens[roomID] = response.End
	c.mu.Unlock()

	room := c.store.Ensure(roomID)
	scope := stream.Scope{Context: stream.ContextJoined, Room: room}
	for _, event := range response.Chunk {
		c.dispatchTimelineEvent(scope, room, event, sink)
	}
	return nil
}

// MarkRead moves the read marker for roomID to eventID.
func (c *MatrixClient) MarkRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	if err := c.session.SetFullyRead(ctx, roomID, eventID); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}

// SetTyping reports the local user's typing state for roomID.
func (c *MatrixClient) SetTyping(ctx context.Context, roomID ref.RoomID, typing bool) error {
	if err := c.session.SendTyping(ctx, roomID, typing, typingTimeoutMS); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}
