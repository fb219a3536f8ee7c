// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/perch-chat/perch/lib/ref"
	"github.com/perch-chat/perch/roomstate"
)

// DefaultCapacity is the bounded channel capacity used when
// IngestorConfig.Capacity is zero. Sized generously relative to
// notification burst rates; a full channel stalls the sync engine
// rather than dropping events.
const DefaultCapacity = 1024

// ErrStreamClosed is reported through Err and the failure hook when a
// send could not complete because the ingestor was closed.
var ErrStreamClosed = errors.New("stream: ingestor closed before send completed")

// IngestorConfig configures an Ingestor. Zero values get defaults.
type IngestorConfig struct {
	// Capacity of the bounded event channel. Defaults to
	// DefaultCapacity.
	Capacity int

	// Logger for dropped and failed translations. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// MessageTypes lists the m.room.message msgtypes that are
	// translated; anything else is dropped without an event. Defaults
	// to plain text only.
	MessageTypes []string

	// Formatter converts a message body to display text when the
	// event carries a formatted rendition alongside the plain body.
	// Nil forwards the plain body verbatim.
	Formatter func(body, formattedBody string) string

	// OnFailure runs exactly once if a send fails because the
	// ingestor was closed while a handler was blocked. Nil logs the
	// error. The hook is the graceful replacement for aborting the
	// process: wire it to the application's shutdown path.
	OnFailure func(error)
}

// Ingestor is the notification sink the sync engine delivers into.
// Handlers may be invoked from concurrent goroutines; sends onto the
// bounded channel are serialized internally.
type Ingestor struct {
	logger       *slog.Logger
	messageTypes map[string]bool
	formatter    func(body, formattedBody string) string
	onFailure    func(error)

	sendMu sync.Mutex
	events chan Event
	done   chan struct{}

	closeOnce sync.Once
	failOnce  sync.Once

	errMu sync.Mutex
	err   error
}

// NewIngestor creates an Ingestor with the given configuration.
func NewIngestor(config IngestorConfig) *Ingestor {
	capacity := config.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	messageTypes := config.MessageTypes
	if messageTypes == nil {
		messageTypes = []string{"m.text"}
	}
	accepted := make(map[string]bool, len(messageTypes))
	for _, messageType := range messageTypes {
		accepted[messageType] = true
	}

	in := &Ingestor{
		logger:       logger,
		messageTypes: accepted,
		formatter:    config.Formatter,
		onFailure:    config.OnFailure,
		events:       make(chan Event, capacity),
		done:         make(chan struct{}),
	}
	if in.onFailure == nil {
		in.onFailure = func(err error) {
			logger.Error("event stream failed", "error", err)
		}
	}
	return in
}

// Events returns the bounded channel of canonical events. The channel
// is never closed; consumers should select against Done as well.
func (in *Ingestor) Events() <-chan Event {
	return in.events
}

// Done is closed when the ingestor stops accepting notifications.
func (in *Ingestor) Done() <-chan struct{} {
	return in.done
}

// Err returns ErrStreamClosed if a send failed after Close, nil
// otherwise.
func (in *Ingestor) Err() error {
	in.errMu.Lock()
	defer in.errMu.Unlock()
	return in.err
}

// Close stops the ingestor. Notifications delivered afterwards are
// discarded; a handler blocked mid-send observes the close and trips
// the failure hook. Idempotent.
func (in *Ingestor) Close() {
	in.closeOnce.Do(func() {
		close(in.done)
	})
}

// HandleNotification translates one notification into at most one
// canonical event on the bounded channel. Categories outside the
// translated set, and notifications for rooms the user has not
// joined (invite previews excepted), produce nothing.
func (in *Ingestor) HandleNotification(notification Notification) {
	scope := notification.Scope()

	switch n := notification.(type) {
	case NameNotification:
		if scope.Context != ContextJoined {
			return
		}
		in.emit(RoomNameChanged{
			DisplayName: scope.Room.DisplayName(),
			RoomID:      scope.Room.ID(),
		})

	case MemberNotification:
		if scope.Context != ContextJoined {
			return
		}
		target, err := ref.ParseUserID(n.StateKey)
		if err != nil {
			in.logger.Warn("member event with malformed state key",
				"room_id", scope.Room.ID(),
				"state_key", n.StateKey,
				"error", err,
			)
			in.emit(Failure{})
			return
		}
		in.emit(MemberChange{
			Sender:       n.Sender,
			Receiver:     target,
			Room:         scope.Room,
			Transition:   n.Transition,
			FromTimeline: true,
			NewState:     n.NewMembership,
		})

	case StrippedMemberNotification:
		if scope.Context != ContextInvited {
			return
		}
		target, err := ref.ParseUserID(n.StateKey)
		if err != nil {
			in.logger.Warn("stripped member event with malformed state key",
				"room_id", scope.Room.ID(),
				"state_key", n.StateKey,
				"error", err,
			)
			in.emit(Failure{})
			return
		}
		// Stripped state carries no membership history.
		transition := ResolveTransition(StrippedPreviousMembership, n.NewMembership, n.Sender == target)
		in.emit(MemberChange{
			Sender:       n.Sender,
			Receiver:     target,
			Room:         scope.Room,
			Transition:   transition,
			FromTimeline: false,
			NewState:     n.NewMembership,
		})

	case MessageNotification:
		if scope.Context != ContextJoined {
			return
		}
		if !in.messageTypes[n.MsgType] {
			in.logger.Debug("dropping message with untranslated msgtype",
				"room_id", scope.Room.ID(),
				"msgtype", n.MsgType,
			)
			return
		}
		text := n.Body
		if in.formatter != nil && n.FormattedBody != "" {
			text = in.formatter(n.Body, n.FormattedBody)
		}
		in.emit(MessageReceived{
			RoomID: scope.Room.ID(),
			Message: MessageRecord{
				DisplayName: scope.Room.MemberName(n.Sender),
				Sender:      n.Sender,
				Text:        text,
				EventID:     n.EventID,
				Timestamp:   n.Timestamp,
				DedupeID:    dedupeID(n.TransactionID),
			},
		})

	case FullyReadNotification:
		if scope.Context != ContextJoined {
			return
		}
		in.emit(FullyReadMarker{
			EventID: n.EventID,
			RoomID:  scope.Room.ID(),
		})

	case TypingNotification:
		if scope.Context != ContextJoined {
			return
		}
		in.emit(TypingChanged{
			Summary: typingSummary(scope.Room, n.UserIDs),
		})

	case UnrecognizedNotification:
		in.logger.Debug("unrecognized event type", "type", n.Type)

	default:
		// Accepted but untranslated category.
	}
}

// emit enqueues one event, blocking while the channel is full. Sends
// from concurrent handlers are serialized by sendMu. If the ingestor
// is closed before the send completes, the failure hook fires once
// and the event is discarded.
func (in *Ingestor) emit(event Event) {
	in.sendMu.Lock()
	defer in.sendMu.Unlock()

	select {
	case <-in.done:
		in.fail()
		return
	default:
	}

	select {
	case in.events <- event:
	case <-in.done:
		in.fail()
	}
}

func (in *Ingestor) fail() {
	in.failOnce.Do(func() {
		in.errMu.Lock()
		in.err = ErrStreamClosed
		in.errMu.Unlock()
		in.onFailure(ErrStreamClosed)
	})
}

// dedupeID parses transactionID as a UUID, generating a fresh one when
// the field is absent or malformed. A malformed transaction ID is not
// an error; it just cannot fold a local echo.
func dedupeID(transactionID string) uuid.UUID {
	if transactionID != "" {
		if id, err := uuid.Parse(transactionID); err == nil {
			return id
		}
	}
	return uuid.New()
}

// typingSummary intersects the typing set with the room's joined
// roster and renders the indicator line: "" when no one matches,
// "NAME is typing..." for one, comma-joined names with "are" for
// several. Name order follows the roster's sorted iteration order.
func typingSummary(room *roomstate.Room, users []ref.UserID) string {
	typing := make([]ref.UserID, 0, len(users))
	for _, user := range users {
		if room.Membership(user) == roomstate.MembershipJoin {
			typing = append(typing, user)
		}
	}

	names := room.DisplayNamesOf(typing)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	}
	return strings.Join(names, ", ") + " are typing..."
}
