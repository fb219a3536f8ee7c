// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"time"

	"github.com/google/uuid"

	"github.com/perch-chat/perch/lib/ref"
	"github.com/perch-chat/perch/roomstate"
)

// Event is the canonical vocabulary delivered to the UI loop. Exactly
// one Event is emitted per translated notification; events are
// immutable after construction except for the bookkeeping fields on
// MessageRecord, which the UI loop owns post-delivery.
type Event interface {
	streamEvent()
}

// MemberChange reports a membership notification, normalized whether
// it came from a full timeline event or a stripped invite-preview
// event. Room is a read-only handle owned by the sync engine.
type MemberChange struct {
	Sender       ref.UserID
	Receiver     ref.UserID
	Room         *roomstate.Room
	Transition   Transition
	FromTimeline bool
	NewState     roomstate.Membership
}

// MessageReceived carries one translated text message.
type MessageReceived struct {
	Message MessageRecord
	RoomID  ref.RoomID
}

// RoomNameChanged reports a room's recomputed display name.
type RoomNameChanged struct {
	DisplayName string
	RoomID      ref.RoomID
}

// FullyReadMarker reports the position of the user's read marker.
type FullyReadMarker struct {
	EventID ref.EventID
	RoomID  ref.RoomID
}

// TypingChanged carries a pre-formatted typing summary. An empty
// Summary means no one is typing; the UI uses it to clear the
// indicator.
type TypingChanged struct {
	Summary string
}

// Failure is the sentinel for a translation that could not be
// completed. It never carries details; the ingestor logs them.
type Failure struct{}

func (MemberChange) streamEvent()    {}
func (MessageReceived) streamEvent() {}
func (RoomNameChanged) streamEvent() {}
func (FullyReadMarker) streamEvent() {}
func (TypingChanged) streamEvent()   {}
func (Failure) streamEvent()         {}

// MessageRecord is the UI-facing form of a received message. DedupeID
// lets the UI fold a locally-echoed outgoing message with its
// server-confirmed copy: it is parsed from the transaction ID when
// present and well-formed, otherwise freshly generated. Read and
// ReceiptSent start false and are mutated by the UI loop, not here.
type MessageRecord struct {
	DisplayName string
	Sender      ref.UserID
	Text        string
	EventID     ref.EventID
	Timestamp   time.Time
	DedupeID    uuid.UUID
	Read        bool
	ReceiptSent bool
}
