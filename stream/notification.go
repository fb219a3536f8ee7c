// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"time"

	"github.com/perch-chat/perch/lib/ref"
	"github.com/perch-chat/perch/roomstate"
)

// Context is the local user's relationship to a room at the time a
// notification arrives.
type Context int

const (
	// ContextJoined: the user is in the room; full history available.
	ContextJoined Context = iota
	// ContextInvited: preview only, stripped state, no history.
	ContextInvited
	// ContextLeft: the user has left or been removed.
	ContextLeft
)

func (c Context) String() string {
	switch c {
	case ContextJoined:
		return "joined"
	case ContextInvited:
		return "invited"
	case ContextLeft:
		return "left"
	}
	return "unknown"
}

// Scope tags every notification with the room it concerns and the
// local user's relationship to it. Room is owned and synchronized by
// the sync engine; the ingestor only reads through it.
type Scope struct {
	Context Context
	Room    *roomstate.Room
}

// Notification is one protocol-level state change delivered by the
// sync engine. The set of variants mirrors the protocol's notification
// surface; the ingestor translates a handful and explicitly ignores
// the rest, so the dispatch stays exhaustive and the dropped
// categories stay visible.
type Notification interface {
	Scope() Scope
}

// Scoped provides the Scope accessor shared by all variants. Embed
// it with the notification's scope in In.
type Scoped struct {
	In Scope
}

// At wraps a Scope for embedding in a notification literal.
func At(scope Scope) Scoped { return Scoped{In: scope} }

func (s Scoped) Scope() Scope { return s.In }

// --- Translated categories ---

// NameNotification: the room's name state changed; the computed
// display name should be re-read.
type NameNotification struct {
	Scoped
}

// MemberNotification: a membership change from a room timeline. The
// engine resolves the transition against its recorded prior state
// before delivery. StateKey is the affected user's raw ID; it is
// validated during translation.
type MemberNotification struct {
	Scoped
	Sender        ref.UserID
	StateKey      string
	NewMembership roomstate.Membership
	Transition    Transition
}

// StrippedMemberNotification: a membership change from stripped
// invite-preview state. No prior membership history accompanies it.
type StrippedMemberNotification struct {
	Scoped
	Sender        ref.UserID
	StateKey      string
	NewMembership roomstate.Membership
}

// MessageNotification: an m.room.message timeline event.
type MessageNotification struct {
	Scoped
	Sender        ref.UserID
	EventID       ref.EventID
	Timestamp     time.Time
	MsgType       string
	Body          string
	Format        string
	FormattedBody string
	TransactionID string
}

// FullyReadNotification: the per-room read marker moved.
type FullyReadNotification struct {
	Scoped
	EventID ref.EventID
}

// TypingNotification: the room's set of currently-typing users.
type TypingNotification struct {
	Scoped
	UserIDs []ref.UserID
}

// --- Accepted but untranslated categories ---
//
// Each of these is a recognized protocol event the client has decided
// not to surface. They exist as distinct variants so the ingestor's
// dispatch names every dropped category instead of hiding them behind
// a default case.

type TopicNotification struct{ Scoped }
type AvatarNotification struct{ Scoped }
type AliasesNotification struct{ Scoped }
type CanonicalAliasNotification struct{ Scoped }
type JoinRulesNotification struct{ Scoped }
type PowerLevelsNotification struct{ Scoped }
type TombstoneNotification struct{ Scoped }
type RedactionNotification struct{ Scoped }
type PresenceNotification struct{ Scoped }
type IgnoredUsersNotification struct{ Scoped }
type PushRulesNotification struct{ Scoped }

// State-section counterparts: the same event types delivered in the
// state block of a sync rather than the timeline. The engine applies
// them to room state directly; nothing is surfaced per event.

type StateMemberNotification struct{ Scoped }
type StateNameNotification struct{ Scoped }
type StateAliasesNotification struct{ Scoped }
type StateCanonicalAliasNotification struct{ Scoped }
type StateAvatarNotification struct{ Scoped }
type StateJoinRulesNotification struct{ Scoped }
type StatePowerLevelsNotification struct{ Scoped }

// StrippedNameNotification: room name from stripped invite-preview
// state; the preview UI reads it from the room handle instead.
type StrippedNameNotification struct{ Scoped }

// UnrecognizedNotification: an event type outside the known protocol
// surface. Type carries the raw event type for debug logging.
type UnrecognizedNotification struct {
	Scoped
	Type ref.EventType
}
