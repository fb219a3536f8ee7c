// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"time"

	"github.com/perch-chat/perch/lib/ref"
	"github.com/perch-chat/perch/messaging"
	"github.com/perch-chat/perch/roomstate"
	"github.com/perch-chat/perch/stream"
)

// dispatch walks one sync response in server order: invite previews
// first, then per joined room state, timeline, ephemeral, and account
// data. Left rooms are dropped from the store.
func (c *MatrixClient) dispatch(response *messaging.SyncResponse, sink NotificationSink) {
	for roomID, invited := range response.Rooms.Invite {
		room := c.store.Ensure(roomID)
		scope := stream.Scope{Context: stream.ContextInvited, Room: room}
		for _, event := range invited.InviteState.Events {
			c.dispatchStrippedEvent(scope, room, event, sink)
		}
	}

	for roomID, joined := range response.Rooms.Join {
		room := c.store.Ensure(roomID)
		scope := stream.Scope{Context: stream.ContextJoined, Room: room}

		for _, event := range joined.State.Events {
			c.dispatchStateEvent(scope, room, event, sink)
		}
		for _, event := range joined.Timeline.Events {
			c.dispatchTimelineEvent(scope, room, event, sink)
		}

		// The first prev_batch seen for a room anchors backward
		// pagination; later syncs must not move it forward.
		if joined.Timeline.PrevBatch != "" {
			c.mu.Lock()
			if _, ok := c.scrollTokens[roomID]; !ok {
				c.scrollTokens[roomID] = joined.Timeline.PrevBatch
			}
			c.mu.Unlock()
		}

		for _, event := range joined.Ephemeral.Events {
			c.dispatchEphemeralEvent(scope, event, sink)
		}
		for _, event := range joined.AccountData.Events {
			c.dispatchAccountDataEvent(scope, event, sink)
		}
	}

	for roomID := range response.Rooms.Leave {
		c.store.Forget(roomID)
	}
}

// dispatchStrippedEvent handles one stripped state event from an
// invite preview. Member events reach the sink; the room name is
// applied to state so the preview can render it.
func (c *MatrixClient) dispatchStrippedEvent(scope stream.Scope, room *roomstate.Room, event messaging.Event, sink NotificationSink) {
	switch event.Type {
	case messaging.EventTypeMember:
		content, err := event.MemberContent()
		if err != nil {
			c.logger.Warn("skipping undecodable stripped member event", "error", err)
			return
		}
		sink.HandleNotification(stream.StrippedMemberNotification{
			Scoped:        stream.At(scope),
			Sender:        event.Sender,
			StateKey:      stateKey(event),
			NewMembership: roomstate.Membership(content.Membership),
		})

	case messaging.EventTypeName:
		content, err := event.NameContent()
		if err != nil {
			c.logger.Warn("skipping undecodable stripped name event", "error", err)
			return
		}
		room.SetName(content.Name)
		sink.HandleNotification(stream.StrippedNameNotification{Scoped: stream.At(scope)})
	}
}

// dispatchStateEvent applies one state-block event to the roster and
// delivers the corresponding state notification. State events precede
// the timeline so timeline translation sees up-to-date rosters.
func (c *MatrixClient) dispatchStateEvent(scope stream.Scope, room *roomstate.Room, event messaging.Event, sink NotificationSink) {
	switch event.Type {
	case messaging.EventTypeMember:
		content, err := event.MemberContent()
		if err != nil {
			c.logger.Warn("skipping undecodable member state event", "event_id", event.EventID, "error", err)
			return
		}
		if target, err := ref.ParseUserID(stateKey(event)); err == nil {
			room.ApplyMember(target, content.DisplayName, roomstate.Membership(content.Membership))
		}
		sink.HandleNotification(stream.StateMemberNotification{Scoped: stream.At(scope)})

	case messaging.EventTypeName:
		content, err := event.NameContent()
		if err != nil {
			c.logger.Warn("skipping undecodable name state event", "event_id", event.EventID, "error", err)
			return
		}
		room.SetName(content.Name)
		sink.HandleNotification(stream.StateNameNotification{Scoped: stream.At(scope)})

	case messaging.EventTypeCanonicalAlias:
		content, err := event.CanonicalAliasContent()
		if err != nil {
			c.logger.Warn("skipping undecodable canonical alias state event", "event_id", event.EventID, "error", err)
			return
		}
		room.SetCanonicalAlias(content.Alias)
		sink.HandleNotification(stream.StateCanonicalAliasNotification{Scoped: stream.At(scope)})

	case messaging.EventTypeAliases:
		sink.HandleNotification(stream.StateAliasesNotification{Scoped: stream.At(scope)})
	case messaging.EventTypeAvatar:
		sink.HandleNotification(stream.StateAvatarNotification{Scoped: stream.At(scope)})
	case messaging.EventTypeJoinRules:
		sink.HandleNotification(stream.StateJoinRulesNotification{Scoped: stream.At(scope)})
	case messaging.EventTypePowerLevels:
		sink.HandleNotification(stream.StatePowerLevelsNotification{Scoped: stream.At(scope)})
	default:
		sink.HandleNotification(stream.UnrecognizedNotification{Scoped: stream.At(scope), Type: event.Type})
	}
}

// dispatchTimelineEvent translates one timeline event. Member events
// read the roster's prior state before the change is applied, so the
// transition classification compares against what the client actually
// knew.
func (c *MatrixClient) dispatchTimelineEvent(scope stream.Scope, room *roomstate.Room, event messaging.Event, sink NotificationSink) {
	switch event.Type {
	case messaging.EventTypeMessage:
		content, err := event.MessageContent()
		if err != nil {
			c.logger.Warn("skipping undecodable message event", "event_id", event.EventID, "error", err)
			return
		}
		sink.HandleNotification(stream.MessageNotification{
			Scoped:        stream.At(scope),
			Sender:        event.Sender,
			EventID:       event.EventID,
			Timestamp:     time.UnixMilli(event.OriginServerTS),
			MsgType:       content.MsgType,
			Body:          content.Body,
			Format:        content.Format,
			FormattedBody: content.FormattedBody,
			TransactionID: event.TransactionID(),
		})

	case messaging.EventTypeMember:
		content, err := event.MemberContent()
		if err != nil {
			c.logger.Warn("skipping undecodable member event", "event_id", event.EventID, "error", err)
			return
		}
		next := roomstate.Membership(content.Membership)
		key := stateKey(event)

		// The roster is read before ApplyMember so the transition is
		// classified against the previously known state (unseen users
		// read as leave). An unparsable state key cannot be classified.
		transition := stream.TransitionError
		if target, err := ref.ParseUserID(key); err == nil {
			previous := room.Membership(target)
			transition = stream.ResolveTransition(previous, next, event.Sender == target)
			room.ApplyMember(target, content.DisplayName, next)
		}
		sink.HandleNotification(stream.MemberNotification{
			Scoped:        stream.At(scope),
			Sender:        event.Sender,
			StateKey:      key,
			NewMembership: next,
			Transition:    transition,
		})

	case messaging.EventTypeName:
		content, err := event.NameContent()
		if err != nil {
			c.logger.Warn("skipping undecodable name event", "event_id", event.EventID, "error", err)
			return
		}
		room.SetName(content.Name)
		sink.HandleNotification(stream.NameNotification{Scoped: stream.At(scope)})

	case messaging.EventTypeCanonicalAlias:
		content, err := event.CanonicalAliasContent()
		if err != nil {
			c.logger.Warn("skipping undecodable canonical alias event", "event_id", event.EventID, "error", err)
			return
		}
		room.SetCanonicalAlias(content.Alias)
		sink.HandleNotification(stream.CanonicalAliasNotification{Scoped: stream.At(scope)})

	case messaging.EventTypeTopic:
		sink.HandleNotification(stream.TopicNotification{Scoped: stream.At(scope)})
	case messaging.EventTypeAvatar:
		sink.HandleNotification(stream.AvatarNotification{Scoped: stream.At(scope)})
	case messaging.EventTypeAliases:
		sink.HandleNotification(stream.AliasesNotification{Scoped: stream.At(scope)})
	case messaging.EventTypeJoinRules:
		sink.HandleNotification(stream.JoinRulesNotification{Scoped: stream.At(scope)})
	case messaging.EventTypePowerLevels:
		sink.HandleNotification(stream.PowerLevelsNotification{Scoped: stream.At(scope)})
	case messaging.EventTypeTombstone:
		sink.HandleNotification(stream.TombstoneNotification{Scoped: stream.At(scope)})
	case messaging.EventTypeRedaction:
		sink.HandleNotification(stream.RedactionNotification{Scoped: stream.At(scope)})
	default:
		sink.HandleNotification(stream.UnrecognizedNotification{Scoped: stream.At(scope), Type: event.Type})
	}
}

// dispatchEphemeralEvent handles per-room ephemeral events.
func (c *MatrixClient) dispatchEphemeralEvent(scope stream.Scope, event messaging.Event, sink NotificationSink) {
	switch event.Type {
	case messaging.EventTypeTyping:
		content, err := event.TypingContent()
		if err != nil {
			c.logger.Warn("skipping undecodable typing event", "error", err)
			return
		}
		sink.HandleNotification(stream.TypingNotification{
			Scoped:  stream.At(scope),
			UserIDs: content.UserIDs,
		})
	}
}

// dispatchAccountDataEvent handles per-room account data.
func (c *MatrixClient) dispatchAccountDataEvent(scope stream.Scope, event messaging.Event, sink NotificationSink) {
	switch event.Type {
	case messaging.EventTypeFullyRead:
		content, err := event.FullyReadContent()
		if err != nil {
			c.logger.Warn("skipping undecodable fully_read event", "error", err)
			return
		}
		sink.HandleNotification(stream.FullyReadNotification{
			Scoped:  stream.At(scope),
			EventID: content.EventID,
		})
	}
}

// stateKey returns the event's state key, or "" when absent.
func stateKey(event messaging.Event) string {
	if event.StateKey == nil {
		return ""
	}
	return *event.StateKey
}
