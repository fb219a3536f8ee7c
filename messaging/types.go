// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/perch-chat/perch/lib/ref"
)

// Matrix event types that perch inspects. Everything else passes
// through the pipeline as an explicitly ignored category.
const (
	EventTypeMessage        ref.EventType = "m.room.message"
	EventTypeMember         ref.EventType = "m.room.member"
	EventTypeName           ref.EventType = "m.room.name"
	EventTypeTopic          ref.EventType = "m.room.topic"
	EventTypeAvatar         ref.EventType = "m.room.avatar"
	EventTypeAliases        ref.EventType = "m.room.aliases"
	EventTypeCanonicalAlias ref.EventType = "m.room.canonical_alias"
	EventTypeJoinRules      ref.EventType = "m.room.join_rules"
	EventTypePowerLevels    ref.EventType = "m.room.power_levels"
	EventTypeTombstone      ref.EventType = "m.room.tombstone"
	EventTypeRedaction      ref.EventType = "m.room.redaction"
	EventTypeTyping         ref.EventType = "m.typing"
	EventTypeFullyRead      ref.EventType = "m.fully_read"
	EventTypePresence       ref.EventType = "m.presence"
	EventTypeIgnoredUsers   ref.EventType = "m.ignored_user_list"
	EventTypePushRules      ref.EventType = "m.push_rules"
)

// Message types within m.room.message content.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeEmote  = "m.emote"
)

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// MessageContent is the content body of an m.room.message event.
// FormattedBody carries the org.matrix.custom.html rendition when the
// message was composed with markup; Body is always the plain-text
// fallback.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: MsgTypeText,
		Body:    body,
	}
}

// NewFormattedMessage creates a text message with an HTML rendition
// alongside the plain-text fallback body.
func NewFormattedMessage(body, html string) MessageContent {
	return MessageContent{
		MsgType:       MsgTypeText,
		Body:          body,
		Format:        "org.matrix.custom.html",
		FormattedBody: html,
	}
}

// MemberContent is the content of an m.room.member state event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// NameContent is the content of an m.room.name state event.
type NameContent struct {
	Name string `json:"name"`
}

// CanonicalAliasContent is the content of an m.room.canonical_alias
// state event.
type CanonicalAliasContent struct {
	Alias string `json:"alias"`
}

// TypingContent is the content of an m.typing ephemeral event: the
// users currently typing in the room.
type TypingContent struct {
	UserIDs []ref.UserID `json:"user_ids"`
}

// FullyReadContent is the content of an m.fully_read room account-data
// event: the user's read marker position.
type FullyReadContent struct {
	EventID ref.EventID `json:"event_id"`
}

// Event represents a Matrix event from the server. Content is kept
// raw; decode it with the typed accessors below once the event type
// is known.
type Event struct {
	EventID        ref.EventID     `json:"event_id"`
	Type           ref.EventType   `json:"type"`
	Sender         ref.UserID      `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
	RoomID         ref.RoomID      `json:"room_id,omitempty"`
	StateKey       *string         `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned  `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
// TransactionID is present on events echoed back to the session that
// sent them; perch uses it to fold local echoes with server copies.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// TransactionID returns the unsigned transaction ID, or "" when the
// event carries none.
func (e Event) TransactionID() string {
	if e.Unsigned == nil {
		return ""
	}
	return e.Unsigned.TransactionID
}

// MessageContent decodes the event content as m.room.message content.
func (e Event) MessageContent() (MessageContent, error) {
	var content MessageContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return MessageContent{}, fmt.Errorf("messaging: decoding message content of %s: %w", e.EventID, err)
	}
	return content, nil
}

// MemberContent decodes the event content as m.room.member content.
func (e Event) MemberContent() (MemberContent, error) {
	var content MemberContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return MemberContent{}, fmt.Errorf("messaging: decoding member content of %s: %w", e.EventID, err)
	}
	return content, nil
}

// NameContent decodes the event content as m.room.name content.
func (e Event) NameContent() (NameContent, error) {
	var content NameContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return NameContent{}, fmt.Errorf("messaging: decoding name content of %s: %w", e.EventID, err)
	}
	return content, nil
}

// CanonicalAliasContent decodes the event content as
// m.room.canonical_alias content.
func (e Event) CanonicalAliasContent() (CanonicalAliasContent, error) {
	var content CanonicalAliasContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return CanonicalAliasContent{}, fmt.Errorf("messaging: decoding canonical alias content of %s: %w", e.EventID, err)
	}
	return content, nil
}

// TypingContent decodes the event content as m.typing content.
func (e Event) TypingContent() (TypingContent, error) {
	var content TypingContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return TypingContent{}, fmt.Errorf("messaging: decoding typing content: %w", err)
	}
	return content, nil
}

// FullyReadContent decodes the event content as m.fully_read content.
func (e Event) FullyReadContent() (FullyReadContent, error) {
	var content FullyReadContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return FullyReadContent{}, fmt.Errorf("messaging: decoding fully_read content: %w", err)
	}
	return content, nil
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership
// state. Map keys are room IDs; encoding/json uses ref.RoomID's
// TextUnmarshaler for automatic validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline    TimelineSection `json:"timeline"`
	State       StateSection    `json:"state"`
	Ephemeral   StateSection    `json:"ephemeral"`
	AccountData StateSection    `json:"account_data"`
}

// InvitedRoom contains sync data for a room the user was invited to.
// InviteState carries stripped state events: no prior membership
// history is available in this context.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state, ephemeral, or account-data events from
// a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// RoomMessagesOptions controls pagination for room message fetching.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means "from now"
	Direction string // "b" (backward/older) or "f" (forward/newer)
	Limit     int    // max events to return; 0 uses server default
}

// RoomMessagesResponse is returned by RoomMessages.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

// SendEventResponse is returned by SendMessage and SendEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ResolveAliasResponse is returned by ResolveAlias.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

// JoinedRoomsResponse is returned by JoinedRooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// RoomMember represents a member of a Matrix room.
type RoomMember struct {
	UserID      ref.UserID `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Membership  string     `json:"membership"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
}

// RoomMembersResponse is returned by the /members endpoint.
type RoomMembersResponse struct {
	Chunk []RoomMemberEvent `json:"chunk"`
}

// RoomMemberEvent is a member state event from the /members endpoint.
type RoomMemberEvent struct {
	Type     string        `json:"type"`
	StateKey ref.UserID    `json:"state_key"`
	Sender   ref.UserID    `json:"sender"`
	Content  MemberContent `json:"content"`
}

// TypingRequest is the request body for the typing endpoint.
type TypingRequest struct {
	Typing  bool  `json:"typing"`
	Timeout int64 `json:"timeout,omitempty"` // milliseconds
}

// ReadMarkersRequest is the request body for the read_markers
// endpoint. FullyRead moves the m.fully_read marker; Read additionally
// sends a public read receipt.
type ReadMarkersRequest struct {
	FullyRead ref.EventID `json:"m.fully_read"`
	Read      ref.EventID `json:"m.read,omitempty"`
}

// DisplayNameResponse is returned by the /profile/{userId}/displayname
// endpoint.
type DisplayNameResponse struct {
	DisplayName string `json:"displayname"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
