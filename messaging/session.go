// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/perch-chat/perch/lib/ref"
)

// Session is an authenticated Matrix session. It wraps a Client with
// an access token for making authenticated API calls.
//
// Perch holds exactly one Session per process. The access token lives
// in ordinary process memory for the lifetime of the run; nothing is
// persisted to disk.
type Session struct {
	client      *Client
	accessToken string
	userID      ref.UserID
	deviceID    string

	// transactionCounter generates unique transaction IDs for
	// idempotent sends. The server echoes the transaction ID back in
	// unsigned data, which is how a local echo is folded with its
	// confirmed copy.
	transactionCounter atomic.Int64
}

// UserID returns the fully-qualified Matrix user ID
// (e.g., "@alice:example.org").
func (s *Session) UserID() ref.UserID {
	return s.userID
}

// DeviceID returns the device ID assigned at login.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a sync error to force
// the next request to establish a fresh TCP connection.
func (s *Session) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// WhoAmI validates the access token and returns the user ID.
func (s *Session) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// JoinRoom joins a room by ID. Returns the room ID. To join by alias,
// resolve with ResolveAlias first.
func (s *Session) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{})
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %s failed: %w", roomID, err)
	}

	var response struct {
		RoomID ref.RoomID `json:"room_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: failed to parse join response: %w", err)
	}
	return response.RoomID, nil
}

// LeaveRoom leaves a room by ID.
func (s *Session) LeaveRoom(ctx context.Context, roomID ref.RoomID) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/leave", url.PathEscape(roomID.String()))
	_, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{})
	if err != nil {
		return fmt.Errorf("messaging: leave room %q failed: %w", roomID, err)
	}
	return nil
}

// JoinedRooms returns the list of room IDs the user has joined.
func (s *Session) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: joined rooms failed: %w", err)
	}

	var response JoinedRoomsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse joined rooms response: %w", err)
	}
	return response.JoinedRooms, nil
}

// ResolveAlias resolves a room alias (e.g., "#lobby:example.org") to a
// room ID.
func (s *Session) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolve alias %q failed: %w", alias, err)
	}

	var response ResolveAliasResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: failed to parse resolve alias response: %w", err)
	}
	return response.RoomID, nil
}

// SendMessage sends an m.room.message event to a room using Matrix's
// idempotent PUT with a transaction ID. Returns the event ID and the
// transaction ID used, so the caller can fold the local echo with the
// server's copy when it arrives through /sync.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, string, error) {
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(EventTypeMessage.String()),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, "", fmt.Errorf("messaging: send message to %q failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, "", fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	return response.EventID, transactionID, nil
}

// RoomMessages fetches messages from a room with pagination.
func (s *Session) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/messages", url.PathEscape(roomID.String()))

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	direction := options.Direction
	if direction == "" {
		direction = "b" // backward (newest first) by default
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: room messages for %q failed: %w", roomID, err)
	}

	var response RoomMessagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse messages response: %w", err)
	}
	return &response, nil
}

// GetRoomMembers returns the members of a room.
func (s *Session) GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/members", url.PathEscape(roomID.String()))
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get room members for %q failed: %w", roomID, err)
	}

	var response RoomMembersResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse room members response: %w", err)
	}

	members := make([]RoomMember, len(response.Chunk))
	for index, event := range response.Chunk {
		members[index] = RoomMember{
			UserID:      event.StateKey,
			DisplayName: event.Content.DisplayName,
			Membership:  event.Content.Membership,
			AvatarURL:   event.Content.AvatarURL,
		}
	}
	return members, nil
}

// GetDisplayName fetches a user's profile display name.
func (s *Session) GetDisplayName(ctx context.Context, userID ref.UserID) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/profile/%s/displayname", url.PathEscape(userID.String()))
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return "", fmt.Errorf("messaging: get display name for %q failed: %w", userID, err)
	}

	var response DisplayNameResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse display name response: %w", err)
	}
	return response.DisplayName, nil
}

// SendTyping reports the local user's typing state to a room.
// timeoutMS bounds how long the server should consider the user
// typing when typing is true.
func (s *Session) SendTyping(ctx context.Context, roomID ref.RoomID, typing bool, timeoutMS int64) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/typing/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(s.userID.String()),
	)
	request := TypingRequest{Typing: typing}
	if typing {
		request.Timeout = timeoutMS
	}
	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, request); err != nil {
		return fmt.Errorf("messaging: typing update for %q failed: %w", roomID, err)
	}
	return nil
}

// SetFullyRead moves the m.fully_read marker in a room and sends a
// public read receipt for the same event.
func (s *Session) SetFullyRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/read_markers", url.PathEscape(roomID.String()))
	request := ReadMarkersRequest{FullyRead: eventID, Read: eventID}
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, request); err != nil {
		return fmt.Errorf("messaging: read markers for %q failed: %w", roomID, err)
	}
	return nil
}

// Sync performs an incremental sync with the homeserver.
// For initial sync, leave options.Since empty. For long-polling, set
// options.Timeout to the desired wait in milliseconds.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	path := "/_matrix/client/v3/sync"
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// nextTransactionID returns a transaction ID unique within this
// session's lifetime. The device ID is included so IDs from a previous
// run cannot collide with the current one.
func (s *Session) nextTransactionID() string {
	return fmt.Sprintf("perch-%s-%d", s.deviceID, s.transactionCounter.Add(1))
}
