// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/perch-chat/perch/lib/ref"
)

func TestNewClient(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		client, err := NewClient(ClientConfig{HomeserverURL: "https://matrix.example.org"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.baseURL != "https://matrix.example.org" {
			t.Errorf("baseURL = %q, want %q", client.baseURL, "https://matrix.example.org")
		}
	})

	t.Run("trailing slash stripped", func(t *testing.T) {
		client, err := NewClient(ClientConfig{HomeserverURL: "https://matrix.example.org/"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.baseURL != "https://matrix.example.org" {
			t.Errorf("baseURL = %q, want trailing slash removed", client.baseURL)
		}
	})

	t.Run("empty URL rejected", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{}); err == nil {
			t.Error("expected error for empty HomeserverURL")
		}
	})

	t.Run("URL without scheme rejected", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{HomeserverURL: "matrix.example.org"}); err == nil {
			t.Error("expected error for URL without scheme")
		}
	})
}

// newTestSession returns a Session pointed at the test server, skipping
// the login round trip.
func newTestSession(t *testing.T, server *httptest.Server) *Session {
	t.Helper()
	client, err := NewClient(ClientConfig{
		HomeserverURL: server.URL,
		HTTPClient:    server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session := client.SessionFromToken(ref.MustParseUserID("@alice:example.org"), "token-abc")
	session.deviceID = "DEVTEST"
	return session
}

func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/_matrix/client/v3/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var request LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Fatalf("decoding login request: %v", err)
		}
		if request.Type != "m.login.password" {
			t.Errorf("login type = %q, want m.login.password", request.Type)
		}
		if request.User != "alice" {
			t.Errorf("login user = %q, want alice", request.User)
		}
		json.NewEncoder(w).Encode(AuthResponse{
			UserID:      ref.MustParseUserID("@alice:example.org"),
			AccessToken: "secret-token",
			DeviceID:    "ABCDEF",
		})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	session, err := client.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got := session.UserID().String(); got != "@alice:example.org" {
		t.Errorf("UserID = %q, want @alice:example.org", got)
	}
	if session.DeviceID() != "ABCDEF" {
		t.Errorf("DeviceID = %q, want ABCDEF", session.DeviceID())
	}
}

func TestLoginRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"errcode": "M_FORBIDDEN",
			"error":   "Invalid password",
		})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("expected login to fail")
	}

	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("expected *MatrixError, got %T: %v", err, err)
	}
	if matrixErr.Code != ErrCodeForbidden {
		t.Errorf("error code = %q, want M_FORBIDDEN", matrixErr.Code)
	}
	if matrixErr.StatusCode != http.StatusForbidden {
		t.Errorf("status code = %d, want 403", matrixErr.StatusCode)
	}
	if !IsMatrixError(err, ErrCodeForbidden) {
		t.Error("IsMatrixError(M_FORBIDDEN) = false, want true")
	}
}

func TestSendMessage(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("send used %s, want PUT", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-abc" {
			t.Errorf("Authorization = %q, want bearer token", auth)
		}
		paths = append(paths, r.URL.Path)

		var content MessageContent
		if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
			t.Fatalf("decoding message content: %v", err)
		}
		if content.MsgType != MsgTypeText {
			t.Errorf("msgtype = %q, want m.text", content.MsgType)
		}
		if content.Body != "hello world" {
			t.Errorf("body = %q, want %q", content.Body, "hello world")
		}
		json.NewEncoder(w).Encode(SendEventResponse{
			EventID: ref.MustParseEventID("$confirmed:example.org"),
		})
	}))
	defer server.Close()

	session := newTestSession(t, server)
	roomID := ref.MustParseRoomID("!room:example.org")

	eventID, firstTxn, err := session.SendMessage(context.Background(), roomID, NewTextMessage("hello world"))
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if eventID.String() != "$confirmed:example.org" {
		t.Errorf("event ID = %q, want $confirmed:example.org", eventID)
	}
	if firstTxn == "" {
		t.Fatal("expected a non-empty transaction ID")
	}

	_, secondTxn, err := session.SendMessage(context.Background(), roomID, NewTextMessage("hello world"))
	if err != nil {
		t.Fatalf("second SendMessage failed: %v", err)
	}
	if firstTxn == secondTxn {
		t.Errorf("transaction IDs not unique: both %q", firstTxn)
	}

	// r.URL.Path is percent-decoded, so the room ID appears in raw form.
	wantPrefix := "/_matrix/client/v3/rooms/!room:example.org/send/m.room.message/"
	for _, path := range paths {
		if !strings.HasPrefix(path, wantPrefix) {
			t.Errorf("send path = %q, want prefix %q", path, wantPrefix)
		}
	}
}

func TestSync(t *testing.T) {
	const syncBody = `{
		"next_batch": "s72595_4483_1934",
		"rooms": {
			"join": {
				"!room:example.org": {
					"timeline": {
						"events": [
							{
								"event_id": "$msg1:example.org",
								"type": "m.room.message",
								"sender": "@bob:example.org",
								"origin_server_ts": 1700000000000,
								"content": {"msgtype": "m.text", "body": "hi"},
								"unsigned": {"transaction_id": "perch-DEV-7"}
							}
						],
						"prev_batch": "t392-516_47314",
						"limited": false
					},
					"state": {"events": []},
					"ephemeral": {
						"events": [
							{
								"type": "m.typing",
								"content": {"user_ids": ["@bob:example.org"]}
							}
						]
					},
					"account_data": {
						"events": [
							{
								"type": "m.fully_read",
								"content": {"event_id": "$msg1:example.org"}
							}
						]
					}
				}
			},
			"invite": {
				"!invited:example.org": {
					"invite_state": {
						"events": [
							{
								"type": "m.room.member",
								"sender": "@carol:example.org",
								"state_key": "@alice:example.org",
								"content": {"membership": "invite"}
							}
						]
					}
				}
			}
		}
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/sync" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		query := r.URL.Query()
		if got := query.Get("since"); got != "s72595_0_0" {
			t.Errorf("since = %q, want s72595_0_0", got)
		}
		if got := query.Get("timeout"); got != "30000" {
			t.Errorf("timeout = %q, want 30000", got)
		}
		w.Write([]byte(syncBody))
	}))
	defer server.Close()

	session := newTestSession(t, server)
	response, err := session.Sync(context.Background(), SyncOptions{
		Since:      "s72595_0_0",
		Timeout:    30000,
		SetTimeout: true,
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if response.NextBatch != "s72595_4483_1934" {
		t.Errorf("next_batch = %q", response.NextBatch)
	}

	roomID := ref.MustParseRoomID("!room:example.org")
	joined, ok := response.Rooms.Join[roomID]
	if !ok {
		t.Fatalf("joined room %s missing from response", roomID)
	}

	if len(joined.Timeline.Events) != 1 {
		t.Fatalf("timeline has %d events, want 1", len(joined.Timeline.Events))
	}
	event := joined.Timeline.Events[0]
	if event.Type != EventTypeMessage {
		t.Errorf("event type = %q, want m.room.message", event.Type)
	}
	if event.TransactionID() != "perch-DEV-7" {
		t.Errorf("transaction ID = %q, want perch-DEV-7", event.TransactionID())
	}
	content, err := event.MessageContent()
	if err != nil {
		t.Fatalf("decoding message content: %v", err)
	}
	if content.Body != "hi" {
		t.Errorf("message body = %q, want hi", content.Body)
	}

	if len(joined.Ephemeral.Events) != 1 {
		t.Fatalf("ephemeral has %d events, want 1", len(joined.Ephemeral.Events))
	}
	typing, err := joined.Ephemeral.Events[0].TypingContent()
	if err != nil {
		t.Fatalf("decoding typing content: %v", err)
	}
	if len(typing.UserIDs) != 1 || typing.UserIDs[0].String() != "@bob:example.org" {
		t.Errorf("typing users = %v, want [@bob:example.org]", typing.UserIDs)
	}

	if len(joined.AccountData.Events) != 1 {
		t.Fatalf("account data has %d events, want 1", len(joined.AccountData.Events))
	}
	marker, err := joined.AccountData.Events[0].FullyReadContent()
	if err != nil {
		t.Fatalf("decoding fully_read content: %v", err)
	}
	if marker.EventID.String() != "$msg1:example.org" {
		t.Errorf("fully_read = %q, want $msg1:example.org", marker.EventID)
	}

	invited, ok := response.Rooms.Invite[ref.MustParseRoomID("!invited:example.org")]
	if !ok {
		t.Fatal("invited room missing from response")
	}
	if len(invited.InviteState.Events) != 1 {
		t.Fatalf("invite_state has %d events, want 1", len(invited.InviteState.Events))
	}
	member, err := invited.InviteState.Events[0].MemberContent()
	if err != nil {
		t.Fatalf("decoding member content: %v", err)
	}
	if member.Membership != "invite" {
		t.Errorf("membership = %q, want invite", member.Membership)
	}
}

func TestRoomMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if got := query.Get("dir"); got != "b" {
			t.Errorf("dir = %q, want b (backward default)", got)
		}
		if got := query.Get("from"); got != "t392-516" {
			t.Errorf("from = %q, want t392-516", got)
		}
		if got := query.Get("limit"); got != "30" {
			t.Errorf("limit = %q, want 30", got)
		}
		json.NewEncoder(w).Encode(RoomMessagesResponse{
			Start: "t392-516",
			End:   "t300-401",
			Chunk: []Event{},
		})
	}))
	defer server.Close()

	session := newTestSession(t, server)
	response, err := session.RoomMessages(context.Background(), ref.MustParseRoomID("!room:example.org"), RoomMessagesOptions{
		From:  "t392-516",
		Limit: 30,
	})
	if err != nil {
		t.Fatalf("RoomMessages failed: %v", err)
	}
	if response.End != "t300-401" {
		t.Errorf("end token = %q, want t300-401", response.End)
	}
}

func TestResolveAlias(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/_matrix/client/v3/directory/room/") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ResolveAliasResponse{
			RoomID:  ref.MustParseRoomID("!resolved:example.org"),
			Servers: []string{"example.org"},
		})
	}))
	defer server.Close()

	session := newTestSession(t, server)
	roomID, err := session.ResolveAlias(context.Background(), ref.MustParseRoomAlias("#lobby:example.org"))
	if err != nil {
		t.Fatalf("ResolveAlias failed: %v", err)
	}
	if roomID.String() != "!resolved:example.org" {
		t.Errorf("room ID = %q, want !resolved:example.org", roomID)
	}
}

func TestGetRoomMembers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RoomMembersResponse{
			Chunk: []RoomMemberEvent{
				{
					Type:     "m.room.member",
					StateKey: ref.MustParseUserID("@bob:example.org"),
					Content:  MemberContent{Membership: "join", DisplayName: "Bob"},
				},
				{
					Type:     "m.room.member",
					StateKey: ref.MustParseUserID("@carol:example.org"),
					Content:  MemberContent{Membership: "leave"},
				},
			},
		})
	}))
	defer server.Close()

	session := newTestSession(t, server)
	members, err := session.GetRoomMembers(context.Background(), ref.MustParseRoomID("!room:example.org"))
	if err != nil {
		t.Fatalf("GetRoomMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].DisplayName != "Bob" || members[0].Membership != "join" {
		t.Errorf("first member = %+v, want Bob/join", members[0])
	}
	if members[1].UserID.String() != "@carol:example.org" {
		t.Errorf("second member = %q, want @carol:example.org", members[1].UserID)
	}
}

func TestSetFullyRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("read markers used %s, want POST", r.Method)
		}
		var request ReadMarkersRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Fatalf("decoding read markers request: %v", err)
		}
		if request.FullyRead.String() != "$msg9:example.org" {
			t.Errorf("m.fully_read = %q, want $msg9:example.org", request.FullyRead)
		}
		if request.Read != request.FullyRead {
			t.Error("m.read should match m.fully_read")
		}
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	session := newTestSession(t, server)
	err := session.SetFullyRead(context.Background(), ref.MustParseRoomID("!room:example.org"), ref.MustParseEventID("$msg9:example.org"))
	if err != nil {
		t.Fatalf("SetFullyRead failed: %v", err)
	}
}

func TestSendTyping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("typing used %s, want PUT", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/typing/@alice:example.org") {
			t.Errorf("typing path = %q, want suffix /typing/@alice:example.org", r.URL.Path)
		}
		var request TypingRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Fatalf("decoding typing request: %v", err)
		}
		if !request.Typing {
			t.Error("typing = false, want true")
		}
		if request.Timeout != 4000 {
			t.Errorf("timeout = %d, want 4000", request.Timeout)
		}
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	session := newTestSession(t, server)
	err := session.SendTyping(context.Background(), ref.MustParseRoomID("!room:example.org"), true, 4000)
	if err != nil {
		t.Fatalf("SendTyping failed: %v", err)
	}
}
