// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/perch-chat/perch/lib/clock"
	"github.com/perch-chat/perch/lib/ref"
	"github.com/perch-chat/perch/lib/testutil"
	"github.com/perch-chat/perch/messaging"
	"github.com/perch-chat/perch/roomstate"
	"github.com/perch-chat/perch/stream"
)

var (
	alice  = ref.MustParseUserID("@alice:example.org")
	bob    = ref.MustParseUserID("@bob:example.org")
	roomID = ref.MustParseRoomID("!room:example.org")
)

// fakeSession scripts sync responses and records outbound calls. Once
// the script is exhausted, Sync blocks until the context is cancelled,
// like a long-poll against an idle server.
type fakeSession struct {
	mu        sync.Mutex
	responses []*messaging.SyncResponse
	syncErrs  []error

	sentMessages []messaging.MessageContent
	messagesOpts []messaging.RoomMessagesOptions
	messagesResp *messaging.RoomMessagesResponse
	readMarkers  []ref.EventID
}

func (f *fakeSession) UserID() ref.UserID { return alice }

func (f *fakeSession) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	f.mu.Lock()
	if len(f.syncErrs) > 0 {
		err := f.syncErrs[0]
		f.syncErrs = f.syncErrs[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.responses) > 0 {
		response := f.responses[0]
		f.responses = f.responses[1:]
		f.mu.Unlock()
		return response, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSession) SendMessage(ctx context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentMessages = append(f.sentMessages, content)
	return ref.MustParseEventID("$sent:example.org"), "txn-1", nil
}

func (f *fakeSession) RoomMessages(ctx context.Context, room ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messagesOpts = append(f.messagesOpts, options)
	if f.messagesResp != nil {
		return f.messagesResp, nil
	}
	return &messaging.RoomMessagesResponse{End: "t-end"}, nil
}

func (f *fakeSession) SetFullyRead(ctx context.Context, room ref.RoomID, eventID ref.EventID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readMarkers = append(f.readMarkers, eventID)
	return nil
}

func (f *fakeSession) SendTyping(ctx context.Context, room ref.RoomID, typing bool, timeoutMS int64) error {
	return nil
}

func (f *fakeSession) CloseIdleConnections() {}

// recordingSink collects notifications in arrival order.
type recordingSink struct {
	mu            sync.Mutex
	notifications []stream.Notification
	arrived       chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{arrived: make(chan struct{}, 64)}
}

func (s *recordingSink) HandleNotification(n stream.Notification) {
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	s.mu.Unlock()
	s.arrived <- struct{}{}
}

func (s *recordingSink) all() []stream.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stream.Notification(nil), s.notifications...)
}

func newTestClient(session session, clk clock.Clock) *MatrixClient {
	if clk == nil {
		clk = clock.Real()
	}
	return &MatrixClient{
		logger:       slog.New(slog.NewTextHandler(&strings.Builder{}, nil)),
		clock:        clk,
		session:      session,
		store:        roomstate.NewStore(alice),
		scrollTokens: make(map[ref.RoomID]string),
	}
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling test content: %v", err)
	}
	return data
}

func stateKeyOf(user ref.UserID) *string {
	key := user.String()
	return &key
}

func TestRunDispatchOrder(t *testing.T) {
	bobKey := stateKeyOf(bob)
	session := &fakeSession{
		responses: []*messaging.SyncResponse{{
			NextBatch: "s1",
			Rooms: messaging.RoomsSection{
				Invite: map[ref.RoomID]messaging.InvitedRoom{
					ref.MustParseRoomID("!invited:example.org"): {
						InviteState: messaging.StateSection{Events: []messaging.Event{{
							Type:     messaging.EventTypeMember,
							Sender:   bob,
							StateKey: stateKeyOf(alice),
							Content:  rawJSON(t, messaging.MemberContent{Membership: "invite"}),
						}}},
					},
				},
				Join: map[ref.RoomID]messaging.JoinedRoom{
					roomID: {
						State: messaging.StateSection{Events: []messaging.Event{{
							Type:     messaging.EventTypeMember,
							Sender:   bob,
							StateKey: bobKey,
							Content:  rawJSON(t, messaging.MemberContent{Membership: "join", DisplayName: "Bob"}),
						}}},
						Timeline: messaging.TimelineSection{
							PrevBatch: "t1",
							Events: []messaging.Event{
								{
									EventID: ref.MustParseEventID("$m1:example.org"),
									Type:    messaging.EventTypeMessage,
									Sender:  bob,
									Content: rawJSON(t, messaging.NewTextMessage("hello")),
								},
								{
									EventID:  ref.MustParseEventID("$m2:example.org"),
									Type:     messaging.EventTypeMember,
									Sender:   bob,
									StateKey: bobKey,
									Content:  rawJSON(t, messaging.MemberContent{Membership: "leave"}),
								},
							},
						},
						Ephemeral: messaging.StateSection{Events: []messaging.Event{{
							Type:    messaging.EventTypeTyping,
							Content: rawJSON(t, messaging.TypingContent{UserIDs: []ref.UserID{bob}}),
						}}},
						AccountData: messaging.StateSection{Events: []messaging.Event{{
							Type:    messaging.EventTypeFullyRead,
							Content: rawJSON(t, messaging.FullyReadContent{EventID: ref.MustParseEventID("$m1:example.org")}),
						}}},
					},
				},
			},
		}},
	}

	c := newTestClient(session, nil)
	sink := newRecordingSink()

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx, sink) }()

	for i := 0; i < 6; i++ {
		testutil.RequireReceive(t, sink.arrived, 5*time.Second, "notification")
	}
	cancel()
	err := testutil.RequireReceive(t, runDone, 5*time.Second, "run exit")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	notifications := sink.all()
	if len(notifications) != 6 {
		t.Fatalf("got %d notifications, want 6", len(notifications))
	}

	stripped, ok := notifications[0].(stream.StrippedMemberNotification)
	if !ok {
		t.Fatalf("notification[0] = %T, want StrippedMemberNotification first", notifications[0])
	}
	if stripped.Scope().Context != stream.ContextInvited {
		t.Errorf("stripped scope = %v, want invited", stripped.Scope().Context)
	}

	if _, ok := notifications[1].(stream.StateMemberNotification); !ok {
		t.Fatalf("notification[1] = %T, want StateMemberNotification before timeline", notifications[1])
	}

	message, ok := notifications[2].(stream.MessageNotification)
	if !ok {
		t.Fatalf("notification[2] = %T, want MessageNotification", notifications[2])
	}
	if message.Body != "hello" {
		t.Errorf("message body = %q, want hello", message.Body)
	}

	// The state block ran first, so the roster knew bob was joined and
	// the timeline leave classifies as a voluntary departure.
	member, ok := notifications[3].(stream.MemberNotification)
	if !ok {
		t.Fatalf("notification[3] = %T, want MemberNotification", notifications[3])
	}
	if member.Transition != stream.TransitionLeft {
		t.Errorf("transition = %v, want left", member.Transition)
	}

	if _, ok := notifications[4].(stream.TypingNotification); !ok {
		t.Fatalf("notification[4] = %T, want TypingNotification after timeline", notifications[4])
	}
	marker, ok := notifications[5].(stream.FullyReadNotification)
	if !ok {
		t.Fatalf("notification[5] = %T, want FullyReadNotification last", notifications[5])
	}
	if marker.EventID.String() != "$m1:example.org" {
		t.Errorf("fully read marker = %q, want $m1:example.org", marker.EventID)
	}

	// Roster reflects the applied leave.
	room, ok := c.Store().Room(roomID)
	if !ok {
		t.Fatal("room missing from store")
	}
	if got := room.Membership(bob); got != roomstate.MembershipLeave {
		t.Errorf("bob's membership = %q, want leave", got)
	}
}

func TestRunRetriesThenFails(t *testing.T) {
	syncErr := errors.New("connection reset")
	session := &fakeSession{
		syncErrs: []error{syncErr, syncErr, syncErr, syncErr, syncErr, syncErr},
	}

	clk := clock.Fake(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	c := newTestClient(session, clk)

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(context.Background(), newRecordingSink()) }()

	// Release each of the five retry delays.
	for i := 0; i < maxConsecutiveFailures; i++ {
		clk.BlockUntil(1)
		clk.Advance(retryDelay)
	}

	err := testutil.RequireReceive(t, runDone, 5*time.Second, "run exit")
	if !errors.Is(err, syncErr) {
		t.Fatalf("Run returned %v, want wrapped sync error", err)
	}
}

func TestRunRecoversWithinRetryBudget(t *testing.T) {
	syncErr := errors.New("connection reset")
	session := &fakeSession{
		syncErrs:  []error{syncErr, syncErr},
		responses: []*messaging.SyncResponse{{NextBatch: "s1"}},
	}

	clk := clock.Fake(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	c := newTestClient(session, clk)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx, newRecordingSink()) }()

	for i := 0; i < 2; i++ {
		clk.BlockUntil(1)
		clk.Advance(retryDelay)
	}

	// The successful sync advanced the since token; give the loop a
	// moment to store it, then stop.
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.mu.Lock()
		next := c.nextBatch
		c.mu.Unlock()
		if next == "s1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("next_batch never updated after recovery")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := testutil.RequireReceive(t, runDone, 5*time.Second, "run exit"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestBackfillUsesScrollToken(t *testing.T) {
	session := &fakeSession{
		messagesResp: &messaging.RoomMessagesResponse{
			End: "t0",
			Chunk: []messaging.Event{{
				EventID: ref.MustParseEventID("$old:example.org"),
				Type:    messaging.EventTypeMessage,
				Sender:  bob,
				Content: rawJSON(t, messaging.NewTextMessage("older message")),
			}},
		},
	}
	c := newTestClient(session, nil)
	sink := newRecordingSink()

	if err := c.Backfill(context.Background(), roomID, sink); err == nil {
		t.Fatal("Backfill before first sync should fail: no scroll token")
	}

	// Seed the token the way a sync would.
	c.mu.Lock()
	c.scrollTokens[roomID] = "t1"
	c.mu.Unlock()

	if err := c.Backfill(context.Background(), roomID, sink); err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if err := c.Backfill(context.Background(), roomID, sink); err != nil {
		t.Fatalf("second Backfill failed: %v", err)
	}

	if len(session.messagesOpts) != 2 {
		t.Fatalf("got %d pagination calls, want 2", len(session.messagesOpts))
	}
	if session.messagesOpts[0].From != "t1" {
		t.Errorf("first page from %q, want t1", session.messagesOpts[0].From)
	}
	if session.messagesOpts[1].From != "t0" {
		t.Errorf("second page from %q, want the previous end token t0", session.messagesOpts[1].From)
	}
	if session.messagesOpts[0].Direction != "b" {
		t.Errorf("direction = %q, want b", session.messagesOpts[0].Direction)
	}

	notifications := sink.all()
	if len(notifications) != 2 {
		t.Fatalf("got %d notifications, want 2", len(notifications))
	}
	message, ok := notifications[0].(stream.MessageNotification)
	if !ok {
		t.Fatalf("notification = %T, want MessageNotification", notifications[0])
	}
	if message.Body != "older message" {
		t.Errorf("body = %q", message.Body)
	}
}

func TestSendMarkdown(t *testing.T) {
	session := &fakeSession{}
	c := newTestClient(session, nil)

	if _, _, err := c.SendMarkdown(context.Background(), roomID, "some *emphasis* here"); err != nil {
		t.Fatalf("SendMarkdown failed: %v", err)
	}

	if len(session.sentMessages) != 1 {
		t.Fatalf("got %d sends, want 1", len(session.sentMessages))
	}
	content := session.sentMessages[0]
	if content.Body != "some *emphasis* here" {
		t.Errorf("fallback body = %q, want raw markdown", content.Body)
	}
	if content.Format != "org.matrix.custom.html" {
		t.Errorf("format = %q, want org.matrix.custom.html", content.Format)
	}
	if !strings.Contains(content.FormattedBody, "<em>emphasis</em>") {
		t.Errorf("formatted body = %q, want rendered emphasis", content.FormattedBody)
	}
}

func TestSendTextIsPlain(t *testing.T) {
	session := &fakeSession{}
	c := newTestClient(session, nil)

	if _, _, err := c.SendText(context.Background(), roomID, "just text"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	content := session.sentMessages[0]
	if content.Format != "" || content.FormattedBody != "" {
		t.Errorf("plain send carried formatting: %+v", content)
	}
}

func TestMarkRead(t *testing.T) {
	session := &fakeSession{}
	c := newTestClient(session, nil)
	eventID := ref.MustParseEventID("$read:example.org")

	if err := c.MarkRead(context.Background(), roomID, eventID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if len(session.readMarkers) != 1 || session.readMarkers[0] != eventID {
		t.Errorf("read markers = %v, want [%v]", session.readMarkers, eventID)
	}
}
