// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"

	"github.com/perch-chat/perch/lib/clock"
	"github.com/perch-chat/perch/lib/ref"
	"github.com/perch-chat/perch/stream"
)

// Conversation is the outbound slice of the sync client the app drives:
// everything the user can cause, as opposed to the inbound event stream
// consumed from the ingestor.
type Conversation interface {
	UserID() ref.UserID
	SendMarkdown(ctx context.Context, roomID ref.RoomID, body string) (ref.EventID, string, error)
	Backfill(ctx context.Context, roomID ref.RoomID) error
	MarkRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error
	SetTyping(ctx context.Context, roomID ref.RoomID, typing bool) error
}

// AppConfig configures an App.
type AppConfig struct {
	Conversation Conversation
	Ingestor     *stream.Ingestor
	Mux          *Mux
	// Output receives rendered frames. Defaults to os.Stdout.
	Output io.Writer
	Theme  Theme
	// Width and Height of the drawing area. Defaults: 80x24.
	Width  int
	Height int
	// Clock timestamps locally generated transcript entries. If nil,
	// the real clock.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// entry is one transcript line: either a message or a membership
// status note. Exactly one of message and status is set.
type entry struct {
	message *stream.MessageRecord
	status  string
	at      time.Time
}

// roomView is the per-room transcript the app accumulates from the
// event stream.
type roomView struct {
	name    string
	entries []entry
	seen    map[uuid.UUID]bool
	// lastRead is the newest event ID a read marker was sent for.
	lastRead ref.EventID
}

// App is the terminal chat loop. It drains the ingestor's canonical
// events and the input/tick multiplexer, maintains per-room
// transcripts, and redraws on every tick.
type App struct {
	conversation Conversation
	ingestor     *stream.Ingestor
	mux          *Mux
	output       io.Writer
	theme        Theme
	width        int
	height       int
	clock        clock.Clock
	logger       *slog.Logger

	rooms   map[ref.RoomID]*roomView
	order   []ref.RoomID
	current int

	input  []rune
	typing string
	// typingSent tracks whether the server currently believes the local
	// user is typing, so transitions are reported once each way.
	typingSent bool

	dirty bool

	renderer *lipgloss.Renderer
}

// NewApp creates an App. Run does the work.
func NewApp(config AppConfig) (*App, error) {
	if config.Conversation == nil {
		return nil, fmt.Errorf("ui: AppConfig.Conversation is required")
	}
	if config.Ingestor == nil {
		return nil, fmt.Errorf("ui: AppConfig.Ingestor is required")
	}
	if config.Mux == nil {
		return nil, fmt.Errorf("ui: AppConfig.Mux is required")
	}

	output := config.Output
	if output == nil {
		output = os.Stdout
	}
	width := config.Width
	if width <= 0 {
		width = 80
	}
	height := config.Height
	if height <= 0 {
		height = 24
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	renderer := lipgloss.NewRenderer(output, termenv.WithProfile(termenv.ANSI256))
	renderer.SetColorProfile(termenv.ANSI256)

	return &App{
		conversation: config.Conversation,
		ingestor:     config.Ingestor,
		mux:          config.Mux,
		output:       output,
		theme:        config.Theme,
		width:        width,
		height:       height,
		clock:        clk,
		logger:       logger,
		rooms:        make(map[ref.RoomID]*roomView),
		dirty:        true,
		renderer:     renderer,
	}, nil
}

// Run drives the loop until ctx is cancelled, the multiplexer shuts
// down (exit key or Shutdown), or the ingestor stops. The two producer
// streams stay independent: a stalled network never blocks keystrokes,
// and vice versa.
func (a *App) Run(ctx context.Context) error {
	keys := make(chan Event)
	go func() {
		defer close(keys)
		for {
			event, err := a.mux.Next()
			if err != nil {
				return
			}
			select {
			case keys <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-a.ingestor.Done():
			return a.ingestor.Err()

		case event := <-a.ingestor.Events():
			a.applyStreamEvent(ctx, event)

		case event, ok := <-keys:
			if !ok {
				return nil
			}
			switch e := event.(type) {
			case TickEvent:
				if a.dirty {
					a.draw()
					a.dirty = false
				}
			case InputEvent:
				a.handleKey(ctx, e.Key)
			}
		}
	}
}

func (a *App) view(roomID ref.RoomID) *roomView {
	if view, ok := a.rooms[roomID]; ok {
		return view
	}
	view := &roomView{
		name: roomID.String(),
		seen: make(map[uuid.UUID]bool),
	}
	a.rooms[roomID] = view
	a.order = append(a.order, roomID)
	sort.Slice(a.order, func(i, j int) bool { return a.order[i].String() < a.order[j].String() })
	return view
}

func (a *App) currentRoom() (ref.RoomID, *roomView) {
	if len(a.order) == 0 {
		return ref.RoomID{}, nil
	}
	if a.current >= len(a.order) {
		a.current = len(a.order) - 1
	}
	id := a.order[a.current]
	return id, a.rooms[id]
}

// insert places e into the view's transcript in timestamp order.
// Backfilled pages arrive newest-first with old timestamps, so
// append-only would interleave them wrongly.
func (v *roomView) insert(e entry) {
	position := len(v.entries)
	for position > 0 && v.entries[position-1].at.After(e.at) {
		position--
	}
	v.entries = append(v.entries, entry{})
	copy(v.entries[position+1:], v.entries[position:])
	v.entries[position] = e
}

func (a *App) applyStreamEvent(ctx context.Context, event stream.Event) {
	a.dirty = true

	switch e := event.(type) {
	case stream.MessageReceived:
		view := a.view(e.RoomID)
		if view.seen[e.Message.DedupeID] {
			return
		}
		view.seen[e.Message.DedupeID] = true
		record := e.Message
		view.insert(entry{message: &record, at: record.Timestamp})

		if currentID, _ := a.currentRoom(); currentID == e.RoomID {
			record.Read = true
			a.sendReadMarker(ctx, e.RoomID, view)
		}

	case stream.RoomNameChanged:
		a.view(e.RoomID).name = e.DisplayName

	case stream.MemberChange:
		if line := memberStatusLine(e); line != "" {
			a.view(e.Room.ID()).insert(entry{status: line, at: a.clock.Now()})
		}

	case stream.FullyReadMarker:
		view := a.view(e.RoomID)
		for index := range view.entries {
			if message := view.entries[index].message; message != nil {
				message.Read = true
				if message.EventID == e.EventID {
					break
				}
			}
		}

	case stream.TypingChanged:
		a.typing = e.Summary

	case stream.Failure:
		a.logger.Warn("event stream reported a translation failure")
	}
}

// sendReadMarker advances the read marker to the newest message in
// view, once per position.
func (a *App) sendReadMarker(ctx context.Context, roomID ref.RoomID, view *roomView) {
	var newest *stream.MessageRecord
	for index := len(view.entries) - 1; index >= 0; index-- {
		if message := view.entries[index].message; message != nil {
			newest = message
			break
		}
	}
	if newest == nil || newest.ReceiptSent || newest.EventID == view.lastRead {
		return
	}
	newest.ReceiptSent = true
	view.lastRead = newest.EventID

	eventID := newest.EventID
	go func() {
		if err := a.conversation.MarkRead(ctx, roomID, eventID); err != nil {
			a.logger.Warn("read marker update failed", "room_id", roomID, "error", err)
		}
	}()
}

func (a *App) handleKey(ctx context.Context, key Key) {
	a.dirty = true

	switch key.Kind {
	case KeyRune:
		a.input = append(a.input, key.Rune)
		a.setTyping(ctx, true)

	case KeyBackspace:
		if len(a.input) > 0 {
			a.input = a.input[:len(a.input)-1]
		}
		if len(a.input) == 0 {
			a.setTyping(ctx, false)
		}

	case KeyEnter:
		a.submitInput(ctx)

	case KeyEsc:
		a.input = a.input[:0]
		a.setTyping(ctx, false)

	case KeyUp:
		a.switchRoom(ctx, -1)
	case KeyDown:
		a.switchRoom(ctx, 1)

	case KeyCtrl:
		switch key.Rune {
		case 'p':
			a.switchRoom(ctx, -1)
		case 'n':
			a.switchRoom(ctx, 1)
		case 'b':
			a.requestBackfill(ctx)
		case 'u':
			a.input = a.input[:0]
			a.setTyping(ctx, false)
		}
	}
}

func (a *App) switchRoom(ctx context.Context, delta int) {
	if len(a.order) == 0 {
		return
	}
	a.current = (a.current + delta + len(a.order)) % len(a.order)
	a.typing = ""

	if roomID, view := a.currentRoom(); view != nil {
		for index := range view.entries {
			if message := view.entries[index].message; message != nil {
				message.Read = true
			}
		}
		a.sendReadMarker(ctx, roomID, view)
	}
}

func (a *App) submitInput(ctx context.Context) {
	body := strings.TrimSpace(string(a.input))
	a.input = a.input[:0]
	a.setTyping(ctx, false)
	if body == "" {
		return
	}

	roomID, _ := a.currentRoom()
	if roomID.IsZero() {
		return
	}
	go func() {
		if _, _, err := a.conversation.SendMarkdown(ctx, roomID, body); err != nil {
			a.logger.Warn("send failed", "room_id", roomID, "error", err)
		}
	}()
}

func (a *App) requestBackfill(ctx context.Context) {
	roomID, _ := a.currentRoom()
	if roomID.IsZero() {
		return
	}
	// Replayed events come back through the ingestor channel, which the
	// run loop is draining, so this must not run inline.
	go func() {
		if err := a.conversation.Backfill(ctx, roomID); err != nil {
			a.logger.Warn("backfill failed", "room_id", roomID, "error", err)
		}
	}()
}

func (a *App) setTyping(ctx context.Context, typing bool) {
	if typing == a.typingSent {
		return
	}
	a.typingSent = typing

	roomID, _ := a.currentRoom()
	if roomID.IsZero() {
		return
	}
	go func() {
		if err := a.conversation.SetTyping(ctx, roomID, typing); err != nil {
			a.logger.Warn("typing update failed", "room_id", roomID, "error", err)
		}
	}()
}

// memberStatusLine renders one membership transition as a transcript
// note, or "" for transitions the transcript does not surface.
func memberStatusLine(change stream.MemberChange) string {
	who := change.Room.MemberName(change.Receiver)
	actor := change.Room.MemberName(change.Sender)

	switch change.Transition {
	case stream.TransitionJoined:
		return who + " joined"
	case stream.TransitionLeft:
		return who + " left"
	case stream.TransitionInvited:
		return who + " was invited by " + actor
	case stream.TransitionKicked:
		return who + " was kicked by " + actor
	case stream.TransitionBanned:
		return who + " was banned by " + actor
	case stream.TransitionKickedAndBanned:
		return who + " was kicked and banned by " + actor
	case stream.TransitionUnbanned:
		return who + " was unbanned by " + actor
	case stream.TransitionInvitationRejected:
		return who + " rejected the invitation"
	case stream.TransitionInvitationRevoked:
		return actor + " revoked the invitation for " + who
	case stream.TransitionProfileChanged:
		return who + " updated their profile"
	case stream.TransitionError:
		return "inconsistent membership change for " + who
	}
	return ""
}

func (a *App) style() lipgloss.Style {
	return a.renderer.NewStyle()
}

// draw repaints the whole frame: header, transcript tail, typing
// indicator, input line.
func (a *App) draw() {
	var frame strings.Builder
	frame.WriteString("\x1b[2J\x1b[H")

	_, view := a.currentRoom()

	header := "no rooms yet"
	if view != nil {
		header = fmt.Sprintf("%s  [%d/%d]", view.name, a.current+1, len(a.order))
	}
	frame.WriteString(a.style().Bold(true).Foreground(a.theme.Accent).Render(header))
	frame.WriteString("\r\n")
	frame.WriteString(a.style().Foreground(a.theme.Border).Render(strings.Repeat("─", a.width)))
	frame.WriteString("\r\n")

	// Three rows reserved: header, separator, input. One more for the
	// typing line.
	transcriptRows := a.height - 4
	if transcriptRows < 1 {
		transcriptRows = 1
	}
	if view != nil {
		for _, line := range a.transcriptTail(view, transcriptRows) {
			frame.WriteString(line)
			frame.WriteString("\r\n")
		}
	}

	frame.WriteString(a.style().Faint(true).Foreground(a.theme.FaintText).Render(a.typing))
	frame.WriteString("\r\n")
	frame.WriteString(a.style().Foreground(a.theme.Accent).Render("> "))
	frame.WriteString(a.style().Foreground(a.theme.NormalText).Render(string(a.input)))

	io.WriteString(a.output, frame.String())
}

// transcriptTail renders the newest entries of view that fit in rows
// lines.
func (a *App) transcriptTail(view *roomView, rows int) []string {
	var lines []string
	for _, e := range view.entries {
		lines = append(lines, a.entryLines(e)...)
	}
	if len(lines) > rows {
		lines = lines[len(lines)-rows:]
	}
	return lines
}

func (a *App) entryLines(e entry) []string {
	if e.message == nil {
		note := a.style().Faint(true).Foreground(a.theme.FaintText).Render("* " + e.status)
		return []string{note}
	}

	message := e.message
	stamp := a.style().Faint(true).Foreground(a.theme.FaintText).Render(message.Timestamp.Format("15:04"))
	nameColor := a.theme.SenderName
	if message.Sender == a.conversation.UserID() {
		nameColor = a.theme.OwnName
	}
	name := a.style().Bold(true).Foreground(nameColor).Render(message.DisplayName)

	bodyLines := strings.Split(message.Text, "\n")
	lines := make([]string, 0, len(bodyLines))
	lines = append(lines, fmt.Sprintf("%s %s: %s", stamp, name, bodyLines[0]))
	for _, continuation := range bodyLines[1:] {
		lines = append(lines, "        "+continuation)
	}
	return lines
}
