// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"sort"
	"sync"

	"github.com/perch-chat/perch/lib/ref"
)

// Store holds the client's per-room state, keyed by room ID.
type Store struct {
	self ref.UserID

	mu    sync.RWMutex
	rooms map[ref.RoomID]*Room
}

// NewStore creates an empty Store for the given local user.
func NewStore(self ref.UserID) *Store {
	return &Store{
		self:  self,
		rooms: make(map[ref.RoomID]*Room),
	}
}

// Ensure returns the Room for id, creating it if this is the first
// time the room has been seen.
func (s *Store) Ensure(id ref.RoomID) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		room = NewRoom(id, s.self)
		s.rooms[id] = room
	}
	return room
}

// Room returns the Room for id if it exists.
func (s *Store) Room(id ref.RoomID) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	return room, ok
}

// Forget drops a room from the store, typically after leaving it.
func (s *Store) Forget(id ref.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}

// Rooms returns all known rooms ordered by room ID.
func (s *Store) Rooms() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].id.String() < rooms[j].id.String()
	})
	return rooms
}
