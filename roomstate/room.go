// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"sort"
	"strings"
	"sync"

	"github.com/perch-chat/perch/lib/ref"
)

// Member is one entry in a room's roster.
type Member struct {
	DisplayName string
	Membership  Membership
}

// Room is the client's view of a single room. All methods are safe for
// concurrent use.
type Room struct {
	id ref.RoomID

	mu             sync.RWMutex
	name           string
	canonicalAlias string
	members        map[ref.UserID]Member
	self           ref.UserID
}

// NewRoom creates an empty Room. self is the local user, excluded from
// roster-derived display names.
func NewRoom(id ref.RoomID, self ref.UserID) *Room {
	return &Room{
		id:      id,
		members: make(map[ref.UserID]Member),
		self:    self,
	}
}

// ID returns the room's ID.
func (r *Room) ID() ref.RoomID {
	return r.id
}

// SetName records the room's explicit m.room.name.
func (r *Room) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

// SetCanonicalAlias records the room's canonical alias.
func (r *Room) SetCanonicalAlias(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canonicalAlias = alias
}

// ApplyMember records a member's current membership and display name.
// An empty display name keeps any name already on record, so a
// leave/ban event without profile fields does not erase what the join
// carried.
func (r *Room) ApplyMember(user ref.UserID, displayName string, membership Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()

	member := r.members[user]
	if displayName != "" {
		member.DisplayName = displayName
	}
	member.Membership = membership
	r.members[user] = member
}

// Membership returns the recorded membership of user. Users never seen
// in this room report MembershipLeave, the resting state every
// membership history starts from.
func (r *Room) Membership(user ref.UserID) Membership {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[user]
	if !ok {
		return MembershipLeave
	}
	return member.Membership
}

// MemberName returns the display name to show for user: the profile
// display name when one is on record, otherwise the localpart of the
// user ID.
func (r *Room) MemberName(user ref.UserID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memberNameLocked(user)
}

func (r *Room) memberNameLocked(user ref.UserID) string {
	if member, ok := r.members[user]; ok && member.DisplayName != "" {
		return member.DisplayName
	}
	return user.Localpart()
}

// DisplayNamesOf maps user IDs to display names, ordered by user ID.
// The ordering makes roster-derived strings deterministic regardless
// of the order the server listed the users.
func (r *Room) DisplayNamesOf(users []ref.UserID) []string {
	sorted := make([]ref.UserID, len(users))
	copy(sorted, users)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(sorted))
	for index, user := range sorted {
		names[index] = r.memberNameLocked(user)
	}
	return names
}

// JoinedCount returns the number of members currently joined.
func (r *Room) JoinedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, member := range r.members {
		if member.Membership == MembershipJoin {
			count++
		}
	}
	return count
}

// DisplayName computes the room's display name: the explicit room name
// if set, else the canonical alias, else up to three joined peers'
// names, else the room ID.
func (r *Room) DisplayName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.name != "" {
		return r.name
	}
	if r.canonicalAlias != "" {
		return r.canonicalAlias
	}

	peers := make([]ref.UserID, 0, len(r.members))
	for user, member := range r.members {
		if user == r.self || member.Membership != MembershipJoin {
			continue
		}
		peers = append(peers, user)
	}
	if len(peers) > 0 {
		sort.Slice(peers, func(i, j int) bool {
			return peers[i].String() < peers[j].String()
		})
		if len(peers) > 3 {
			peers = peers[:3]
		}
		names := make([]string, len(peers))
		for index, user := range peers {
			names[index] = r.memberNameLocked(user)
		}
		return strings.Join(names, ", ")
	}

	return r.id.String()
}
