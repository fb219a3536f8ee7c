// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

// Membership is a Matrix room membership state, as carried in the
// "membership" key of m.room.member content. Values outside the five
// defined states pass through untouched so an unknown state degrades
// to "no transition" downstream instead of being misclassified.
type Membership string

const (
	MembershipInvite Membership = "invite"
	MembershipJoin   Membership = "join"
	MembershipLeave  Membership = "leave"
	MembershipBan    Membership = "ban"
	MembershipKnock  Membership = "knock"
)

// Known reports whether m is one of the five defined membership states.
func (m Membership) Known() bool {
	switch m {
	case MembershipInvite, MembershipJoin, MembershipLeave, MembershipBan, MembershipKnock:
		return true
	}
	return false
}

func (m Membership) String() string {
	return string(m)
}
