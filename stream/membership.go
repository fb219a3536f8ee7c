// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "github.com/perch-chat/perch/roomstate"

// Transition classifies how a user's room membership changed between
// two observed states.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionJoined
	TransitionInvited
	TransitionLeft
	TransitionKicked
	TransitionBanned
	TransitionKickedAndBanned
	TransitionUnbanned
	TransitionInvitationRejected
	TransitionInvitationRevoked
	TransitionProfileChanged
	TransitionNotImplemented
	TransitionError
)

var transitionNames = map[Transition]string{
	TransitionNone:               "none",
	TransitionJoined:             "joined",
	TransitionInvited:            "invited",
	TransitionLeft:               "left",
	TransitionKicked:             "kicked",
	TransitionBanned:             "banned",
	TransitionKickedAndBanned:    "kicked and banned",
	TransitionUnbanned:           "unbanned",
	TransitionInvitationRejected: "invitation rejected",
	TransitionInvitationRevoked:  "invitation revoked",
	TransitionProfileChanged:     "profile changed",
	TransitionNotImplemented:     "not implemented",
	TransitionError:              "error",
}

func (t Transition) String() string {
	if name, ok := transitionNames[t]; ok {
		return name
	}
	return "unknown"
}

// StrippedPreviousMembership is the previous state assumed for member
// changes delivered as stripped invite-preview events. No local
// history exists in that context; "leave" is the resting state every
// membership history starts from.
const StrippedPreviousMembership = roomstate.MembershipLeave

// ResolveTransition classifies the change from previous to next
// membership state. sameActor reports whether the acting user is the
// affected user. Pure and total: every input combination maps to a
// defined Transition, with knock on either side classified as
// TransitionNotImplemented and unknown states as TransitionNone.
func ResolveTransition(previous, next roomstate.Membership, sameActor bool) Transition {
	if previous == roomstate.MembershipKnock || next == roomstate.MembershipKnock {
		return TransitionNotImplemented
	}

	switch previous {
	case roomstate.MembershipInvite:
		switch next {
		case roomstate.MembershipInvite:
			return TransitionNone
		case roomstate.MembershipJoin:
			return TransitionJoined
		case roomstate.MembershipLeave:
			if sameActor {
				return TransitionInvitationRevoked
			}
			return TransitionInvitationRejected
		case roomstate.MembershipBan:
			return TransitionBanned
		}
	case roomstate.MembershipJoin:
		switch next {
		case roomstate.MembershipInvite:
			return TransitionError
		case roomstate.MembershipJoin:
			return TransitionProfileChanged
		case roomstate.MembershipLeave:
			if sameActor {
				return TransitionLeft
			}
			return TransitionKicked
		case roomstate.MembershipBan:
			return TransitionKickedAndBanned
		}
	case roomstate.MembershipLeave:
		switch next {
		case roomstate.MembershipInvite:
			return TransitionInvited
		case roomstate.MembershipJoin:
			return TransitionJoined
		case roomstate.MembershipLeave:
			return TransitionNone
		case roomstate.MembershipBan:
			return TransitionBanned
		}
	case roomstate.MembershipBan:
		switch next {
		case roomstate.MembershipInvite, roomstate.MembershipJoin:
			return TransitionError
		case roomstate.MembershipLeave:
			return TransitionUnbanned
		case roomstate.MembershipBan:
			return TransitionNone
		}
	}

	return TransitionNone
}
