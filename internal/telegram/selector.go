package telegram

import (
	"context"
	"fmt"
	"strings"
)

// MemberStatus is a chat-membership level as reported by the platform.
type MemberStatus string

const (
	StatusOwner         MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusBanned        MemberStatus = "kicked"
	StatusNonMember     MemberStatus = "nonmember"
)

// SelectorEnv is what a selector can see about an incoming command: the
// sender, the chat, and a lazy membership lookup.
type SelectorEnv struct {
	UserID   int64
	ChatID   int64
	ChatType string

	// Membership resolves the sender's status in the chat. Only consulted
	// by membership selectors.
	Membership func(ctx context.Context) (MemberStatus, error)
}

// Selector decides whether a command registration applies to a given sender
// and chat. Selectors compose with And, Or and Not.
type Selector interface {
	Matches(ctx context.Context, env SelectorEnv) (bool, error)

	// Describe renders the permission rule for help text, e.g.
	// "by administrators in group chats".
	Describe() string
}

type always struct{}

func (always) Matches(context.Context, SelectorEnv) (bool, error) { return true, nil }
func (always) Describe() string                                   { return "always" }

type never struct{}

func (never) Matches(context.Context, SelectorEnv) (bool, error) { return false, nil }
func (never) Describe() string                                   { return "never" }

// Always matches every sender.
func Always() Selector { return always{} }

// Never matches no sender.
func Never() Selector { return never{} }

type userIDIn struct{ ids []int64 }

func (s userIDIn) Matches(_ context.Context, env SelectorEnv) (bool, error) {
	for _, id := range s.ids {
		if env.UserID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s userIDIn) Describe() string {
	return fmt.Sprintf("by %s", idList(s.ids, "user"))
}

// UserIDIn matches senders whose id is listed.
func UserIDIn(ids ...int64) Selector { return userIDIn{ids: ids} }

type chatIDIn struct{ ids []int64 }

func (s chatIDIn) Matches(_ context.Context, env SelectorEnv) (bool, error) {
	for _, id := range s.ids {
		if env.ChatID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s chatIDIn) Describe() string {
	return fmt.Sprintf("in %s", idList(s.ids, "chat"))
}

// ChatIDIn matches commands issued in one of the listed chats.
func ChatIDIn(ids ...int64) Selector { return chatIDIn{ids: ids} }

type chatTypeIn struct{ types []string }

func (s chatTypeIn) Matches(_ context.Context, env SelectorEnv) (bool, error) {
	for _, t := range s.types {
		if env.ChatType == t {
			return true, nil
		}
	}
	return false, nil
}

func (s chatTypeIn) Describe() string {
	names := make([]string, len(s.types))
	for i, t := range s.types {
		names[i] = chatTypeName(t)
	}
	return "in " + orList(names)
}

// ChatTypeIn matches by chat type ("private", "group", "supergroup",
// "channel").
func ChatTypeIn(types ...string) Selector { return chatTypeIn{types: types} }

type membershipIn struct{ statuses []MemberStatus }

func (s membershipIn) Matches(ctx context.Context, env SelectorEnv) (bool, error) {
	if env.Membership == nil {
		return false, fmt.Errorf("telegram: selector needs membership lookup")
	}
	status, err := env.Membership(ctx)
	if err != nil {
		return false, err
	}
	for _, want := range s.statuses {
		if status == want {
			return true, nil
		}
	}
	return false, nil
}

func (s membershipIn) Describe() string {
	names := make([]string, len(s.statuses))
	for i, st := range s.statuses {
		names[i] = statusName(st)
	}
	return "by " + orList(names)
}

// MembershipIn matches senders whose chat-membership status is listed.
func MembershipIn(statuses ...MemberStatus) Selector { return membershipIn{statuses: statuses} }

type and struct{ x, y Selector }

func (s and) Matches(ctx context.Context, env SelectorEnv) (bool, error) {
	ok, err := s.x.Matches(ctx, env)
	if err != nil || !ok {
		return false, err
	}
	return s.y.Matches(ctx, env)
}

func (s and) Describe() string {
	return s.x.Describe() + " " + s.y.Describe()
}

// And matches when both selectors match. Evaluation short-circuits.
func And(x, y Selector) Selector { return and{x, y} }

type or struct{ x, y Selector }

func (s or) Matches(ctx context.Context, env SelectorEnv) (bool, error) {
	ok, err := s.x.Matches(ctx, env)
	if err != nil || ok {
		return ok, err
	}
	return s.y.Matches(ctx, env)
}

func (s or) Describe() string {
	return "either " + s.x.Describe() + " or " + s.y.Describe()
}

// Or matches when either selector matches. Evaluation short-circuits.
func Or(x, y Selector) Selector { return or{x, y} }

type not struct{ x Selector }

func (s not) Matches(ctx context.Context, env SelectorEnv) (bool, error) {
	ok, err := s.x.Matches(ctx, env)
	return !ok, err
}

func (s not) Describe() string {
	return "not " + s.x.Describe()
}

// Not inverts a selector.
func Not(x Selector) Selector { return not{x} }

func idList(ids []int64, noun string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s %d", noun, id)
	}
	return orList(parts)
}

func orList(items []string) string {
	switch len(items) {
	case 0:
		return "no one"
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
	}
}

func chatTypeName(t string) string {
	switch t {
	case "private":
		return "private chats"
	case "group":
		return "group chats"
	case "supergroup":
		return "supergroups"
	case "channel":
		return "channels"
	default:
		return t
	}
}

func statusName(s MemberStatus) string {
	switch s {
	case StatusOwner:
		return "the chat owner"
	case StatusAdministrator:
		return "administrators"
	case StatusMember:
		return "members"
	case StatusRestricted:
		return "restricted members"
	case StatusLeft:
		return "members that left the chat"
	case StatusBanned:
		return "banned members"
	case StatusNonMember:
		return "non-members"
	default:
		return string(s)
	}
}
