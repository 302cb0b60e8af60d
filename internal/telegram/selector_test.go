package telegram

import (
	"context"
	"testing"
)

func env(userID, chatID int64, chatType string, status MemberStatus) SelectorEnv {
	return SelectorEnv{
		UserID:   userID,
		ChatID:   chatID,
		ChatType: chatType,
		Membership: func(context.Context) (MemberStatus, error) {
			return status, nil
		},
	}
}

func TestSelectorMatching(t *testing.T) {
	e := env(42, -100, "supergroup", StatusAdministrator)

	tests := []struct {
		name string
		sel  Selector
		want bool
	}{
		{"always", Always(), true},
		{"never", Never(), false},
		{"user id hit", UserIDIn(7, 42), true},
		{"user id miss", UserIDIn(7), false},
		{"chat id hit", ChatIDIn(-100), true},
		{"chat id miss", ChatIDIn(-200), false},
		{"chat type hit", ChatTypeIn("group", "supergroup"), true},
		{"chat type miss", ChatTypeIn("private"), false},
		{"membership hit", MembershipIn(StatusOwner, StatusAdministrator), true},
		{"membership miss", MembershipIn(StatusMember), false},
		{"and", And(UserIDIn(42), ChatIDIn(-100)), true},
		{"and short-circuit", And(Never(), MembershipIn(StatusMember)), false},
		{"or", Or(Never(), UserIDIn(42)), true},
		{"not", Not(UserIDIn(42)), false},
		{"compound", And(ChatTypeIn("supergroup"), Or(UserIDIn(7), MembershipIn(StatusAdministrator))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sel.Matches(context.Background(), e)
			if err != nil {
				t.Fatalf("Matches: %v", err)
			}
			if got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectorDescribe(t *testing.T) {
	tests := []struct {
		sel  Selector
		want string
	}{
		{Always(), "always"},
		{UserIDIn(7), "by user 7"},
		{UserIDIn(7, 8), "by user 7 or user 8"},
		{ChatTypeIn("private", "group"), "in private chats or group chats"},
		{MembershipIn(StatusOwner, StatusAdministrator), "by the chat owner or administrators"},
		{Not(UserIDIn(7)), "not by user 7"},
		{Or(UserIDIn(7), MembershipIn(StatusAdministrator)), "either by user 7 or by administrators"},
	}
	for _, tt := range tests {
		if got := tt.sel.Describe(); got != tt.want {
			t.Errorf("Describe = %q, want %q", got, tt.want)
		}
	}
}
