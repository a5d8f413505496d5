package handlers

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"predictrix/server/internal/domain"
	"predictrix/server/internal/errors"
	"predictrix/server/internal/wire"
)

// Members replies with the chat's member list sorted by derived ELO,
// descending, mirroring MembersController.
func (d *Deps) Members(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "memb") {
		return true
	}
	chatID, err := parseChatID(strings.TrimSpace(payload))
	if err != nil {
		return replyString(sess, "memb", string(errors.CodeInvalidChatID))
	}

	var result interface{}
	var fail string
	d.Locks.WithLock(chatID, func() {
		members, mErr := d.Store.GetChatMembers(ctx, chatID)
		if mErr != nil {
			slog.Error("handlers: get chat members failed", "chat_id", chatID, "error", mErr)
			fail = string(errors.CodeFail)
			return
		}
		if len(members) == 0 {
			fail = string(errors.CodeNoMembers)
			return
		}

		scores, predictions, sErr := d.Store.GetChatStats(ctx, chatID)
		if sErr != nil {
			slog.Error("handlers: get chat stats failed", "chat_id", chatID, "error", sErr)
			fail = string(errors.CodeFail)
			return
		}

		standings := make([]domain.MemberStanding, 0, len(members))
		for _, uid := range members {
			profile := d.profile(ctx, uid)
			standings = append(standings, domain.MemberStanding{
				DisplayName: profile.DisplayName,
				PhotoURL:    profile.PhotoURL,
				ELO:         domain.Elo(scores[uid], predictions[uid]),
			})
		}
		sort.SliceStable(standings, func(i, j int) bool {
			return standings[i].ELO > standings[j].ELO
		})
		result = standings
	})

	if fail != "" {
		return replyString(sess, "memb", fail)
	}
	return replyJSON(sess, "memb", result)
}
