package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discord-router/pkg/router"
)

func toUser(u *discordgo.User) *router.User {
	if u == nil {
		return nil
	}
	return &router.User{ID: u.ID, Username: u.Username, Bot: u.Bot, System: u.System}
}

func toMessage(m *discordgo.Message) *router.Message {
	msg := &router.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Author:    toUser(m.Author),
		CreatedAt: m.Timestamp,
	}
	if m.Member != nil {
		msg.MemberRoles = m.Member.Roles
	}
	for _, u := range m.Mentions {
		msg.Mentions = append(msg.Mentions, u.ID)
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, router.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		msg.ReferenceID = ref.MessageID
		msg.ReferenceChannelID = ref.ChannelID
	}
	return msg
}

func toMember(m *discordgo.Member, guildID string) *router.Member {
	if m == nil {
		return nil
	}
	if m.GuildID != "" {
		guildID = m.GuildID
	}
	return &router.Member{
		GuildID:  guildID,
		User:     toUser(m.User),
		Nick:     m.Nick,
		Roles:    append([]string(nil), m.Roles...),
		JoinedAt: m.JoinedAt,
		Pending:  m.Pending,
	}
}

func toRole(r *discordgo.Role, guildID string) *router.Role {
	if r == nil {
		return nil
	}
	return &router.Role{
		ID:           r.ID,
		GuildID:      guildID,
		Name:         r.Name,
		Color:        r.Color,
		Hoist:        r.Hoist,
		Position:     r.Position,
		Permissions:  r.Permissions,
		Managed:      r.Managed,
		Mentionable:  r.Mentionable,
		Icon:         r.Icon,
		UnicodeEmoji: r.UnicodeEmoji,
	}
}

func emojiName(e discordgo.Emoji) string {
	if e.ID != "" {
		return e.Name + ":" + e.ID
	}
	return e.Name
}
