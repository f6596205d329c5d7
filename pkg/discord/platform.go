package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discord-router/pkg/router"
)

// FetchMessage loads a message by id, used to resolve replies.
func (c *Connection) FetchMessage(ctx context.Context, channelID, messageID string) (*router.Message, error) {
	m, err := c.client.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return toMessage(m), nil
}

func (c *Connection) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if ch, err := c.session.State.Channel(channelID); err == nil {
		return ch, nil
	}
	return c.client.Channel(channelID, discordgo.WithContext(ctx))
}

func (c *Connection) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	return c.client.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
}

func (c *Connection) ChannelMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	return c.client.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
}

func (c *Connection) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.client.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (c *Connection) BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	return c.client.ChannelMessagesBulkDelete(channelID, messageIDs, discordgo.WithContext(ctx))
}

func (c *Connection) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if g, err := c.session.State.Guild(guildID); err == nil {
		return g, nil
	}
	return c.client.Guild(guildID, discordgo.WithContext(ctx))
}

func (c *Connection) User(ctx context.Context, userID string) (*discordgo.User, error) {
	return c.client.User(userID, discordgo.WithContext(ctx))
}

// Member always asks the API so role checks see the current role set.
func (c *Connection) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	return c.client.GuildMember(guildID, userID, discordgo.WithContext(ctx))
}

func (c *Connection) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.client.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (c *Connection) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.client.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

// Guilds lists the guilds held in the session state. State entries are
// copied under the state lock; gateway updates mutate them in place.
func (c *Connection) Guilds(context.Context) ([]*discordgo.Guild, error) {
	st := c.session.State
	st.RLock()
	defer st.RUnlock()
	out := make([]*discordgo.Guild, 0, len(st.Guilds))
	for _, g := range st.Guilds {
		out = append(out, &discordgo.Guild{ID: g.ID, Name: g.Name})
	}
	return out, nil
}

func (c *Connection) GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	if channels := c.stateChannels(guildID); len(channels) > 0 {
		return channels, nil
	}
	return c.client.GuildChannels(guildID, discordgo.WithContext(ctx))
}

func (c *Connection) GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	if roles := c.stateRoles(guildID); len(roles) > 0 {
		return roles, nil
	}
	return c.client.GuildRoles(guildID, discordgo.WithContext(ctx))
}

// stateGuild must be called with the state read lock held.
func (c *Connection) stateGuild(guildID string) *discordgo.Guild {
	for _, g := range c.session.State.Guilds {
		if g.ID == guildID {
			return g
		}
	}
	return nil
}

func (c *Connection) stateChannels(guildID string) []*discordgo.Channel {
	st := c.session.State
	st.RLock()
	defer st.RUnlock()
	g := c.stateGuild(guildID)
	if g == nil {
		return nil
	}
	out := make([]*discordgo.Channel, 0, len(g.Channels))
	for _, ch := range g.Channels {
		out = append(out, &discordgo.Channel{
			ID:       ch.ID,
			GuildID:  ch.GuildID,
			Name:     ch.Name,
			Type:     ch.Type,
			Position: ch.Position,
			ParentID: ch.ParentID,
		})
	}
	return out
}

func (c *Connection) stateRoles(guildID string) []*discordgo.Role {
	st := c.session.State
	st.RLock()
	defer st.RUnlock()
	g := c.stateGuild(guildID)
	if g == nil {
		return nil
	}
	out := make([]*discordgo.Role, 0, len(g.Roles))
	for _, r := range g.Roles {
		out = append(out, &discordgo.Role{
			ID:       r.ID,
			Name:     r.Name,
			Color:    r.Color,
			Position: r.Position,
			Managed:  r.Managed,
		})
	}
	return out
}

func (c *Connection) CollectComponents(channelID string) (<-chan router.ComponentClick, func(string), func()) {
	return c.collector.open(channelID)
}

var _ router.Connection = (*Connection)(nil)
