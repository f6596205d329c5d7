package router

import (
	"context"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discord-router/pkg/logger"
)

// NamedID is one entry of a list response.
type NamedID struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ListGuilds returns the guilds of the token's account. A token that is not
// ready yields an empty list.
func (e *Executor) ListGuilds(ctx context.Context, token string) []NamedID {
	out := []NamedID{}
	plat, err := e.platforms.Platform(token)
	if err != nil {
		return out
	}
	guilds, err := plat.Guilds(ctx)
	if err != nil {
		logger.WarnCF("executor", "List guilds failed", map[string]interface{}{"error": err.Error()})
		return out
	}
	for _, g := range guilds {
		out = append(out, NamedID{Name: g.Name, ID: g.ID})
	}
	return out
}

// ListChannels returns the text and announcement channels of the given guilds.
func (e *Executor) ListChannels(ctx context.Context, token string, guildIDs []string) []NamedID {
	out := []NamedID{}
	plat, err := e.platforms.Platform(token)
	if err != nil {
		return out
	}
	for _, gid := range dedupe(guildIDs) {
		channels, err := plat.GuildChannels(ctx, gid)
		if err != nil {
			logger.WarnCF("executor", "List channels failed", map[string]interface{}{
				"guild_id": gid,
				"error":    err.Error(),
			})
			continue
		}
		for _, c := range channels {
			if c.Type == discordgo.ChannelTypeGuildText || c.Type == discordgo.ChannelTypeGuildNews {
				out = append(out, NamedID{Name: c.Name, ID: c.ID})
			}
		}
	}
	return out
}

// ListRoles returns the roles of the given guilds.
func (e *Executor) ListRoles(ctx context.Context, token string, guildIDs []string) []NamedID {
	out := []NamedID{}
	plat, err := e.platforms.Platform(token)
	if err != nil {
		return out
	}
	for _, gid := range dedupe(guildIDs) {
		roles, err := plat.GuildRoles(ctx, gid)
		if err != nil {
			logger.WarnCF("executor", "List roles failed", map[string]interface{}{
				"guild_id": gid,
				"error":    err.Error(),
			})
			continue
		}
		for _, r := range roles {
			out = append(out, NamedID{Name: r.Name, ID: r.ID})
		}
	}
	return out
}

func dedupe(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
