package router

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Credential identifies one bot account.
type Credential struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
}

// ComponentClick is a button press on a message the router sent.
type ComponentClick struct {
	CustomID string
	UserID   string
}

// Platform is the outbound surface of a connection used by the command
// executor and the list operations.
type Platform interface {
	// Channel resolves a channel, from the session cache when possible.
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
	ChannelMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error

	Guild(ctx context.Context, guildID string) (*discordgo.Guild, error)
	User(ctx context.Context, userID string) (*discordgo.User, error)
	Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error

	// Guilds lists the guilds the account is in.
	Guilds(ctx context.Context) ([]*discordgo.Guild, error)
	GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error)

	// CollectComponents starts collecting component interactions in
	// channelID before the prompt is sent. bind names the prompt's message;
	// the first click on it is acknowledged and delivered, including a click
	// that arrived before bind. stop ends the collection.
	CollectComponents(channelID string) (clicks <-chan ComponentClick, bind func(messageID string), stop func())
}

// Connection is one live platform session.
type Connection interface {
	Source
	Platform

	// Open performs the gateway handshake. It returns once the session is
	// ready or failed.
	Open(ctx context.Context) error
	Close() error
}

// EventSink receives the events a connection converts from the gateway.
type EventSink func(src Source, ev Event)

// Dialer constructs an unopened connection for cred.
type Dialer func(cred Credential, sink EventSink) (Connection, error)
