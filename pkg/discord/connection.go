package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discord-router/pkg/logger"
	"github.com/sipeed/discord-router/pkg/router"
)

// Intents covers every event kind the router dispatches.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsDirectMessageReactions |
	discordgo.IntentsMessageContent

// Connection is one bot session. It implements router.Connection.
type Connection struct {
	cred    router.Credential
	session *discordgo.Session
	client  Client
	sink    router.EventSink

	roles     *roleCache
	collector *collector

	mu        sync.RWMutex
	selfID    string
	ready     chan struct{}
	readyOnce sync.Once
	removers  []func()
}

// Dial creates an unopened connection. It has the router.Dialer signature.
func Dial(cred router.Credential, sink router.EventSink) (router.Connection, error) {
	return New(cred, sink)
}

// New creates an unopened connection for cred.
func New(cred router.Credential, sink router.EventSink) (*Connection, error) {
	installLogBridge()

	s, err := discordgo.New("Bot " + cred.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = Intents
	s.LogLevel = discordgo.LogWarning

	c := &Connection{
		cred:      cred,
		session:   s,
		client:    s,
		sink:      sink,
		roles:     newRoleCache(),
		collector: newCollector(),
		ready:     make(chan struct{}),
	}

	c.removers = append(c.removers,
		s.AddHandler(c.onReady),
		s.AddHandler(c.onGuildCreate),
		s.AddHandler(c.onGuildDelete),
		s.AddHandler(c.onMessageCreate),
		s.AddHandler(c.onReactionAdd),
		s.AddHandler(c.onReactionRemove),
		s.AddHandler(c.onMemberAdd),
		s.AddHandler(c.onMemberRemove),
		s.AddHandler(c.onMemberUpdate),
		s.AddHandler(c.onRoleCreate),
		s.AddHandler(c.onRoleUpdate),
		s.AddHandler(c.onRoleDelete),
		s.AddHandler(c.onInteraction),
	)
	return c, nil
}

// Token returns the credential token.
func (c *Connection) Token() string { return c.cred.Token }

// SelfID returns the bot user id once the session is ready.
func (c *Connection) SelfID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

// Open connects to the gateway and waits for the READY event.
func (c *Connection) Open(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		_ = c.session.Close()
		return fmt.Errorf("discord: waiting for ready: %w", ctx.Err())
	}
}

// Close detaches the handlers and closes the gateway session.
func (c *Connection) Close() error {
	c.mu.Lock()
	removers := c.removers
	c.removers = nil
	c.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	return c.session.Close()
}

func (c *Connection) emit(ev router.Event) {
	if c.sink != nil {
		c.sink(c, ev)
	}
}

// ---------------------------------------------------------------------------
// Gateway handlers
// ---------------------------------------------------------------------------

func (c *Connection) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.mu.Lock()
	if r.User != nil {
		c.selfID = r.User.ID
	}
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })

	logger.InfoCF("discord", "Gateway ready", map[string]interface{}{
		"client_id": c.cred.ClientID,
		"self_id":   c.SelfID(),
		"guilds":    len(r.Guilds),
	})
}

func (c *Connection) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	c.roles.seed(g.ID, g.Roles)
}

func (c *Connection) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild != nil && !g.Unavailable {
		c.roles.forget(g.ID)
	}
}

func (c *Connection) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil {
		return
	}
	c.emit(&router.MessageEvent{
		Message: toMessage(m.Message),
		Direct:  c.isDirect(m.ChannelID, m.GuildID),
	})
}

// isDirect decides by channel type when the channel is cached and by the
// absence of a guild otherwise.
func (c *Connection) isDirect(channelID, guildID string) bool {
	if ch, err := c.session.State.Channel(channelID); err == nil {
		return ch.Type == discordgo.ChannelTypeDM || ch.Type == discordgo.ChannelTypeGroupDM
	}
	return guildID == ""
}

func (c *Connection) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}
	c.emit(c.reaction(r.MessageReaction, r.Member, false))
}

func (c *Connection) onReactionRemove(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.MessageReaction == nil {
		return
	}
	c.emit(c.reaction(r.MessageReaction, nil, true))
}

// reaction resolves the reacting user from the event member, then the
// state cache, then the API.
func (c *Connection) reaction(r *discordgo.MessageReaction, member *discordgo.Member, removed bool) *router.ReactionEvent {
	ev := &router.ReactionEvent{
		Removed:   removed,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		Emoji:     emojiName(r.Emoji),
	}
	if member == nil && r.GuildID != "" {
		if m, err := c.session.State.Member(r.GuildID, r.UserID); err == nil {
			member = m
		}
	}
	if member != nil {
		ev.User = toUser(member.User)
		ev.MemberRoles = member.Roles
	}
	if ev.User == nil {
		if u, err := c.client.User(r.UserID); err == nil {
			ev.User = toUser(u)
		} else {
			ev.User = &router.User{ID: r.UserID}
		}
	}
	return ev
}

func (c *Connection) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil {
		return
	}
	c.emit(&router.MemberEvent{Member: toMember(m.Member, m.GuildID)})
}

func (c *Connection) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.Member == nil {
		return
	}
	c.emit(&router.MemberEvent{Left: true, Member: toMember(m.Member, m.GuildID)})
}

func (c *Connection) onMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.Member == nil {
		return
	}
	c.emit(&router.MemberUpdateEvent{
		Old: toMember(m.BeforeUpdate, m.GuildID),
		New: toMember(m.Member, m.GuildID),
	})
}

func (c *Connection) onRoleCreate(_ *discordgo.Session, r *discordgo.GuildRoleCreate) {
	if r.GuildRole == nil || r.Role == nil {
		return
	}
	role := toRole(r.Role, r.GuildID)
	c.roles.put(role)
	c.emit(&router.RoleEvent{Role: role})
}

func (c *Connection) onRoleUpdate(_ *discordgo.Session, r *discordgo.GuildRoleUpdate) {
	if r.GuildRole == nil || r.Role == nil {
		return
	}
	role := toRole(r.Role, r.GuildID)
	old := c.roles.put(role)
	c.emit(&router.RoleUpdateEvent{Old: old, New: role})
}

func (c *Connection) onRoleDelete(_ *discordgo.Session, r *discordgo.GuildRoleDelete) {
	role := c.roles.remove(r.GuildID, r.RoleID)
	if role == nil {
		role = &router.Role{ID: r.RoleID, GuildID: r.GuildID}
	}
	c.emit(&router.RoleEvent{Deleted: true, Role: role})
}

func (c *Connection) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent || i.Message == nil {
		return
	}
	click := router.ComponentClick{CustomID: i.MessageComponentData().CustomID}
	switch {
	case i.Member != nil && i.Member.User != nil:
		click.UserID = i.Member.User.ID
	case i.User != nil:
		click.UserID = i.User.ID
	}

	channelID := i.ChannelID
	if channelID == "" {
		channelID = i.Message.ChannelID
	}
	ack := func() {
		err := c.client.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		})
		if err != nil {
			logger.WarnCF("discord", "Interaction acknowledge failed", map[string]interface{}{
				"message_id": i.Message.ID,
				"error":      err.Error(),
			})
		}
	}
	c.collector.route(channelID, i.Message.ID, click, ack)
}
