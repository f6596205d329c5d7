package router

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/logger"
)

// ActionType names a moderation action.
type ActionType string

const (
	ActionRemoveMessages ActionType = "removeMessages"
	ActionAddRole        ActionType = "addRole"
	ActionRemoveRole     ActionType = "removeRole"
)

// maxBulkDelete is the platform limit for one bulk delete.
const maxBulkDelete = 100

// RoleIDList is a list of role ids. In JSON it is either an array or a
// single comma separated string.
type RoleIDList []string

func (l *RoleIDList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = nil
		for _, id := range strings.Split(s, ",") {
			if id = strings.TrimSpace(id); id != "" {
				*l = append(*l, id)
			}
		}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return fmt.Errorf("role ids: %w", err)
	}
	*l = ids
	return nil
}

// ActionParams describes a moderation action.
type ActionParams struct {
	ActionType           ActionType `json:"actionType"`
	ChannelID            string     `json:"channelId,omitempty"`
	RemoveMessagesNumber int        `json:"removeMessagesNumber,omitempty"`
	GuildID              string     `json:"guildId,omitempty"`
	UserID               string     `json:"userId,omitempty"`
	RoleUpdateIDs        RoleIDList `json:"roleUpdateIds,omitempty"`
}

// SendResult identifies a sent message.
type SendResult struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// ActionResult reports the action that completed.
type ActionResult struct {
	Action ActionType `json:"action"`
}

// Platforms resolves the ready connection of a token.
type Platforms interface {
	Platform(token string) (Platform, error)
}

// Executor runs outbound commands on behalf of callers.
type Executor struct {
	platforms Platforms
	composer  *Composer
	bus       domain.EventBus

	ConfirmTimeout time.Duration
}

// NewExecutor creates an executor. bus may be nil.
func NewExecutor(platforms Platforms, composer *Composer, bus domain.EventBus) *Executor {
	return &Executor{
		platforms:      platforms,
		composer:       composer,
		bus:            bus,
		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

// SendMessage composes and sends a message.
func (e *Executor) SendMessage(ctx context.Context, token string, p *MessageParams) (res *SendResult, err error) {
	defer func() { e.record("send.message", p.ChannelID, err) }()

	plat, err := e.platforms.Platform(token)
	if err != nil {
		return nil, err
	}
	ch, err := textChannel(ctx, plat, p.ChannelID)
	if err != nil {
		return nil, err
	}

	msg, err := e.composer.Compose(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	sent, err := plat.SendMessage(ctx, ch.ID, msg)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	return &SendResult{ChannelID: ch.ID, MessageID: sent.ID}, nil
}

// SendAction performs a moderation action.
func (e *Executor) SendAction(ctx context.Context, token string, p *ActionParams) (res *ActionResult, err error) {
	defer func() { e.record("send.action", string(p.ActionType), err) }()

	plat, err := e.platforms.Platform(token)
	if err != nil {
		return nil, err
	}

	switch p.ActionType {
	case ActionRemoveMessages:
		err = removeMessages(ctx, plat, p.ChannelID, p.RemoveMessagesNumber)
	case ActionAddRole, ActionRemoveRole:
		err = updateRoles(ctx, plat, p)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, p.ActionType)
	}
	if err != nil {
		return nil, err
	}
	return &ActionResult{Action: p.ActionType}, nil
}

// SendConfirmation posts a yes/no prompt and waits for the first answer.
// Success is false only when the token is not ready or the channel cannot be
// used; failures after that report success with a nil answer.
func (e *Executor) SendConfirmation(ctx context.Context, token string, p *ConfirmParams) ConfirmResult {
	plat, err := e.platforms.Platform(token)
	if err != nil {
		e.record("send.confirmation", p.ChannelID, err)
		return ConfirmResult{}
	}
	ch, err := textChannel(ctx, plat, p.ChannelID)
	if err != nil {
		e.record("send.confirmation", p.ChannelID, err)
		return ConfirmResult{}
	}

	msg, err := e.composer.Compose(ctx, &p.MessageParams)
	if err != nil {
		e.record("send.confirmation", ch.ID, err)
		return ConfirmResult{Success: true}
	}
	msg.Components = confirmButtons(p)

	clicks, bind, stop := plat.CollectComponents(ch.ID)
	defer stop()
	sent, err := plat.SendMessage(ctx, ch.ID, msg)
	if err != nil {
		e.record("send.confirmation", ch.ID, err)
		return ConfirmResult{Success: true}
	}
	bind(sent.ID)

	timeout := e.ConfirmTimeout
	if p.Timeout > 0 {
		timeout = time.Duration(p.Timeout) * time.Second
	}
	pr := &prompt{plat: plat, channelID: ch.ID, messageID: sent.ID}
	confirmed := pr.await(ctx, clicks, timeout)

	e.record("send.confirmation", ch.ID, nil)
	return ConfirmResult{Confirmed: confirmed, Success: true}
}

func (e *Executor) record(command, subject string, err error) {
	data := map[string]interface{}{"command": command}
	t := domain.EventCommandExecuted
	if err != nil {
		t = domain.EventCommandFailed
		data["error"] = err.Error()
		logger.WarnCF("executor", "Command failed", map[string]interface{}{
			"command": command,
			"subject": subject,
			"error":   err.Error(),
		})
	}
	if e.bus != nil {
		e.bus.Publish(domain.NewEvent(t, domain.EntityID(subject), data))
	}
}

func isTextBased(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeDM, discordgo.ChannelTypeGroupDM,
		discordgo.ChannelTypeGuildNews, discordgo.ChannelTypeGuildVoice,
		discordgo.ChannelTypeGuildNewsThread, discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread:
		return true
	}
	return false
}

func textChannel(ctx context.Context, plat Platform, channelID string) (*discordgo.Channel, error) {
	if channelID == "" {
		return nil, ErrChannelNotFound
	}
	ch, err := plat.Channel(ctx, channelID)
	if err != nil || ch == nil {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	if !isTextBased(ch.Type) {
		return nil, fmt.Errorf("%w: %s", ErrNotTextChannel, channelID)
	}
	return ch, nil
}

func removeMessages(ctx context.Context, plat Platform, channelID string, n int) error {
	ch, err := textChannel(ctx, plat, channelID)
	if err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	n = min(n, maxBulkDelete)

	msgs, err := plat.ChannelMessages(ctx, ch.ID, n)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}

	switch len(ids) {
	case 0:
		return nil
	case 1:
		return plat.DeleteMessage(ctx, ch.ID, ids[0])
	}
	return plat.BulkDeleteMessages(ctx, ch.ID, ids)
}

func updateRoles(ctx context.Context, plat Platform, p *ActionParams) error {
	guild, err := plat.Guild(ctx, p.GuildID)
	if err != nil || guild == nil {
		return fmt.Errorf("%w: %s", ErrGuildNotFound, p.GuildID)
	}
	user, err := plat.User(ctx, p.UserID)
	if err != nil || user == nil {
		return fmt.Errorf("%w: user %s", ErrMemberNotFound, p.UserID)
	}
	member, err := plat.Member(ctx, guild.ID, user.ID)
	if err != nil || member == nil {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, user.ID)
	}

	for _, roleID := range p.RoleUpdateIDs {
		held := slices.Contains(member.Roles, roleID)
		switch {
		case p.ActionType == ActionAddRole && !held:
			err = plat.AddRole(ctx, guild.ID, user.ID, roleID)
		case p.ActionType == ActionRemoveRole && held:
			err = plat.RemoveRole(ctx, guild.ID, user.ID, roleID)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", p.ActionType, roleID, err)
		}
	}
	return nil
}
