package router

import (
	"context"
	"fmt"
	"slices"

	"github.com/sipeed/discord-router/pkg/logger"
)

// Source is the connection an inbound event arrived on.
type Source interface {
	Token() string
	// SelfID is the user id of the router's own account on this connection.
	SelfID() string
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
}

// Dispatcher evaluates inbound events against the listeners of their token.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over reg.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// reference resolves the message a MessageEvent replies to at most once per
// dispatch pass. The outcome, including a failure, is kept for the pass.
type reference struct {
	src       Source
	channelID string
	messageID string
	fetched   bool
	result    *Message
	err       error
}

func (r *reference) get(ctx context.Context) (*Message, error) {
	if !r.fetched {
		r.fetched = true
		r.result, r.err = r.src.FetchMessage(ctx, r.channelID, r.messageID)
	}
	return r.result, r.err
}

// Dispatch evaluates ev against every listener registered for the source's
// token and delivers it to those that match. It returns the number of
// successful deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, src Source, ev Event) int {
	if ru, ok := ev.(*RoleUpdateEvent); ok && ru.Unchanged() {
		return 0
	}

	var ref *reference
	if me, ok := ev.(*MessageEvent); ok && me.HasReference() {
		ref = &reference{src: src, channelID: me.Message.ReferenceChannelID, messageID: me.Message.ReferenceID}
		if ref.channelID == "" {
			ref.channelID = me.Message.ChannelID
		}
	}

	delivered := 0
	for _, l := range d.registry.Snapshot(src.Token()) {
		if d.evaluate(ctx, src, l, ev, ref) {
			delivered++
		}
	}
	return delivered
}

func (d *Dispatcher) evaluate(ctx context.Context, src Source, l *Listener, ev Event, ref *reference) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("router", "Listener evaluation panicked", map[string]interface{}{
				"listener_id": l.ID,
				"panic":       fmt.Sprint(r),
			})
			ok = false
		}
	}()

	if l.Kind != ev.Kind() {
		return false
	}
	if !matchScope(src, l, ev) {
		return false
	}

	var refMsg *Message
	if me, isMsg := ev.(*MessageEvent); isMsg {
		if !matchContent(src, l, me) {
			return false
		}
		if ref != nil {
			msg, err := ref.get(ctx)
			if err != nil {
				if l.Filter.Message.ReferenceRequired {
					logger.WarnCF("router", "Referenced message unavailable, listener skipped", map[string]interface{}{
						"listener_id":  l.ID,
						"reference_id": me.Message.ReferenceID,
						"error":        err.Error(),
					})
					return false
				}
			} else {
				refMsg = msg
			}
		}
	}

	err := l.Reply.Deliver(Delivery{
		ListenerID: l.ID,
		Kind:       l.Kind,
		Payload:    buildPayload(l, ev, refMsg),
	})
	if err != nil {
		logger.WarnCF("router", "Delivery failed", map[string]interface{}{
			"listener_id": l.ID,
			"error":       err.Error(),
		})
		return false
	}
	return true
}

// matchScope applies the self-trigger guard and the id filters.
func matchScope(src Source, l *Listener, ev Event) bool {
	f := &l.Filter
	scope := ev.Scope()
	kind := ev.Kind()
	direct := kind == KindDirectMessage
	actorFiltered := kind.IsMessage() || kind == KindReactionAdd || kind == KindReactionRemove

	if actorFiltered && scope.Actor != nil {
		if !f.ExternalBotTrigger {
			if scope.Actor.Bot || scope.Actor.System {
				return false
			}
		} else if scope.Actor.ID == src.SelfID() {
			return false
		}
	}

	if !direct && len(f.GuildIDs) > 0 && scope.GuildID != "" && !slices.Contains(f.GuildIDs, scope.GuildID) {
		return false
	}

	if !direct && actorFiltered && len(f.RoleIDs) > 0 && !containsAny(f.RoleIDs, scope.ActorRoles) {
		return false
	}

	if !direct && len(f.ChannelIDs) > 0 && scope.ChannelID != "" && !slices.Contains(f.ChannelIDs, scope.ChannelID) {
		return false
	}

	if re, isReaction := ev.(*ReactionEvent); isReaction && len(f.MessageIDs) > 0 && !slices.Contains(f.MessageIDs, re.MessageID) {
		return false
	}

	return true
}

// matchContent applies the message predicate of a message listener.
func matchContent(src Source, l *Listener, me *MessageEvent) bool {
	mf := l.Filter.Message
	if mf == nil {
		return true
	}

	if mf.ReferenceRequired && !me.HasReference() {
		return false
	}
	if mf.AttachmentsRequired && len(me.Message.Attachments) == 0 {
		return false
	}

	if mf.Pattern == PatternBotMention {
		return slices.Contains(me.Message.Mentions, src.SelfID())
	}
	return l.matcher != nil && l.matcher.MatchString(me.Message.Content)
}
