package discord

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discord-router/pkg/router"
)

// roleCache keeps the last seen state of every role so updates can be
// compared with what they replace. The session state is already updated
// when handlers run, so it cannot serve as the "before" value.
type roleCache struct {
	mu    sync.Mutex
	roles map[string]map[string]*router.Role // guild id → role id
}

func newRoleCache() *roleCache {
	return &roleCache{roles: make(map[string]map[string]*router.Role)}
}

func (c *roleCache) seed(guildID string, roles []*discordgo.Role) {
	set := make(map[string]*router.Role, len(roles))
	for _, r := range roles {
		set[r.ID] = toRole(r, guildID)
	}
	c.mu.Lock()
	c.roles[guildID] = set
	c.mu.Unlock()
}

// put stores r and returns the role it replaced, or nil.
func (c *roleCache) put(r *router.Role) *router.Role {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.roles[r.GuildID]
	if !ok {
		set = make(map[string]*router.Role)
		c.roles[r.GuildID] = set
	}
	old := set[r.ID]
	set[r.ID] = r
	return old
}

// remove forgets a role and returns its last known state, or nil.
func (c *roleCache) remove(guildID, roleID string) *router.Role {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.roles[guildID][roleID]
	delete(c.roles[guildID], roleID)
	return old
}

func (c *roleCache) forget(guildID string) {
	c.mu.Lock()
	delete(c.roles, guildID)
	c.mu.Unlock()
}

// collector routes component interactions to the prompt waiting on the
// message they belong to. A waiter opens on a channel before its prompt is
// sent and is bound to the message id once the send returns; clicks that
// arrive in between are held and replayed on bind. Each waiter receives at
// most one click.
type collector struct {
	mu      sync.Mutex
	waiters map[*waiter]struct{}
}

type waiter struct {
	channelID string
	messageID string // empty until bound
	ch        chan router.ComponentClick
	held      []heldClick
}

type heldClick struct {
	messageID string
	click     router.ComponentClick
	ack       func()
}

const maxHeldClicks = 16

func newCollector() *collector {
	return &collector{waiters: make(map[*waiter]struct{})}
}

func (c *collector) open(channelID string) (<-chan router.ComponentClick, func(string), func()) {
	w := &waiter{channelID: channelID, ch: make(chan router.ComponentClick, 1)}
	c.mu.Lock()
	c.waiters[w] = struct{}{}
	c.mu.Unlock()

	bind := func(messageID string) {
		c.mu.Lock()
		if _, ok := c.waiters[w]; !ok {
			c.mu.Unlock()
			return
		}
		w.messageID = messageID
		for _, h := range w.held {
			if h.messageID == messageID {
				delete(c.waiters, w)
				c.mu.Unlock()
				h.ack()
				w.ch <- h.click
				return
			}
		}
		w.held = nil
		c.mu.Unlock()
	}
	stop := func() {
		c.mu.Lock()
		delete(c.waiters, w)
		c.mu.Unlock()
	}
	return w.ch, bind, stop
}

// route delivers click to the waiter bound to messageID, or holds it for
// unbound waiters on channelID. It reports whether a waiter took the click.
func (c *collector) route(channelID, messageID string, click router.ComponentClick, ack func()) bool {
	if messageID == "" {
		return false
	}
	c.mu.Lock()
	for w := range c.waiters {
		if w.messageID == messageID {
			delete(c.waiters, w)
			c.mu.Unlock()
			ack()
			w.ch <- click
			return true
		}
	}

	held := false
	for w := range c.waiters {
		if w.messageID == "" && w.channelID == channelID && len(w.held) < maxHeldClicks {
			w.held = append(w.held, heldClick{messageID: messageID, click: click, ack: ack})
			held = true
		}
	}
	c.mu.Unlock()
	return held
}
