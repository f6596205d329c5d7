package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// fakeConn is an in-memory Connection.
type fakeConn struct {
	token string
	self  string

	fetches  atomic.Int32
	fetchErr error
	refs     map[string]*Message

	opens    atomic.Int32
	openGate chan struct{}
	openErr  error
	closed   atomic.Bool

	mu       sync.Mutex
	channels map[string]*discordgo.Channel
	history  []*discordgo.Message
	sent     []*discordgo.MessageSend
	deleted  []string
	bulk     [][]string
	guilds   map[string]*discordgo.Guild
	members  map[string]*discordgo.Member
	roleOps  []string
	clicks   chan ComponentClick
	stopped  int

	collecting    bool
	sentCollected bool
	bound         string
}

func newFakeConn(token string) *fakeConn {
	return &fakeConn{
		token:    token,
		self:     "self-" + token,
		refs:     map[string]*Message{},
		channels: map[string]*discordgo.Channel{},
		guilds:   map[string]*discordgo.Guild{},
		members:  map[string]*discordgo.Member{},
		clicks:   make(chan ComponentClick, 1),
	}
}

func (f *fakeConn) Token() string  { return f.token }
func (f *fakeConn) SelfID() string { return f.self }

func (f *fakeConn) FetchMessage(_ context.Context, _, messageID string) (*Message, error) {
	f.fetches.Add(1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	m, ok := f.refs[messageID]
	if !ok {
		return nil, errors.New("unknown message")
	}
	return m, nil
}

func (f *fakeConn) Open(ctx context.Context) error {
	f.opens.Add(1)
	if f.openGate != nil {
		select {
		case <-f.openGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.openErr
}

func (f *fakeConn) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeConn) Channel(_ context.Context, id string) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return nil, errors.New("404 channel")
	}
	return ch, nil
}

func (f *fakeConn) SendMessage(_ context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	f.sentCollected = f.collecting
	return &discordgo.Message{ID: "sent-1", ChannelID: channelID}, nil
}

func (f *fakeConn) ChannelMessages(_ context.Context, _ string, limit int) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.history) {
		limit = len(f.history)
	}
	return f.history[:limit], nil
}

func (f *fakeConn) DeleteMessage(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeConn) BulkDeleteMessages(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk = append(f.bulk, ids)
	return nil
}

func (f *fakeConn) Guild(_ context.Context, id string) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guilds[id]
	if !ok {
		return nil, errors.New("404 guild")
	}
	return g, nil
}

func (f *fakeConn) User(_ context.Context, id string) (*discordgo.User, error) {
	return &discordgo.User{ID: id, Username: "user-" + id}, nil
}

func (f *fakeConn) Member(_ context.Context, guildID, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[guildID+"/"+userID]
	if !ok {
		return nil, errors.New("404 member")
	}
	return m, nil
}

func (f *fakeConn) AddRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleOps = append(f.roleOps, "+"+roleID)
	m := f.members[guildID+"/"+userID]
	m.Roles = append(m.Roles, roleID)
	return nil
}

func (f *fakeConn) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleOps = append(f.roleOps, "-"+roleID)
	m := f.members[guildID+"/"+userID]
	kept := m.Roles[:0]
	for _, r := range m.Roles {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	m.Roles = kept
	return nil
}

func (f *fakeConn) Guilds(context.Context) ([]*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*discordgo.Guild, 0, len(f.guilds))
	for _, g := range f.guilds {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeConn) GuildChannels(_ context.Context, guildID string) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.Channel
	for _, c := range f.channels {
		if c.GuildID == guildID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConn) GuildRoles(_ context.Context, guildID string) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guilds[guildID]
	if !ok {
		return nil, errors.New("404 guild")
	}
	return g.Roles, nil
}

func (f *fakeConn) CollectComponents(string) (<-chan ComponentClick, func(string), func()) {
	f.mu.Lock()
	f.collecting = true
	f.mu.Unlock()

	bind := func(messageID string) {
		f.mu.Lock()
		f.bound = messageID
		f.mu.Unlock()
	}
	stop := func() {
		f.mu.Lock()
		f.collecting = false
		f.stopped++
		f.mu.Unlock()
	}
	return f.clicks, bind, stop
}

func (f *fakeConn) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

var _ Connection = (*fakeConn)(nil)

// recorder is a ReplyAddress that keeps every delivery.
type recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	fail       error
}

func (r *recorder) Deliver(d Delivery) error {
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
	return nil
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deliveries))
	for _, d := range r.deliveries {
		out = append(out, d.ListenerID)
	}
	return out
}

// panicker is a ReplyAddress that panics on delivery.
type panicker struct{}

func (panicker) Deliver(Delivery) error { panic("reply handle gone") }

// staticPlatforms resolves every ready token to the same fake.
type staticPlatforms map[string]*fakeConn

func (s staticPlatforms) Platform(token string) (Platform, error) {
	c, ok := s[token]
	if !ok {
		return nil, ErrNotReady
	}
	return c, nil
}
