package router

import "time"

// EventKind names the class of platform event a listener subscribes to.
// The values are the trigger types workflow executions send on registration.
type EventKind string

const (
	KindMessage        EventKind = "message"
	KindDirectMessage  EventKind = "direct-message"
	KindReactionAdd    EventKind = "message-reaction-add"
	KindReactionRemove EventKind = "message-reaction-remove"
	KindMemberJoin     EventKind = "user-join"
	KindMemberLeave    EventKind = "user-leave"
	KindMemberUpdate   EventKind = "user-update"
	KindRoleCreate     EventKind = "role-create"
	KindRoleDelete     EventKind = "role-delete"
	KindRoleUpdate     EventKind = "role-update"
)

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	switch k {
	case KindMessage, KindDirectMessage, KindReactionAdd, KindReactionRemove,
		KindMemberJoin, KindMemberLeave, KindMemberUpdate,
		KindRoleCreate, KindRoleDelete, KindRoleUpdate:
		return true
	}
	return false
}

// IsMessage reports whether k carries message content.
func (k EventKind) IsMessage() bool {
	return k == KindMessage || k == KindDirectMessage
}

// Event is an inbound platform event. The concrete types form a closed set:
// *MessageEvent, *ReactionEvent, *MemberEvent, *MemberUpdateEvent,
// *RoleEvent and *RoleUpdateEvent.
type Event interface {
	Kind() EventKind
	Scope() Scope
}

// Scope is the part of an event the common filters look at. Empty fields
// mean the event does not carry that dimension.
type Scope struct {
	GuildID   string
	ChannelID string
	Actor     *User
	// ActorRoles is nil when the actor's roles are unknown.
	ActorRoles []string
}

// User is a platform account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
	System   bool   `json:"system"`
}

// Attachment is a file attached to an inbound message.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size"`
}

// Message is the router's view of a platform message.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	Content     string
	Author      *User
	MemberRoles []string
	Mentions    []string
	Attachments []Attachment
	CreatedAt   time.Time

	// ReferenceID is the id of the message this one replies to, if any.
	ReferenceID        string
	ReferenceChannelID string
}

// MessageEvent is a message posted in a guild channel (KindMessage) or in a
// direct-message channel (KindDirectMessage).
type MessageEvent struct {
	Message *Message
	Direct  bool
}

func (e *MessageEvent) Kind() EventKind {
	if e.Direct {
		return KindDirectMessage
	}
	return KindMessage
}

func (e *MessageEvent) Scope() Scope {
	return Scope{
		GuildID:    e.Message.GuildID,
		ChannelID:  e.Message.ChannelID,
		Actor:      e.Message.Author,
		ActorRoles: e.Message.MemberRoles,
	}
}

// HasReference reports whether the message replies to another message.
func (e *MessageEvent) HasReference() bool {
	return e.Message.ReferenceID != ""
}

// ReactionEvent is a reaction added to or removed from a message.
type ReactionEvent struct {
	Removed   bool
	GuildID   string
	ChannelID string
	MessageID string
	Emoji     string
	User      *User
	// MemberRoles are the reacting member's roles (guild reactions only).
	MemberRoles []string
}

func (e *ReactionEvent) Kind() EventKind {
	if e.Removed {
		return KindReactionRemove
	}
	return KindReactionAdd
}

func (e *ReactionEvent) Scope() Scope {
	return Scope{
		GuildID:    e.GuildID,
		ChannelID:  e.ChannelID,
		Actor:      e.User,
		ActorRoles: e.MemberRoles,
	}
}

// Member is a guild member snapshot.
type Member struct {
	GuildID  string    `json:"guildId"`
	User     *User     `json:"user"`
	Nick     string    `json:"nick,omitempty"`
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joinedAt"`
	Pending  bool      `json:"pending"`
}

// MemberEvent is a member joining (Left=false) or leaving a guild.
type MemberEvent struct {
	Left   bool
	Member *Member
}

func (e *MemberEvent) Kind() EventKind {
	if e.Left {
		return KindMemberLeave
	}
	return KindMemberJoin
}

func (e *MemberEvent) Scope() Scope {
	return Scope{GuildID: e.Member.GuildID}
}

// MemberUpdateEvent is a change to a guild member. Old is nil when the
// previous state was not cached.
type MemberUpdateEvent struct {
	Old *Member
	New *Member
}

func (e *MemberUpdateEvent) Kind() EventKind { return KindMemberUpdate }

func (e *MemberUpdateEvent) Scope() Scope {
	return Scope{GuildID: e.New.GuildID}
}

// Role is a guild role snapshot. The fields compared by Equivalent are the
// ones a user can change from the role settings screen.
type Role struct {
	ID           string `json:"id"`
	GuildID      string `json:"guildId"`
	Name         string `json:"name"`
	Color        int    `json:"color"`
	Hoist        bool   `json:"hoist"`
	Position     int    `json:"position"`
	Permissions  int64  `json:"permissions,string"`
	Managed      bool   `json:"managed"`
	Mentionable  bool   `json:"mentionable"`
	Icon         string `json:"icon,omitempty"`
	UnicodeEmoji string `json:"unicodeEmoji,omitempty"`
}

// Equivalent reports whether no meaningful field differs between r and o.
// Position is not part of the comparison.
func (r *Role) Equivalent(o *Role) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Name == o.Name &&
		r.Color == o.Color &&
		r.Hoist == o.Hoist &&
		r.Permissions == o.Permissions &&
		r.Mentionable == o.Mentionable &&
		r.Icon == o.Icon &&
		r.UnicodeEmoji == o.UnicodeEmoji
}

// RoleEvent is a role created (Deleted=false) or deleted in a guild.
type RoleEvent struct {
	Deleted bool
	Role    *Role
}

func (e *RoleEvent) Kind() EventKind {
	if e.Deleted {
		return KindRoleDelete
	}
	return KindRoleCreate
}

func (e *RoleEvent) Scope() Scope {
	return Scope{GuildID: e.Role.GuildID}
}

// RoleUpdateEvent is a change to a role. Old is nil when the previous state
// was not cached.
type RoleUpdateEvent struct {
	Old *Role
	New *Role
}

func (e *RoleUpdateEvent) Kind() EventKind { return KindRoleUpdate }

func (e *RoleUpdateEvent) Scope() Scope {
	return Scope{GuildID: e.New.GuildID}
}

// Unchanged reports whether the update touched none of the meaningful fields.
func (e *RoleUpdateEvent) Unchanged() bool {
	return e.Old != nil && e.Old.Equivalent(e.New)
}
