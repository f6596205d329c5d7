package router

// Event names carried in the method field of delivered events.
const (
	EventMessageCreate         = "messageCreate"
	EventMessageReactionAdd    = "messageReactionAdd"
	EventMessageReactionRemove = "messageReactionRemove"
	EventGuildMemberAdd        = "guildMemberAdd"
	EventGuildMemberRemove     = "guildMemberRemove"
	EventGuildMemberUpdate     = "guildMemberUpdate"
	EventRoleCreate            = "roleCreate"
	EventRoleDelete            = "roleDelete"
	EventRoleUpdate            = "roleUpdate"
)

// EventName returns the delivery name for kind.
func EventName(kind EventKind) string {
	switch kind {
	case KindMessage, KindDirectMessage:
		return EventMessageCreate
	case KindReactionAdd:
		return EventMessageReactionAdd
	case KindReactionRemove:
		return EventMessageReactionRemove
	case KindMemberJoin:
		return EventGuildMemberAdd
	case KindMemberLeave:
		return EventGuildMemberRemove
	case KindMemberUpdate:
		return EventGuildMemberUpdate
	case KindRoleCreate:
		return EventRoleCreate
	case KindRoleDelete:
		return EventRoleDelete
	case KindRoleUpdate:
		return EventRoleUpdate
	}
	return string(kind)
}

// MessagePayload is delivered for message and direct-message listeners.
// Reference fields are nil when the message is not a reply or the
// referenced message could not be fetched.
type MessagePayload struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	GuildID     string       `json:"guildId,omitempty"`
	ChannelID   string       `json:"channelId"`
	AuthorID    string       `json:"authorId"`
	AuthorName  string       `json:"authorName"`
	AuthorIsBot bool         `json:"authorIsBot"`
	Timestamp   int64        `json:"timestamp"`
	ListenValue string       `json:"listenValue"`
	Attachments []Attachment `json:"attachments"`

	ReferenceID         *string `json:"referenceId"`
	ReferenceContent    *string `json:"referenceContent"`
	ReferenceAuthorID   *string `json:"referenceAuthorId"`
	ReferenceAuthorName *string `json:"referenceAuthorName"`
	ReferenceTimestamp  *int64  `json:"referenceTimestamp"`
}

// ReactionPayload is delivered for reaction listeners.
type ReactionPayload struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	GuildID   string `json:"guildId,omitempty"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Bot       bool   `json:"bot"`
}

// MemberUpdatePayload is delivered for member update listeners.
type MemberUpdatePayload struct {
	Old *Member `json:"old"`
	New *Member `json:"new"`
}

// RoleUpdatePayload is delivered for role update listeners.
type RoleUpdatePayload struct {
	Old *Role `json:"old"`
	New *Role `json:"new"`
}

func buildMessagePayload(l *Listener, m *Message, ref *Message) *MessagePayload {
	p := &MessagePayload{
		ID:          m.ID,
		Content:     m.Content,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		Timestamp:   m.CreatedAt.UnixMilli(),
		Attachments: m.Attachments,
	}
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	if m.Author != nil {
		p.AuthorID = m.Author.ID
		p.AuthorName = m.Author.Username
		p.AuthorIsBot = m.Author.Bot || m.Author.System
	}
	if l.Filter.Message != nil {
		p.ListenValue = l.Filter.Message.Value
	}

	if ref != nil {
		ts := ref.CreatedAt.UnixMilli()
		p.ReferenceID = &ref.ID
		p.ReferenceContent = &ref.Content
		p.ReferenceTimestamp = &ts
		if ref.Author != nil {
			p.ReferenceAuthorID = &ref.Author.ID
			p.ReferenceAuthorName = &ref.Author.Username
		}
	}
	return p
}

func buildPayload(l *Listener, ev Event, ref *Message) interface{} {
	switch e := ev.(type) {
	case *MessageEvent:
		return buildMessagePayload(l, e.Message, ref)
	case *ReactionEvent:
		p := &ReactionPayload{
			MessageID: e.MessageID,
			ChannelID: e.ChannelID,
			GuildID:   e.GuildID,
			Emoji:     e.Emoji,
		}
		if e.User != nil {
			p.UserID = e.User.ID
			p.Username = e.User.Username
			p.Bot = e.User.Bot
		}
		return p
	case *MemberEvent:
		return e.Member
	case *MemberUpdateEvent:
		return &MemberUpdatePayload{Old: e.Old, New: e.New}
	case *RoleEvent:
		return e.Role
	case *RoleUpdateEvent:
		return &RoleUpdatePayload{Old: e.Old, New: e.New}
	}
	return ev
}
