package router

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// zeroWidth stands in for an embed field name or value left empty.
const zeroWidth = "\u200b"

// EmbedField is one embed field. Fields keep their order.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// FileParam is a file to attach: an http(s) URL or a base64 data URI.
type FileParam struct {
	URL string `json:"url"`
}

// MessageParams describes an outbound message.
type MessageParams struct {
	ChannelID string `json:"channelId"`
	Content   string `json:"content,omitempty"`

	Embed         bool         `json:"embed,omitempty"`
	Title         string       `json:"title,omitempty"`
	URL           string       `json:"url,omitempty"`
	Description   string       `json:"description,omitempty"`
	Color         string       `json:"color,omitempty"`
	Timestamp     string       `json:"timestamp,omitempty"`
	FooterText    string       `json:"footerText,omitempty"`
	FooterIconURL string       `json:"footerIconUrl,omitempty"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	ThumbnailURL  string       `json:"thumbnailUrl,omitempty"`
	AuthorName    string       `json:"authorName,omitempty"`
	AuthorIconURL string       `json:"authorIconUrl,omitempty"`
	AuthorURL     string       `json:"authorUrl,omitempty"`
	Fields        []EmbedField `json:"fields,omitempty"`

	MentionRoles []string    `json:"mentionRoles,omitempty"`
	Files        []FileParam `json:"files,omitempty"`
}

var anyDataURI = regexp.MustCompile(`(?i)^data:([a-z]+/[a-z0-9.+-]+)?(;[^,]*)?;base64,`)

// timestampLayouts are tried in order; layouts without a zone are read in
// local time, a bare date as UTC midnight.
var timestampLayouts = []struct {
	layout string
	loc    *time.Location
}{
	{time.RFC3339Nano, time.UTC},
	{"2006-01-02T15:04:05.999999999", time.Local},
	{"2006-01-02T15:04", time.Local},
	{"2006-01-02 15:04:05.999999999", time.Local},
	{"2006-01-02", time.UTC},
}

// Composer turns MessageParams into a discordgo payload, downloading URL
// attachments.
type Composer struct {
	http     *resty.Client
	maxBytes int
}

// NewComposer creates a composer whose downloads time out after timeout and
// are limited to maxBytes each (0 = unlimited).
func NewComposer(timeout time.Duration, maxBytes int) *Composer {
	return &Composer{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "discord-router"),
		maxBytes: maxBytes,
	}
}

// Compose builds the message to send for p.
func (c *Composer) Compose(ctx context.Context, p *MessageParams) (*discordgo.MessageSend, error) {
	msg := &discordgo.MessageSend{Content: p.Content}
	for _, role := range p.MentionRoles {
		msg.Content += " <@&" + role + ">"
	}

	for _, f := range p.Files {
		file, err := c.file(ctx, f.URL)
		if err != nil {
			return nil, err
		}
		msg.Files = append(msg.Files, file)
	}

	if p.Embed {
		embed, files, err := buildEmbed(p)
		if err != nil {
			return nil, err
		}
		msg.Embeds = []*discordgo.MessageEmbed{embed}
		msg.Files = append(msg.Files, files...)
	}
	return msg, nil
}

func (c *Composer) file(ctx context.Context, ref string) (*discordgo.File, error) {
	if isDataURI(ref) {
		data, contentType, err := decodeDataURI(ref)
		if err != nil {
			return nil, err
		}
		return &discordgo.File{
			Name:        "file-" + uuid.NewString()[:8] + extensionFor(contentType),
			ContentType: contentType,
			Reader:      bytes.NewReader(data),
		}, nil
	}

	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: unsupported file reference", ErrInvalidAttachment)
	}

	resp, err := c.http.R().SetContext(ctx).Get(ref)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", u.Host, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download %s: status %d", u.Host, resp.StatusCode())
	}
	body := resp.Body()
	if c.maxBytes > 0 && len(body) > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit", ErrInvalidAttachment, len(body))
	}

	contentType := resp.Header().Get("Content-Type")
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "file-" + uuid.NewString()[:8] + extensionFor(contentType)
	}
	return &discordgo.File{
		Name:        name,
		ContentType: contentType,
		Reader:      bytes.NewReader(body),
	}, nil
}

func buildEmbed(p *MessageParams) (*discordgo.MessageEmbed, []*discordgo.File, error) {
	var files []*discordgo.File
	// inline replaces a data URI with an attachment named base.ext.
	inline := func(ref, base string) (string, error) {
		if !isDataURI(ref) {
			return ref, nil
		}
		data, contentType, err := decodeDataURI(ref)
		if err != nil {
			return "", err
		}
		name := base + extensionFor(contentType)
		files = append(files, &discordgo.File{Name: name, ContentType: contentType, Reader: bytes.NewReader(data)})
		return "attachment://" + name, nil
	}

	e := &discordgo.MessageEmbed{
		Title:       p.Title,
		URL:         p.URL,
		Description: p.Description,
	}

	if p.Color != "" {
		color, err := parseColor(p.Color)
		if err != nil {
			return nil, nil, err
		}
		e.Color = color
	}
	if p.Timestamp != "" {
		ts, err := parseTimestamp(p.Timestamp)
		if err != nil {
			return nil, nil, fmt.Errorf("embed timestamp: %w", err)
		}
		e.Timestamp = ts.UTC().Format(time.RFC3339)
	}

	if p.FooterText != "" {
		icon, err := inline(p.FooterIconURL, "footer")
		if err != nil {
			return nil, nil, err
		}
		e.Footer = &discordgo.MessageEmbedFooter{Text: p.FooterText, IconURL: icon}
	}
	if p.ImageURL != "" {
		img, err := inline(p.ImageURL, "image")
		if err != nil {
			return nil, nil, err
		}
		e.Image = &discordgo.MessageEmbedImage{URL: img}
	}
	if p.ThumbnailURL != "" {
		thumb, err := inline(p.ThumbnailURL, "thumbnail")
		if err != nil {
			return nil, nil, err
		}
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: thumb}
	}
	if p.AuthorName != "" {
		icon, err := inline(p.AuthorIconURL, "author")
		if err != nil {
			return nil, nil, err
		}
		e.Author = &discordgo.MessageEmbedAuthor{Name: p.AuthorName, IconURL: icon, URL: p.AuthorURL}
	}

	for _, f := range p.Fields {
		if f.Name == "" || f.Value == "" {
			e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: zeroWidth, Value: zeroWidth})
			continue
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return e, files, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, l := range timestampLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(l.layout, s, l.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func isDataURI(ref string) bool {
	return len(ref) >= 5 && strings.EqualFold(ref[:5], "data:")
}

func decodeDataURI(ref string) ([]byte, string, error) {
	m := anyDataURI.FindStringSubmatch(ref)
	if m == nil {
		return nil, "", fmt.Errorf("%w: not a base64 data uri", ErrInvalidAttachment)
	}
	data, err := base64.StdEncoding.DecodeString(ref[len(m[0]):])
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
	}
	contentType := strings.ToLower(m[1])
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

func extensionFor(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if _, sub, ok := strings.Cut(mt, "/"); ok && sub != "octet-stream" {
		sub, _, _ = strings.Cut(sub, "+")
		return "." + strings.TrimPrefix(sub, "x-")
	}
	return ""
}

// parseColor accepts "#rrggbb", "0xrrggbb" or a decimal value.
func parseColor(s string) (int, error) {
	s = strings.TrimSpace(s)
	base := 10
	switch {
	case strings.HasPrefix(s, "#"):
		s, base = s[1:], 16
	case strings.HasPrefix(strings.ToLower(s), "0x"):
		s, base = s[2:], 16
	}
	v, err := strconv.ParseInt(s, base, 32)
	if err != nil || v < 0 || v > 0xFFFFFF {
		return 0, fmt.Errorf("embed color %q is invalid", s)
	}
	return int(v), nil
}
