package discord

type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

type EmbedMedia struct {
	URL string `json:"url"`
}

type Embed struct {
	URL       string     `json:"url"`
	Thumbnail EmbedMedia `json:"thumbnail"`
	Video     EmbedMedia `json:"video"`
	Image     EmbedMedia `json:"image"`
}

type Message struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	Timestamp   string       `json:"timestamp"`
	Attachments []Attachment `json:"attachments"`
	Embeds      []Embed      `json:"embeds"`
}

type ForumTag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Channel struct {
	ID            string     `json:"id"`
	Type          int        `json:"type"`
	Name          string     `json:"name"`
	ParentID      string     `json:"parent_id"`
	AvailableTags []ForumTag `json:"available_tags"`
}

// Channel types that require posting into a named thread.
const (
	ChannelTypeForum = 15
	ChannelTypeMedia = 16
)

func (c Channel) ForumLike() bool {
	return c.Type == ChannelTypeForum || c.Type == ChannelTypeMedia
}

// ChannelRef is the parsed form of a channel URL like
// https://discord.com/channels/<guild>/<channel>[/<thread>].
type ChannelRef struct {
	GuildID   string
	ChannelID string
	ThreadID  string
}

// Target returns the id messages should go to: the thread when the
// URL names one, the channel otherwise.
func (r ChannelRef) Target() string {
	if r.ThreadID != "" {
		return r.ThreadID
	}
	return r.ChannelID
}
