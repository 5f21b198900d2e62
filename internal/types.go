package internal

import (
	"fmt"
	"strings"
	"time"
)

// ContentType represents the type of YouTube content
type ContentType int

const (
	ContentTypeUnknown ContentType = iota
	ContentTypeVideo
	ContentTypePlaylist
)

// String returns a human-readable representation of the content type
func (ct ContentType) String() string {
	switch ct {
	case ContentTypeVideo:
		return "video"
	case ContentTypePlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// ContentID identifies a single video or playlist
type ContentID struct {
	Type ContentType `json:"type"`
	ID   string      `json:"id"`
}

// VideoID is shorthand for a video identifier
func VideoID(id string) ContentID {
	return ContentID{Type: ContentTypeVideo, ID: id}
}

// PlaylistID is shorthand for a playlist identifier
func PlaylistID(id string) ContentID {
	return ContentID{Type: ContentTypePlaylist, ID: id}
}

// Key is the cache key for the identifier
func (c ContentID) Key() string {
	return c.Type.String() + ":" + c.ID
}

func (c ContentID) String() string {
	return c.Key()
}

// URL returns the canonical YouTube URL for the identifier
func (c ContentID) URL() string {
	if c.Type == ContentTypePlaylist {
		return "https://www.youtube.com/playlist?list=" + c.ID
	}
	return "https://www.youtube.com/watch?v=" + c.ID
}

// VideoMetadata contains YouTube video information
type VideoMetadata struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Channel       string  `json:"channel"`
	Description   string  `json:"description"`
	PublishedDate string  `json:"published_date,omitempty"`
	ViewCount     int64   `json:"view_count,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	URL           string  `json:"url,omitempty"`
}

// PlaylistMetadata lists the videos of a playlist in playlist order
type PlaylistMetadata struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Channel string          `json:"channel,omitempty"`
	Videos  []VideoMetadata `json:"videos"`
}

// TranscriptSegment is one caption cue
type TranscriptSegment struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
	Text     string        `json:"text"`
}

// Transcript is the ordered list of caption cues of a video
type Transcript []TranscriptSegment

// Text joins all segment texts with newlines
func (t Transcript) Text() string {
	lines := make([]string, 0, len(t))
	for _, seg := range t {
		if seg.Text != "" {
			lines = append(lines, seg.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// ContentRecord is what gets cached for an identifier.
// Video records carry Metadata and Transcript; playlist records carry Playlist.
type ContentRecord struct {
	ID         ContentID         `json:"id"`
	Metadata   VideoMetadata     `json:"metadata"`
	Transcript Transcript        `json:"transcript"`
	Playlist   *PlaylistMetadata `json:"playlist,omitempty"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

// Title returns the video or playlist title
func (r *ContentRecord) Title() string {
	if r.Playlist != nil {
		return r.Playlist.Title
	}
	return r.Metadata.Title
}

// Channel returns the video or playlist channel
func (r *ContentRecord) Channel() string {
	if r.Playlist != nil {
		return r.Playlist.Channel
	}
	return r.Metadata.Channel
}

// Role is the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. Context holds the video context
// resolved for a user turn.
type Message struct {
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
	Videos  int    `json:"videos,omitempty"`
}

// ChatMessage is a message as sent to the model
type ChatMessage struct {
	Role    Role
	Content string
}

func (m Message) String() string {
	return fmt.Sprintf("%s: %s", m.Role, m.Text)
}
