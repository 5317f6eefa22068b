// Package thread defines the conversation data model shared by the view engine,
// the persistence layer and the transport, plus the MessageLog that owns the
// ordered message records of one open conversation.
package thread

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by collaborators when a conversation or message does not exist.
var ErrNotFound = errors.New("not found")

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part types understood by the engine. Tool parts use the "tool-<name>" and
// "data-<name>_complete" forms; see ContentPart.ToolFamily.
const (
	PartText       = "text"
	PartFile       = "file"
	PartImage      = "image"
	PartToolResult = "tool-result"
)

// ContentPart is one typed piece of a message body.
// Different part types populate different fields.
type ContentPart struct {
	Type string `json:"type"`

	// Text part
	Text string `json:"text,omitempty"`

	// Tool parts. ToolName is only set for the generic "tool-result" form.
	ToolName string      `json:"tool_name,omitempty"`
	Output   *ToolOutput `json:"output,omitempty"`
	Data     *ToolOutput `json:"data,omitempty"`

	// File / image upload parts
	MediaType string `json:"media_type,omitempty"`
	URL       string `json:"url,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// ToolFamily returns the tool name a part belongs to, or "" for non-tool parts.
//
//	tool-gemini_image_tool          -> gemini_image_tool
//	tool-result (ToolName=x)        -> x
//	data-wan25_video_complete       -> wan25_video
func (p ContentPart) ToolFamily() string {
	switch {
	case p.Type == PartToolResult:
		return p.ToolName
	case strings.HasPrefix(p.Type, "tool-"):
		return strings.TrimPrefix(p.Type, "tool-")
	case strings.HasPrefix(p.Type, "data-") && strings.HasSuffix(p.Type, "_complete"):
		return strings.TrimSuffix(strings.TrimPrefix(p.Type, "data-"), "_complete")
	}
	return ""
}

// Result returns the tool payload carried by the part, preferring Output over Data.
func (p ContentPart) Result() *ToolOutput {
	if p.Output != nil {
		return p.Output
	}
	return p.Data
}

// ToolOutput is the structured result of an assistant-invoked capability.
// A payload whose Success is missing or false yields no media.
type ToolOutput struct {
	Success *bool       `json:"success,omitempty"`
	Items   []MediaItem `json:"items,omitempty"`
}

// Succeeded reports whether the payload is explicitly marked successful.
func (o *ToolOutput) Succeeded() bool {
	return o != nil && o.Success != nil && *o.Success
}

// MediaItem is one asset produced by a tool.
type MediaItem struct {
	URL         string `json:"url"`
	Path        string `json:"path,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	SizeLabel   string `json:"size,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`

	// Search and link results. Type is "image" for image search hits.
	Type      string `json:"type,omitempty"`
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Annotation is a progress event attached to a message while it streams.
type Annotation struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// AttachmentMeta holds optional attachment metadata.
type AttachmentMeta struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Attachment is a user upload in the legacy attachment list representation.
type Attachment struct {
	URL         string         `json:"url"`
	ContentType string         `json:"content_type,omitempty"`
	Name        string         `json:"name,omitempty"`
	Metadata    AttachmentMeta `json:"metadata,omitempty"`
}

// Message is one turn in a conversation. ID is unique within a conversation.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Role           Role          `json:"role"`
	Sequence       int64         `json:"sequence"`
	CreatedAt      time.Time     `json:"created_at"`
	Parts          []ContentPart `json:"parts,omitempty"`
	Annotations    []Annotation  `json:"annotations,omitempty"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Model          string        `json:"model,omitempty"`

	// Version is bumped by every in-place mutation and keys derived caches.
	Version int `json:"version,omitempty"`
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Before reports whether m sorts before o in conversation order.
func (m Message) Before(o Message) bool {
	if m.Sequence != o.Sequence {
		return m.Sequence < o.Sequence
	}
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// Patch replaces streamed content of a message. Nil fields are left untouched.
type Patch struct {
	Parts       []ContentPart
	Annotations []Annotation
	Attachments []Attachment
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

// PageRequest asks for the page of messages older than Cursor.
// A zero Cursor requests the newest page.
type PageRequest struct {
	ConversationID string `json:"conversation_id"`
	Cursor         int64  `json:"cursor,omitempty"`
	PageSize       int    `json:"page_size"`
}

// Page is an ordered (oldest first) slice of messages.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// ConversationPage is one page of the conversation list, last activity descending.
type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	NextCursor    string                `json:"next_cursor,omitempty"`
}

// EventKind identifies a conversation-list change.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"

	// EventCreated announces a conversation started by another client.
	EventCreated EventKind = "created"
	// EventTitle carries a new title and nothing else.
	EventTitle EventKind = "title"
)

// ConversationEvent is an out-of-band change to a sibling conversation.
type ConversationEvent struct {
	Kind         EventKind           `json:"kind"`
	Conversation ConversationSummary `json:"conversation"`
	// InitialMessage is the opening text of a created conversation, if any.
	InitialMessage string `json:"initial_message,omitempty"`
}

// PageFetcher loads message pages for a conversation.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// ConversationLister loads pages of the conversation list.
type ConversationLister interface {
	ListConversations(ctx context.Context, cursor string, limit int) (ConversationPage, error)
}

// MessageDeleter removes messages from persistence.
type MessageDeleter interface {
	DeleteMessages(ctx context.Context, conversationID string, ids []string) error
}

// BookmarkStore persists per-user message bookmarks.
type BookmarkStore interface {
	SetBookmark(ctx context.Context, conversationID, messageID string, on bool) error
	Bookmarks(ctx context.Context, conversationID string, messageIDs []string) (map[string]bool, error)
}
