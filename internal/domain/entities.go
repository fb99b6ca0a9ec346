// Package domain holds the relay bot's core types and the ports adapters implement.
package domain

import (
	"context"
	"time"
)

// ReminderType enumerates reminder recurrence kinds.
type ReminderType string

const (
	ReminderOneTime ReminderType = "ONE_TIME"
	ReminderDaily   ReminderType = "DAILY"
)

// Valid reports whether t is a known reminder type.
func (t ReminderType) Valid() bool { return t == ReminderOneTime || t == ReminderDaily }

// Reminder is a scheduled notification kept in the reminder store.
// Invariants: ID unique among live entries; Time is an absolute instant.
type Reminder struct {
	ID     string       `json:"id" validate:"required"`
	ChatID int64        `json:"chatId" validate:"required"`
	Time   time.Time    `json:"time" validate:"required"`
	Note   string       `json:"note"`
	Type   ReminderType `json:"type" validate:"required,oneof=ONE_TIME DAILY"`
}

// FileRef points at a file hosted by the messaging platform.
type FileRef struct {
	FileID   string
	FileName string
	MIME     string
	Size     int64
}

// InboundEvent is one user message as delivered by the messaging transport.
type InboundEvent struct {
	UpdateID  int64
	ChatID    int64
	MessageID int64
	Text      string
	Caption   string
	Photo     *FileRef
	Document  *FileRef
}

// Role names the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
)

// Image is an inline image payload passed to a vision-capable model.
type Image struct {
	Data []byte
	MIME string
}

// ChatRequest is the provider-neutral input of a chat completion.
type ChatRequest struct {
	System string
	Prompt string
	// History is pre-rendered conversation context; empty when memory is not used.
	History string
	Image   *Image
}

// Media is a generated binary artifact (image or audio).
type Media struct {
	Data     []byte
	MIME     string
	Provider string
}

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchResponse is the outcome of one search provider call.
type SearchResponse struct {
	Provider string
	Answer   string
	Results  []SearchResult
}

// Ports

// Messenger delivers outbound messages to a chat.
type Messenger interface {
	SendText(ctx Context, chatID int64, text string) error
	SendPhoto(ctx Context, chatID int64, photo Media, caption string) error
	SendVoice(ctx Context, chatID int64, voice Media, caption string) error
	SendChatAction(ctx Context, chatID int64, action string) error
	DownloadFile(ctx Context, fileID string, maxBytes int64) ([]byte, error)
}

// ReminderStore is the external reminder persistence.
type ReminderStore interface {
	List(ctx Context) ([]Reminder, error)
	Add(ctx Context, r Reminder) error
	Delete(ctx Context, id string) error
}

// ChatProvider produces an answer for a chat request.
type ChatProvider interface {
	Name() string
	Chat(ctx Context, req ChatRequest) (string, error)
}

// ImageProvider renders an image from a prompt.
type ImageProvider interface {
	Name() string
	Generate(ctx Context, prompt string) (Media, error)
}

// VoiceProvider synthesizes speech.
type VoiceProvider interface {
	Name() string
	Synthesize(ctx Context, text string) (Media, error)
}

// SearchProvider runs a web search.
type SearchProvider interface {
	Name() string
	Search(ctx Context, query string) (SearchResponse, error)
}

// Context aliases context.Context so ports read uniformly across layers.
type Context = context.Context
