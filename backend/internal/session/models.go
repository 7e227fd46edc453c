package session

import (
	"fmt"
	"time"
)

// Conversation roles
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// File statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// FileInfo records one processed upload.
type FileInfo struct {
	Filename    string    `json:"filename"`
	FileType    string    `json:"file_type"`
	RecordCount int       `json:"record_count"`
	Columns     []string  `json:"columns"`
	Status      string    `json:"status"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Validate checks if the FileInfo is valid
func (f *FileInfo) Validate() error {
	if f.Filename == "" {
		return ErrInvalidFileInfo{Field: "filename", Reason: "cannot be empty"}
	}
	if f.RecordCount < 0 {
		return ErrInvalidFileInfo{Field: "record_count", Reason: "cannot be negative"}
	}
	return nil
}

// Message is one conversation entry.
type Message struct {
	Role      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the full view of a session.
type History struct {
	SessionID         string         `json:"session_id"`
	CreatedAt         time.Time      `json:"created_at"`
	LastActivity      time.Time      `json:"last_activity"`
	FileHistory       []FileInfo     `json:"file_history"`
	Conversation      []Message      `json:"conversation"`
	ProcessingContext map[string]any `json:"processing_context"`
}

// Stats aggregates a session's uploads.
type Stats struct {
	FilesProcessed       int            `json:"files_processed"`
	FileTypes            map[string]int `json:"file_types"`
	TotalRecords         int            `json:"total_records"`
	SessionDuration      float64        `json:"session_duration"`
	ConversationMessages int            `json:"conversation_messages"`
}

// Memory summarizes what is retained for a session.
type Memory struct {
	SessionID      string    `json:"session_id"`
	MessageCount   int       `json:"message_count"`
	RecentMessages []Message `json:"recent_messages"`
	FileCount      int       `json:"file_count"`
	LastFile       *FileInfo `json:"last_file,omitempty"`
	LastActivity   time.Time `json:"last_activity"`
}

// Errors

type ErrInvalidFileInfo struct {
	Field  string
	Reason string
}

func (e ErrInvalidFileInfo) Error() string {
	return fmt.Sprintf("invalid file info: %s - %s", e.Field, e.Reason)
}

type ErrSessionNotFound struct {
	ID string
}

func (e ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}
