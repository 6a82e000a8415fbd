package realtime

import "encoding/json"

// Client-to-server event names.
const (
	EventJoinProject    = "join-project"
	EventLeaveProject   = "leave-project"
	EventFileEdit       = "file:edit"
	EventPresenceJoin   = "presence:join"
	EventPresenceLeave  = "presence:leave"
	EventPresenceCursor = "presence:cursor"
)

// Server-to-client event names.
const (
	EventFileCreated     = "file:created"
	EventFileUpdated     = "file:updated"
	EventFileDeleted     = "file:deleted"
	EventPresenceUpdate  = "presence:update"
	EventProjectPresence = "project:presence"
)

// Envelope is the wire frame for every realtime message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Cursor is a caret position inside a file.
type Cursor struct {
	LineNumber int `json:"lineNumber"`
	Column     int `json:"column"`
}

// FilePresenceEntry is one connection's presence on a file.
type FilePresenceEntry struct {
	ConnectionID string  `json:"connectionId"`
	UserID       string  `json:"userId"`
	Name         string  `json:"name"`
	Cursor       *Cursor `json:"cursor"`
}

// ProjectPresenceEntry is one connection's presence on a project room. Role
// is resolved once at join time and not re-resolved live; a role change
// elsewhere shows up only after rejoin.
type ProjectPresenceEntry struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Role         string `json:"role"`
}

type joinProjectPayload struct {
	ProjectID string `json:"projectId"`
}

type fileEditPayload struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

type presenceJoinPayload struct {
	FileID string  `json:"fileId"`
	Cursor *Cursor `json:"cursor"`
}

type presenceLeavePayload struct {
	FileID string `json:"fileId"`
}

type presenceCursorPayload struct {
	FileID string  `json:"fileId"`
	Cursor *Cursor `json:"cursor"`
}
