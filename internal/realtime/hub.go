package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/collabforge/backend/internal/files"
	"github.com/collabforge/backend/internal/projects"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const outboundBufferSize = 32

var (
	errMissingRoleResolver = errors.New("role resolver dependency required")
	errMissingFileStore    = errors.New("file store dependency required")

	noOpLogger = zap.NewNop()
)

// RoleResolver resolves a user's role on a project.
type RoleResolver interface {
	ResolveRole(ctx context.Context, projectID, userID string) (projects.Role, error)
}

// FileStore is the slice of the file service the hub consumes.
type FileStore interface {
	FindByID(ctx context.Context, fileID string) (files.Node, error)
	SaveContent(ctx context.Context, fileID, content, authorID string) (files.SaveOutcome, error)
}

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
}

func (i Identity) displayLabel() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Email
}

// Message is an event queued for delivery to one connection.
type Message struct {
	Event string
	Data  any
}

// Conn is one live realtime session. It is ephemeral and distinct from the
// persistent user identity it authenticates as.
type Conn struct {
	ID       string
	identity Identity
	outbound chan Message
	done     chan struct{}
}

// Identity returns the authenticated user behind the connection.
func (c *Conn) Identity() Identity {
	return c.identity
}

// Outbound exposes the delivery channel consumed by the transport's write loop.
func (c *Conn) Outbound() <-chan Message {
	return c.outbound
}

// Done is closed when the connection has been unregistered.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

type filePresenceState struct {
	identity Identity
	cursor   *Cursor
}

type projectPresenceState struct {
	identity Identity
	role     projects.Role
}

// HubConfig describes the dependencies for the realtime hub.
type HubConfig struct {
	Roles  RoleResolver
	Files  FileStore
	Logger *zap.Logger
}

// Hub owns all realtime state for one server process: the connection
// registry, project rooms, and file/project presence maps. It is an
// injectable service object constructed once and passed by handle to every
// handler; a multi-instance backplane would slot in behind it.
type Hub struct {
	mu              sync.Mutex
	conns           map[string]*Conn
	rooms           map[string]map[string]*Conn
	projectPresence map[string]map[string]projectPresenceState
	filePresence    map[string]map[string]filePresenceState

	roles  RoleResolver
	files  FileStore
	logger *zap.Logger
}

// NewHub constructs the hub.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Roles == nil {
		return nil, errMissingRoleResolver
	}
	if cfg.Files == nil {
		return nil, errMissingFileStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Hub{
		conns:           make(map[string]*Conn),
		rooms:           make(map[string]map[string]*Conn),
		projectPresence: make(map[string]map[string]projectPresenceState),
		filePresence:    make(map[string]map[string]filePresenceState),
		roles:           cfg.Roles,
		files:           cfg.Files,
		logger:          logger,
	}, nil
}

// Register records a new authenticated connection and returns its handle.
func (h *Hub) Register(identity Identity) *Conn {
	conn := &Conn{
		ID:       uuid.NewString(),
		identity: identity,
		outbound: make(chan Message, outboundBufferSize),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()
	return conn
}

// Unregister removes the connection from the registry and from every room
// and presence group it joined, in a single cleanup pass, recomputing and
// broadcasting each affected snapshot. Missing any membership here would
// leave ghost users in presence indefinitely.
func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	if _, known := h.conns[conn.ID]; !known {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn.ID)

	var affectedFiles []string
	for fileID, group := range h.filePresence {
		if _, ok := group[conn.ID]; ok {
			delete(group, conn.ID)
			if len(group) == 0 {
				delete(h.filePresence, fileID)
			}
			affectedFiles = append(affectedFiles, fileID)
		}
	}

	var affectedProjects []string
	for projectID, room := range h.rooms {
		if _, ok := room[conn.ID]; ok {
			delete(room, conn.ID)
			if len(room) == 0 {
				delete(h.rooms, projectID)
			}
			affectedProjects = append(affectedProjects, projectID)
		}
	}
	for projectID, presence := range h.projectPresence {
		if _, ok := presence[conn.ID]; ok {
			delete(presence, conn.ID)
			if len(presence) == 0 {
				delete(h.projectPresence, projectID)
			}
		}
	}
	close(conn.done)
	h.mu.Unlock()

	for _, fileID := range affectedFiles {
		h.broadcastFilePresence(fileID)
	}
	for _, projectID := range affectedProjects {
		h.broadcastProjectPresence(projectID)
	}
}

// JoinProject subscribes the connection to a project room after the role
// gate. Joining a second project does not leave the first; rooms are left
// explicitly via LeaveProject or on disconnect.
func (h *Hub) JoinProject(ctx context.Context, conn *Conn, projectID string) error {
	role, err := h.roles.ResolveRole(ctx, projectID, conn.identity.UserID)
	if err != nil {
		return err
	}
	if !role.CanRead() {
		return files.ErrAccessDenied
	}

	h.mu.Lock()
	room := h.rooms[projectID]
	if room == nil {
		room = make(map[string]*Conn)
		h.rooms[projectID] = room
	}
	room[conn.ID] = conn

	presence := h.projectPresence[projectID]
	if presence == nil {
		presence = make(map[string]projectPresenceState)
		h.projectPresence[projectID] = presence
	}
	presence[conn.ID] = projectPresenceState{identity: conn.identity, role: role}
	h.mu.Unlock()

	h.broadcastProjectPresence(projectID)
	return nil
}

// LeaveProject removes the connection from a project room and its presence.
func (h *Hub) LeaveProject(conn *Conn, projectID string) {
	h.mu.Lock()
	removed := false
	if room, ok := h.rooms[projectID]; ok {
		if _, member := room[conn.ID]; member {
			delete(room, conn.ID)
			removed = true
			if len(room) == 0 {
				delete(h.rooms, projectID)
			}
		}
	}
	if presence, ok := h.projectPresence[projectID]; ok {
		delete(presence, conn.ID)
		if len(presence) == 0 {
			delete(h.projectPresence, projectID)
		}
	}
	h.mu.Unlock()

	if removed {
		h.broadcastProjectPresence(projectID)
	}
}

// PresenceJoin adds the connection to a file's presence group.
func (h *Hub) PresenceJoin(conn *Conn, fileID string, cursor *Cursor) {
	if fileID == "" {
		return
	}
	h.mu.Lock()
	group := h.filePresence[fileID]
	if group == nil {
		group = make(map[string]filePresenceState)
		h.filePresence[fileID] = group
	}
	group[conn.ID] = filePresenceState{identity: conn.identity, cursor: cursor}
	h.mu.Unlock()

	h.broadcastFilePresence(fileID)
}

// PresenceLeave removes the connection from a file's presence group. Empty
// groups are deleted entirely, not kept as placeholders.
func (h *Hub) PresenceLeave(conn *Conn, fileID string) {
	h.mu.Lock()
	group, ok := h.filePresence[fileID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := group[conn.ID]; !member {
		h.mu.Unlock()
		return
	}
	delete(group, conn.ID)
	if len(group) == 0 {
		delete(h.filePresence, fileID)
	}
	h.mu.Unlock()

	h.broadcastFilePresence(fileID)
}

// PresenceCursor updates the cursor on an existing presence entry. A cursor
// update for a connection that has not joined the group is a no-op.
func (h *Hub) PresenceCursor(conn *Conn, fileID string, cursor *Cursor) {
	h.mu.Lock()
	group, ok := h.filePresence[fileID]
	if !ok {
		h.mu.Unlock()
		return
	}
	state, member := group[conn.ID]
	if !member {
		h.mu.Unlock()
		return
	}
	state.cursor = cursor
	group[conn.ID] = state
	h.mu.Unlock()

	h.broadcastFilePresence(fileID)
}

// FilePresenceSnapshot materializes the presence list for a file by
// iterating the registry. Recomputed on demand, not incrementally maintained.
func (h *Hub) FilePresenceSnapshot(fileID string) []FilePresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filePresenceSnapshotLocked(fileID)
}

func (h *Hub) filePresenceSnapshotLocked(fileID string) []FilePresenceEntry {
	group := h.filePresence[fileID]
	entries := make([]FilePresenceEntry, 0, len(group))
	for connID, state := range group {
		entries = append(entries, FilePresenceEntry{
			ConnectionID: connID,
			UserID:       state.identity.UserID,
			Name:         state.identity.displayLabel(),
			Cursor:       state.cursor,
		})
	}
	return entries
}

// ProjectPresenceSnapshot materializes the presence list for a project room.
func (h *Hub) ProjectPresenceSnapshot(projectID string) []ProjectPresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.projectPresenceSnapshotLocked(projectID)
}

func (h *Hub) projectPresenceSnapshotLocked(projectID string) []ProjectPresenceEntry {
	presence := h.projectPresence[projectID]
	entries := make([]ProjectPresenceEntry, 0, len(presence))
	for connID, state := range presence {
		entries = append(entries, ProjectPresenceEntry{
			ConnectionID: connID,
			UserID:       state.identity.UserID,
			Name:         state.identity.displayLabel(),
			Role:         string(state.role),
		})
	}
	return entries
}

// BroadcastToProject fans an event out to every connection in the project
// room. Used by the HTTP layer for file create/update/delete notifications.
func (h *Hub) BroadcastToProject(projectID, event string, data any) {
	h.mu.Lock()
	recipients := h.roomMembersLocked(projectID, "")
	h.mu.Unlock()
	deliver(recipients, Message{Event: event, Data: data})
}

func (h *Hub) broadcastProjectPresence(projectID string) {
	h.mu.Lock()
	snapshot := h.projectPresenceSnapshotLocked(projectID)
	recipients := h.roomMembersLocked(projectID, "")
	h.mu.Unlock()
	deliver(recipients, Message{Event: EventProjectPresence, Data: snapshot})
}

func (h *Hub) broadcastFilePresence(fileID string) {
	h.mu.Lock()
	snapshot := h.filePresenceSnapshotLocked(fileID)
	group := h.filePresence[fileID]
	recipients := make([]*Conn, 0, len(group))
	for connID := range group {
		if conn, ok := h.conns[connID]; ok {
			recipients = append(recipients, conn)
		}
	}
	h.mu.Unlock()
	deliver(recipients, Message{Event: EventPresenceUpdate, Data: snapshot})
}

// roomMembersLocked collects room member connections, excluding excludeID
// when non-empty. Callers must hold h.mu.
func (h *Hub) roomMembersLocked(projectID, excludeID string) []*Conn {
	room := h.rooms[projectID]
	recipients := make([]*Conn, 0, len(room))
	for connID, conn := range room {
		if connID == excludeID {
			continue
		}
		recipients = append(recipients, conn)
	}
	return recipients
}

// deliver queues the message for each recipient, dropping it for any
// connection whose outbound buffer is full or that is already gone.
func deliver(recipients []*Conn, message Message) {
	for _, conn := range recipients {
		select {
		case <-conn.done:
		case conn.outbound <- message:
		default:
		}
	}
}

// Close unregisters every live connection, broadcasting final presence
// snapshots as each departs. Used during server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		h.Unregister(conn)
	}
}
