package realtime

import (
	"context"
	"errors"

	"github.com/collabforge/backend/internal/files"
	"github.com/collabforge/backend/internal/projects"
	"go.uber.org/zap"
)

// EditStatus tags the internal result of edit ingestion. The wire protocol
// stays silent on drops; tests assert on this result instead of wire traffic.
type EditStatus string

const (
	// EditApplied means the content was persisted and broadcast.
	EditApplied EditStatus = "applied"
	// EditDropped means the event was discarded without persistence or broadcast.
	EditDropped EditStatus = "dropped"
)

// Drop reasons recorded on EditOutcome.
const (
	DropMissingFileID   = "missing_file_id"
	DropFileNotFound    = "file_not_found"
	DropProjectNotFound = "project_not_found"
	DropAccessDenied    = "access_denied"
	DropReadOnly        = "read_only"
	DropNotFile         = "not_file"
	DropSaveFailed      = "save_failed"
	DropRoleLookup      = "role_lookup_failed"
)

// EditOutcome reports how an edit event was handled. VersionSaved is false
// when the save applied but the best-effort prior-content snapshot failed.
type EditOutcome struct {
	Status       EditStatus
	Reason       string
	Node         files.Node
	VersionSaved bool
}

func dropped(reason string) EditOutcome {
	return EditOutcome{Status: EditDropped, Reason: reason}
}

// HandleEdit ingests a live edit: authorize, persist (authoritative
// last-write-wins save plus prior-content version snapshot), then broadcast
// the updated file to every other connection in the project room. The
// sender never receives its own broadcast. Every failure path drops the
// event silently; nothing is surfaced to the emitting client.
func (h *Hub) HandleEdit(ctx context.Context, conn *Conn, fileID, content string) EditOutcome {
	if fileID == "" {
		return dropped(DropMissingFileID)
	}

	node, err := h.files.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, files.ErrNodeNotFound) {
			return dropped(DropFileNotFound)
		}
		h.logger.Warn("edit file lookup failed", zap.String("file_id", fileID), zap.Error(err))
		return dropped(DropFileNotFound)
	}
	if node.Type != files.NodeTypeFile {
		return dropped(DropNotFile)
	}

	// Role is re-resolved on every edit rather than trusted from the cached
	// presence entry, so a demoted collaborator loses write access at once.
	role, err := h.roles.ResolveRole(ctx, node.ProjectID, conn.identity.UserID)
	if err != nil {
		if errors.Is(err, projects.ErrProjectNotFound) {
			return dropped(DropProjectNotFound)
		}
		h.logger.Warn("edit role resolution failed",
			zap.String("file_id", fileID),
			zap.String("project_id", node.ProjectID),
			zap.Error(err))
		return dropped(DropRoleLookup)
	}
	if !role.CanRead() {
		h.logger.Warn("edit rejected: no project access",
			zap.String("file_id", fileID),
			zap.String("user_id", conn.identity.UserID))
		return dropped(DropAccessDenied)
	}
	// Membership alone is not write permission. Viewers must never reach
	// persisted content mutation through the realtime channel.
	if !role.CanEdit() {
		h.logger.Warn("edit rejected: read-only role",
			zap.String("file_id", fileID),
			zap.String("user_id", conn.identity.UserID))
		return dropped(DropReadOnly)
	}

	outcome, err := h.files.SaveContent(ctx, fileID, content, conn.identity.UserID)
	if err != nil {
		// The file may have vanished between lookup and save; either way the
		// event is dropped without retry.
		if errors.Is(err, files.ErrNodeNotFound) {
			return dropped(DropFileNotFound)
		}
		h.logger.Error("edit save failed", zap.String("file_id", fileID), zap.Error(err))
		return dropped(DropSaveFailed)
	}
	if !outcome.VersionSaved {
		h.logger.Warn("edit applied without version snapshot", zap.String("file_id", fileID))
	}

	h.mu.Lock()
	recipients := h.roomMembersLocked(node.ProjectID, conn.ID)
	h.mu.Unlock()
	deliver(recipients, Message{Event: EventFileUpdated, Data: outcome.Node})

	return EditOutcome{Status: EditApplied, Node: outcome.Node, VersionSaved: outcome.VersionSaved}
}
