package files

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/collabforge/backend/internal/projects"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase     = errors.New("database handle is required")
	errMissingIDProvider   = errors.New("id provider is required")
	errMissingRoleResolver = errors.New("role resolver is required")
	noOpLogger             = zap.NewNop()

	// ErrNodeNotFound indicates the referenced file or folder does not exist.
	ErrNodeNotFound = errors.New("files: node not found")
	// ErrVersionNotFound indicates the referenced version does not exist for the file.
	ErrVersionNotFound = errors.New("files: version not found")
	// ErrAccessDenied indicates the caller has no role on the owning project.
	ErrAccessDenied = errors.New("files: access denied")
	// ErrReadOnly indicates the caller's role does not permit mutation.
	ErrReadOnly = errors.New("files: role does not permit mutation")
	// ErrInvalidParent indicates the parent is missing, not a folder, or in
	// another project.
	ErrInvalidParent = errors.New("files: invalid parent folder")
	// ErrInvalidNode indicates malformed node input.
	ErrInvalidNode = errors.New("files: invalid node input")
	// ErrNotFile indicates a content operation targeted a folder.
	ErrNotFile = errors.New("files: node is not a file")
)

// ServiceError wraps failures with an operation-scoped code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation-scoped error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "files.service.new"
	opCreateNode     = "files.create_node"
	opProjectTree    = "files.project_tree"
	opFolderContents = "files.folder_contents"
	opGetNode        = "files.get_node"
	opUpdateNode     = "files.update_node"
	opDeleteNode     = "files.delete_node"
	opListVersions   = "files.list_versions"
	opRevert         = "files.revert"
	opSaveContent    = "files.save_content"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// RoleResolver resolves a caller's role on a project before any mutation.
type RoleResolver interface {
	ResolveRole(ctx context.Context, projectID, userID string) (projects.Role, error)
}

// IDProvider abstracts node and version id generation.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for the file service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Roles      RoleResolver
	Logger     *zap.Logger
}

// Service manages the file/folder tree, content saves, and version history.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
	roles      RoleResolver
	logger     *zap.Logger
}

// NewService constructs the file service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Roles == nil {
		return nil, newServiceError(opServiceNew, "missing_role_resolver", errMissingRoleResolver)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: cfg.IDProvider,
		roles:      cfg.Roles,
		logger:     logger,
	}, nil
}

// CreateNodeInput describes a new file or folder.
type CreateNodeInput struct {
	ProjectID string
	Name      string
	Type      NodeType
	ParentID  *string
	Language  string
	Content   string
}

// CreateNode persists a new file or folder after validating the parent and
// the caller's write permission.
func (s *Service) CreateNode(ctx context.Context, callerID string, input CreateNodeInput) (Node, error) {
	if strings.TrimSpace(input.Name) == "" || (input.Type != NodeTypeFile && input.Type != NodeTypeFolder) {
		return Node{}, ErrInvalidNode
	}

	role, err := s.roles.ResolveRole(ctx, input.ProjectID, callerID)
	if err != nil {
		return Node{}, err
	}
	if !role.CanRead() {
		return Node{}, ErrAccessDenied
	}
	if !role.CanEdit() {
		return Node{}, ErrReadOnly
	}

	if input.ParentID != nil {
		var parent Node
		err := s.db.WithContext(ctx).Where("id = ?", *input.ParentID).Take(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Node{}, ErrInvalidParent
		}
		if err != nil {
			return Node{}, newServiceError(opCreateNode, "parent_select_failed", err)
		}
		if !parent.IsFolder() || parent.ProjectID != input.ProjectID {
			return Node{}, ErrInvalidParent
		}
	}

	nodeID, err := s.idProvider.NewID()
	if err != nil {
		return Node{}, newServiceError(opCreateNode, "id_generation_failed", err)
	}

	node := Node{
		ID:        nodeID,
		ProjectID: input.ProjectID,
		ParentID:  input.ParentID,
		Name:      strings.TrimSpace(input.Name),
		Type:      input.Type,
		CreatedAt: s.now().UTC(),
		UpdatedAt: s.now().UTC(),
	}
	if input.Type == NodeTypeFile {
		node.Content = input.Content
		node.Language = input.Language
		if node.Language == "" {
			node.Language = defaultLanguage
		}
	}

	if err := s.db.WithContext(ctx).Create(&node).Error; err != nil {
		return Node{}, newServiceError(opCreateNode, "insert_failed", err)
	}
	return node, nil
}

// ProjectTree returns every node in the project, name-sorted.
func (s *Service) ProjectTree(ctx context.Context, callerID, projectID string) ([]Node, error) {
	role, err := s.roles.ResolveRole(ctx, projectID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.CanRead() {
		return nil, ErrAccessDenied
	}

	var nodes []Node
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&nodes).Error; err != nil {
		return nil, newServiceError(opProjectTree, "query_failed", err)
	}
	return nodes, nil
}

// FolderContents returns direct children of a folder (folders before files,
// then by name). An empty folderID targets the project root.
func (s *Service) FolderContents(ctx context.Context, callerID, projectID, folderID string) ([]Node, error) {
	role, err := s.roles.ResolveRole(ctx, projectID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.CanRead() {
		return nil, ErrAccessDenied
	}

	query := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if folderID == "" {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", folderID)
	}

	var nodes []Node
	if err := query.Order("node_type DESC, name ASC").Find(&nodes).Error; err != nil {
		return nil, newServiceError(opFolderContents, "query_failed", err)
	}
	return nodes, nil
}

// Get returns the node after verifying the caller can read its project.
func (s *Service) Get(ctx context.Context, callerID, fileID string) (Node, error) {
	node, err := s.findNode(ctx, fileID)
	if err != nil {
		return Node{}, err
	}
	role, err := s.roles.ResolveRole(ctx, node.ProjectID, callerID)
	if err != nil {
		return Node{}, err
	}
	if !role.CanRead() {
		return Node{}, ErrAccessDenied
	}
	return node, nil
}

// FindByID returns the node without an access check. It exists for callers
// that authorize separately, such as the realtime edit pipeline.
func (s *Service) FindByID(ctx context.Context, fileID string) (Node, error) {
	return s.findNode(ctx, fileID)
}

// UpdateNodeInput carries the optional fields of a node update.
type UpdateNodeInput struct {
	Name     *string
	ParentID *string
	Content  *string
	Language *string
}

// Update applies a partial update. A content change on a file appends a
// Version holding the prior content once the overwrite is persisted.
func (s *Service) Update(ctx context.Context, callerID, fileID string, input UpdateNodeInput) (Node, error) {
	node, err := s.findNode(ctx, fileID)
	if err != nil {
		return Node{}, err
	}

	role, err := s.roles.ResolveRole(ctx, node.ProjectID, callerID)
	if err != nil {
		return Node{}, err
	}
	if !role.CanRead() {
		return Node{}, ErrAccessDenied
	}
	if !role.CanEdit() {
		return Node{}, ErrReadOnly
	}

	if input.ParentID != nil && *input.ParentID != "" {
		var parent Node
		err := s.db.WithContext(ctx).Where("id = ?", *input.ParentID).Take(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Node{}, ErrInvalidParent
		}
		if err != nil {
			return Node{}, newServiceError(opUpdateNode, "parent_select_failed", err)
		}
		if !parent.IsFolder() || parent.ProjectID != node.ProjectID || parent.ID == node.ID {
			return Node{}, ErrInvalidParent
		}
		// Reparenting a folder under its own descendant would create a
		// cycle in the tree.
		if node.IsFolder() {
			if err := s.ensureOutsideSubtree(ctx, node.ID, parent); err != nil {
				return Node{}, err
			}
		}
	}

	prior := node
	contentChanged := input.Content != nil && node.Type == NodeTypeFile && *input.Content != node.Content

	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		node.Name = strings.TrimSpace(*input.Name)
	}
	if input.ParentID != nil {
		if *input.ParentID == "" {
			node.ParentID = nil
		} else {
			node.ParentID = input.ParentID
		}
	}
	if input.Content != nil && node.Type == NodeTypeFile {
		node.Content = *input.Content
	}
	if input.Language != nil && node.Type == NodeTypeFile {
		node.Language = *input.Language
	}
	node.UpdatedAt = s.now().UTC()

	if err := s.db.WithContext(ctx).Save(&node).Error; err != nil {
		return Node{}, newServiceError(opUpdateNode, "save_failed", err)
	}

	// Snapshot only once the overwrite is persisted, so history never
	// records a save that did not happen.
	if contentChanged {
		if err := s.appendVersion(ctx, prior, callerID); err != nil {
			s.logger.Warn("version snapshot failed",
				zap.String("operation", opUpdateNode),
				zap.String("file_id", node.ID),
				zap.Error(err))
		}
	}
	return node, nil
}

// ensureOutsideSubtree rejects a candidate parent that sits inside nodeID's
// own subtree, walking the parent's ancestor chain up to the root.
func (s *Service) ensureOutsideSubtree(ctx context.Context, nodeID string, parent Node) error {
	seen := map[string]bool{parent.ID: true}
	current := parent
	for {
		if current.ID == nodeID {
			return ErrInvalidParent
		}
		if current.ParentID == nil {
			return nil
		}
		var next Node
		err := s.db.WithContext(ctx).Where("id = ?", *current.ParentID).Take(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return newServiceError(opUpdateNode, "ancestor_select_failed", err)
		}
		if seen[next.ID] {
			return ErrInvalidParent
		}
		seen[next.ID] = true
		current = next
	}
}

// Delete removes a node. Deleting a folder cascades recursively to every
// descendant, not just direct children.
func (s *Service) Delete(ctx context.Context, callerID, fileID string) (Node, error) {
	node, err := s.findNode(ctx, fileID)
	if err != nil {
		return Node{}, err
	}

	role, err := s.roles.ResolveRole(ctx, node.ProjectID, callerID)
	if err != nil {
		return Node{}, err
	}
	if !role.CanRead() {
		return Node{}, ErrAccessDenied
	}
	if !role.CanEdit() {
		return Node{}, ErrReadOnly
	}

	doomed := []string{node.ID}
	if node.IsFolder() {
		// The visited set keeps the walk terminating even on a corrupt
		// tree containing a parent cycle.
		visited := map[string]bool{node.ID: true}
		frontier := []string{node.ID}
		for len(frontier) > 0 {
			var children []Node
			if err := s.db.WithContext(ctx).
				Select("id", "node_type").
				Where("parent_id IN ?", frontier).
				Find(&children).Error; err != nil {
				return Node{}, newServiceError(opDeleteNode, "descendant_query_failed", err)
			}
			frontier = frontier[:0]
			for _, child := range children {
				if visited[child.ID] {
					continue
				}
				visited[child.ID] = true
				doomed = append(doomed, child.ID)
				if child.IsFolder() {
					frontier = append(frontier, child.ID)
				}
			}
		}
	}

	if err := s.db.WithContext(ctx).Where("id IN ?", doomed).Delete(&Node{}).Error; err != nil {
		return Node{}, newServiceError(opDeleteNode, "delete_failed", err)
	}
	return node, nil
}

// ListVersions returns the version history for a file, newest first.
func (s *Service) ListVersions(ctx context.Context, callerID, fileID string) ([]Version, error) {
	node, err := s.findNode(ctx, fileID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.ResolveRole(ctx, node.ProjectID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.CanRead() {
		return nil, ErrAccessDenied
	}

	var versions []Version
	if err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("created_at DESC").
		Find(&versions).Error; err != nil {
		return nil, newServiceError(opListVersions, "query_failed", err)
	}
	return versions, nil
}

// Revert restores a historical version's content, snapshotting the
// pre-revert state so the revert itself is undoable.
func (s *Service) Revert(ctx context.Context, callerID, fileID, versionID string) (Node, error) {
	node, err := s.findNode(ctx, fileID)
	if err != nil {
		return Node{}, err
	}
	if node.Type != NodeTypeFile {
		return Node{}, ErrNotFile
	}

	role, err := s.roles.ResolveRole(ctx, node.ProjectID, callerID)
	if err != nil {
		return Node{}, err
	}
	if !role.CanRead() {
		return Node{}, ErrAccessDenied
	}
	if !role.CanEdit() {
		return Node{}, ErrReadOnly
	}

	var version Version
	err = s.db.WithContext(ctx).
		Where("id = ? AND file_id = ?", versionID, fileID).
		Take(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Node{}, ErrVersionNotFound
	}
	if err != nil {
		return Node{}, newServiceError(opRevert, "version_select_failed", err)
	}

	prior := node
	node.Content = version.Content
	if version.Language != "" {
		node.Language = version.Language
	}
	node.UpdatedAt = s.now().UTC()

	if err := s.db.WithContext(ctx).Save(&node).Error; err != nil {
		return Node{}, newServiceError(opRevert, "save_failed", err)
	}

	if err := s.appendVersion(ctx, prior, callerID); err != nil {
		s.logger.Warn("pre-revert snapshot failed",
			zap.String("operation", opRevert),
			zap.String("file_id", node.ID),
			zap.Error(err))
	}
	return node, nil
}

// SaveOutcome reports an authoritative content save. VersionSaved is false
// when the best-effort prior-content snapshot failed; the save itself still
// succeeded in that case.
type SaveOutcome struct {
	Node         Node
	VersionSaved bool
}

// SaveContent performs the realtime-path authoritative save: full content
// overwrite plus a best-effort Version holding the prior content. The caller
// is responsible for authorization; the realtime hub resolves the sender's
// role before invoking this.
func (s *Service) SaveContent(ctx context.Context, fileID, content, authorID string) (SaveOutcome, error) {
	node, err := s.findNode(ctx, fileID)
	if err != nil {
		return SaveOutcome{}, err
	}
	if node.Type != NodeTypeFile {
		return SaveOutcome{}, ErrNotFile
	}

	prior := node
	node.Content = content
	node.UpdatedAt = s.now().UTC()
	if err := s.db.WithContext(ctx).Save(&node).Error; err != nil {
		return SaveOutcome{}, newServiceError(opSaveContent, "save_failed", err)
	}

	versionSaved := true
	if err := s.appendVersion(ctx, prior, authorID); err != nil {
		versionSaved = false
		s.logger.Warn("version snapshot failed",
			zap.String("operation", opSaveContent),
			zap.String("file_id", node.ID),
			zap.Error(err))
	}
	return SaveOutcome{Node: node, VersionSaved: versionSaved}, nil
}

func (s *Service) findNode(ctx context.Context, fileID string) (Node, error) {
	var node Node
	err := s.db.WithContext(ctx).Where("id = ?", fileID).Take(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Node{}, ErrNodeNotFound
	}
	if err != nil {
		return Node{}, newServiceError(opGetNode, "select_failed", err)
	}
	return node, nil
}

// appendVersion snapshots the node's current (pre-overwrite) content.
func (s *Service) appendVersion(ctx context.Context, node Node, authorID string) error {
	versionID, err := s.idProvider.NewID()
	if err != nil {
		return err
	}
	version := Version{
		ID:        versionID,
		FileID:    node.ID,
		ProjectID: node.ProjectID,
		Content:   node.Content,
		Language:  node.Language,
		AuthorID:  authorID,
		CreatedAt: s.now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&version).Error
}
