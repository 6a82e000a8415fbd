package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound indicates the referenced project does not exist.
	ErrProjectNotFound = errors.New("projects: project not found")
	// ErrNotOwner indicates an operation reserved for the project owner.
	ErrNotOwner = errors.New("projects: caller is not the project owner")
	// ErrOwnerCollaborator rejects adding the owner to the collaborators set.
	ErrOwnerCollaborator = errors.New("projects: owner cannot be a collaborator")
	// ErrInvalidRole indicates a role outside {viewer, editor}.
	ErrInvalidRole = errors.New("projects: invalid collaborator role")
	// ErrInvalidName indicates an empty project name.
	ErrInvalidName = errors.New("projects: project name required")

	noOpLogger = zap.NewNop()
)

// IDProvider abstracts project id generation.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for the project service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages projects, collaborators, and role resolution.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the project service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("projects: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("projects: id provider required")
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
		logger:     logger,
	}, nil
}

// Create persists a new project owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID, name, description string) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, ErrInvalidName
	}
	projectID, err := s.idProvider.NewID()
	if err != nil {
		return Project{}, err
	}
	project := Project{
		ID:          projectID,
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerID:     ownerID,
		CreatedAt:   s.now().UTC(),
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return Project{}, err
	}
	return project, nil
}

// ListForUser returns projects owned by or shared with the user, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Project, error) {
	var results []Project
	err := s.db.WithContext(ctx).
		Where("owner_id = ? OR id IN (?)",
			userID,
			s.db.Model(&Collaborator{}).Select("project_id").Where("user_id = ?", userID),
		).
		Order("updated_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns the project for the given identifier.
func (s *Service) Get(ctx context.Context, projectID string) (Project, error) {
	var project Project
	err := s.db.WithContext(ctx).Where("id = ?", projectID).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Project{}, ErrProjectNotFound
	}
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

// ResolveRole determines the caller's role on a project. It is the single
// authorization gate consulted before every mutating operation.
func (s *Service) ResolveRole(ctx context.Context, projectID, userID string) (Role, error) {
	if userID == "" {
		return RoleNone, nil
	}
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return RoleNone, err
	}
	return s.resolveRoleForProject(ctx, project, userID)
}

func (s *Service) resolveRoleForProject(ctx context.Context, project Project, userID string) (Role, error) {
	if project.OwnerID == userID {
		return RoleOwner, nil
	}
	var collaborator Collaborator
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", project.ID, userID).
		Take(&collaborator).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, err
	}
	return collaborator.Role, nil
}

// AddCollaborator grants userID the given role on the project, updating the
// stored role in place when the user is already a collaborator.
func (s *Service) AddCollaborator(ctx context.Context, projectID, userID string, role Role) error {
	if role != RoleEditor && role != RoleViewer {
		return ErrInvalidRole
	}
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if project.OwnerID == userID {
		return ErrOwnerCollaborator
	}

	var existing Collaborator
	err = s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record := Collaborator{
			ProjectID: projectID,
			UserID:    userID,
			Role:      role,
			CreatedAt: s.now().UTC(),
		}
		return s.db.WithContext(ctx).Create(&record).Error
	}
	if err != nil {
		return err
	}
	if existing.Role == role {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&Collaborator{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Update("role", role).Error
}

// Invite adds the user identified by userID as a collaborator. Only the
// project owner may invite.
func (s *Service) Invite(ctx context.Context, projectID, callerID, inviteeID string, role Role) error {
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if project.OwnerID != callerID {
		return ErrNotOwner
	}
	if err := s.AddCollaborator(ctx, projectID, inviteeID, role); err != nil {
		return err
	}
	s.logger.Info("collaborator invited",
		zap.String("project_id", projectID),
		zap.String("user_id", inviteeID),
		zap.String("role", string(role)))
	return nil
}

// Collaborators lists the stored collaborator entries for a project.
func (s *Service) Collaborators(ctx context.Context, projectID string) ([]Collaborator, error) {
	var results []Collaborator
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
