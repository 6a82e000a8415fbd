package share

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/collabforge/backend/internal/projects"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultTTL     = 24 * time.Hour
	tokenByteCount = 12
)

var (
	// ErrTokenNotFound indicates no token matches the presented string.
	ErrTokenNotFound = errors.New("share: token not found")
	// ErrTokenExpired indicates the token's expiry has passed.
	ErrTokenExpired = errors.New("share: token expired")
	// ErrNotOwner indicates only the project owner may issue tokens.
	ErrNotOwner = errors.New("share: caller is not the project owner")
	// ErrInvalidRole indicates a role outside {viewer, editor}.
	ErrInvalidRole = errors.New("share: invalid token role")

	noOpLogger = zap.NewNop()
)

// ProjectAccess is the slice of the project service the token issuer needs.
type ProjectAccess interface {
	Get(ctx context.Context, projectID string) (projects.Project, error)
	AddCollaborator(ctx context.Context, projectID, userID string, role projects.Role) error
	ResolveRole(ctx context.Context, projectID, userID string) (projects.Role, error)
}

// IDProvider abstracts token row id generation.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for the share-token service.
type ServiceConfig struct {
	Database   *gorm.DB
	Projects   ProjectAccess
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service issues and validates share tokens and applies token joins.
type Service struct {
	db         *gorm.DB
	projects   ProjectAccess
	now        func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the share-token service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("share: database connection required")
	}
	if cfg.Projects == nil {
		return nil, fmt.Errorf("share: project access required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("share: id provider required")
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
		projects:   cfg.Projects,
		now:        clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create issues a new share token for the project. Only the owner may issue.
// Role defaults to editor and ttl to 24 hours.
func (s *Service) Create(ctx context.Context, callerID, projectID string, role projects.Role, ttl time.Duration) (Token, error) {
	if role == "" {
		role = projects.RoleEditor
	}
	if role != projects.RoleEditor && role != projects.RoleViewer {
		return Token{}, ErrInvalidRole
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return Token{}, err
	}
	if project.OwnerID != callerID {
		return Token{}, ErrNotOwner
	}

	rowID, err := s.idProvider.NewID()
	if err != nil {
		return Token{}, err
	}
	opaque, err := generateOpaqueToken()
	if err != nil {
		return Token{}, err
	}

	now := s.now().UTC()
	token := Token{
		ID:        rowID,
		Token:     opaque,
		ProjectID: projectID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		return Token{}, err
	}

	s.logger.Info("share token issued",
		zap.String("project_id", projectID),
		zap.String("role", string(role)),
		zap.Time("expires_at", token.ExpiresAt))
	return token, nil
}

// Grant describes what a validated token confers.
type Grant struct {
	ProjectID string
	Role      projects.Role
}

// Validate resolves the token while it remains unexpired. Expiry is checked
// lazily at read time; there is no background eviction.
func (s *Service) Validate(ctx context.Context, opaque string) (Grant, error) {
	token, err := s.lookup(ctx, opaque, "")
	if err != nil {
		return Grant{}, err
	}
	return Grant{ProjectID: token.ProjectID, Role: token.Role}, nil
}

// JoinResult reports the outcome of a token join.
type JoinResult struct {
	ProjectID     string
	Role          projects.Role
	AlreadyMember bool
}

// Join adds the caller as a collaborator with the token's role. A token may
// be used to join more than once before expiry; repeat joins by the same
// user report AlreadyMember without error.
func (s *Service) Join(ctx context.Context, callerID, projectID, opaque string) (JoinResult, error) {
	token, err := s.lookup(ctx, opaque, projectID)
	if err != nil {
		return JoinResult{}, err
	}

	existing, err := s.projects.ResolveRole(ctx, projectID, callerID)
	if err != nil {
		return JoinResult{}, err
	}
	if existing != projects.RoleNone {
		return JoinResult{ProjectID: projectID, Role: existing, AlreadyMember: true}, nil
	}

	if err := s.projects.AddCollaborator(ctx, projectID, callerID, token.Role); err != nil {
		return JoinResult{}, err
	}
	s.logger.Info("user joined via share token",
		zap.String("project_id", projectID),
		zap.String("user_id", callerID),
		zap.String("role", string(token.Role)))
	return JoinResult{ProjectID: projectID, Role: token.Role}, nil
}

func (s *Service) lookup(ctx context.Context, opaque, projectID string) (Token, error) {
	query := s.db.WithContext(ctx).Where("token = ?", opaque)
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}

	var token Token
	err := query.Take(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, err
	}
	if !s.now().UTC().Before(token.ExpiresAt) {
		return Token{}, ErrTokenExpired
	}
	return token, nil
}

func generateOpaqueToken() (string, error) {
	raw := make([]byte, tokenByteCount)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
