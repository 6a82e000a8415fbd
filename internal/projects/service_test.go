package projects

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDs struct {
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("project-%d", p.next), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "projects.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&Project{}, &Collaborator{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	fixedClock := func() time.Time {
		return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	}
	service, err := NewService(ServiceConfig{Database: db, IDProvider: &sequentialIDs{}, Clock: fixedClock})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func TestCreateRequiresName(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Create(context.Background(), "owner-1", "   ", ""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestResolveRoleCoversEveryAccessLevel(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	project, err := service.Create(ctx, "owner-1", "Demo", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := service.AddCollaborator(ctx, project.ID, "editor-1", RoleEditor); err != nil {
		t.Fatalf("add editor failed: %v", err)
	}
	if err := service.AddCollaborator(ctx, project.ID, "viewer-1", RoleViewer); err != nil {
		t.Fatalf("add viewer failed: %v", err)
	}

	cases := []struct {
		userID string
		want   Role
	}{
		{"owner-1", RoleOwner},
		{"editor-1", RoleEditor},
		{"viewer-1", RoleViewer},
		{"stranger", RoleNone},
		{"", RoleNone},
	}
	for _, testCase := range cases {
		role, err := service.ResolveRole(ctx, project.ID, testCase.userID)
		if err != nil {
			t.Fatalf("resolve role for %q failed: %v", testCase.userID, err)
		}
		if role != testCase.want {
			t.Fatalf("user %q: expected role %s, got %s", testCase.userID, testCase.want, role)
		}
	}
}

func TestResolveRoleUnknownProject(t *testing.T) {
	service := newTestService(t)
	if _, err := service.ResolveRole(context.Background(), "missing", "owner-1"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestOwnerNeverStoredAsCollaborator(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	project, err := service.Create(ctx, "owner-1", "Demo", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := service.AddCollaborator(ctx, project.ID, "owner-1", RoleEditor); !errors.Is(err, ErrOwnerCollaborator) {
		t.Fatalf("expected ErrOwnerCollaborator, got %v", err)
	}
	collaborators, err := service.Collaborators(ctx, project.ID)
	if err != nil {
		t.Fatalf("collaborators failed: %v", err)
	}
	if len(collaborators) != 0 {
		t.Fatalf("expected empty collaborator set, got %d entries", len(collaborators))
	}
}

func TestAddCollaboratorUpdatesRoleInPlace(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	project, err := service.Create(ctx, "owner-1", "Demo", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := service.AddCollaborator(ctx, project.ID, "member-1", RoleViewer); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := service.AddCollaborator(ctx, project.ID, "member-1", RoleEditor); err != nil {
		t.Fatalf("re-add failed: %v", err)
	}

	collaborators, err := service.Collaborators(ctx, project.ID)
	if err != nil {
		t.Fatalf("collaborators failed: %v", err)
	}
	if len(collaborators) != 1 {
		t.Fatalf("expected a single collaborator row, got %d", len(collaborators))
	}
	if collaborators[0].Role != RoleEditor {
		t.Fatalf("expected role upgraded to editor, got %s", collaborators[0].Role)
	}
}

func TestAddCollaboratorRejectsUnassignableRoles(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	project, err := service.Create(ctx, "owner-1", "Demo", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for _, role := range []Role{RoleOwner, RoleNone, Role("admin")} {
		if err := service.AddCollaborator(ctx, project.ID, "member-1", role); !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("role %s: expected ErrInvalidRole, got %v", role, err)
		}
	}
}

func TestInviteRequiresOwner(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	project, err := service.Create(ctx, "owner-1", "Demo", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := service.AddCollaborator(ctx, project.ID, "editor-1", RoleEditor); err != nil {
		t.Fatalf("add editor failed: %v", err)
	}

	if err := service.Invite(ctx, project.ID, "editor-1", "member-2", RoleViewer); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for editor caller, got %v", err)
	}
	if err := service.Invite(ctx, project.ID, "owner-1", "member-2", RoleViewer); err != nil {
		t.Fatalf("owner invite failed: %v", err)
	}
	role, err := service.ResolveRole(ctx, project.ID, "member-2")
	if err != nil {
		t.Fatalf("resolve role failed: %v", err)
	}
	if role != RoleViewer {
		t.Fatalf("expected viewer role after invite, got %s", role)
	}
}

func TestListForUserIncludesOwnedAndShared(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	owned, err := service.Create(ctx, "user-1", "Mine", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	shared, err := service.Create(ctx, "user-2", "Theirs", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := service.Create(ctx, "user-3", "Unrelated", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := service.AddCollaborator(ctx, shared.ID, "user-1", RoleEditor); err != nil {
		t.Fatalf("add collaborator failed: %v", err)
	}

	listed, err := service.ListForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(listed))
	}
	seen := map[string]bool{}
	for _, project := range listed {
		seen[project.ID] = true
	}
	if !seen[owned.ID] || !seen[shared.ID] {
		t.Fatalf("expected %s and %s in listing, got %v", owned.ID, shared.ID, seen)
	}
}

func TestParseAssignableRole(t *testing.T) {
	if role, ok := ParseAssignableRole(""); !ok || role != RoleEditor {
		t.Fatalf("expected empty input to default to editor, got %s ok=%v", role, ok)
	}
	if role, ok := ParseAssignableRole("viewer"); !ok || role != RoleViewer {
		t.Fatalf("expected viewer, got %s ok=%v", role, ok)
	}
	for _, value := range []string{"owner", "none", "admin"} {
		if _, ok := ParseAssignableRole(value); ok {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}
