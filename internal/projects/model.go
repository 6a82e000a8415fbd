package projects

import "time"

// Role is the access level a user holds on a project.
type Role string

const (
	// RoleOwner is implicit from Project.OwnerID and never stored in the
	// collaborators table.
	RoleOwner Role = "owner"
	// RoleEditor may read and mutate project content.
	RoleEditor Role = "editor"
	// RoleViewer may read project content but never mutate it.
	RoleViewer Role = "viewer"
	// RoleNone means the user has no access to the project.
	RoleNone Role = "none"
)

// CanEdit reports whether the role permits content mutation.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanRead reports whether the role permits reading project content.
func (r Role) CanRead() bool {
	return r != RoleNone && r != ""
}

// ParseAssignableRole normalizes a role string for collaborator assignment.
// Owner is implicit and none is not assignable; both are rejected.
func ParseAssignableRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleEditor, RoleViewer:
		return Role(value), true
	case "":
		return RoleEditor, true
	default:
		return "", false
	}
}

// Project groups files under an owner and a set of collaborators.
type Project struct {
	ID          string    `gorm:"column:id;primaryKey;size:64;not null"`
	Name        string    `gorm:"column:name;size:190;not null"`
	Description string    `gorm:"column:description;type:text"`
	OwnerID     string    `gorm:"column:owner_id;size:64;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Project) TableName() string {
	return "projects"
}

// Collaborator maps a user to a project with a stored role. A user appears
// at most once per project; the owner is never stored here.
type Collaborator struct {
	ProjectID string    `gorm:"column:project_id;primaryKey;size:64;not null"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:64;not null;index"`
	Role      Role      `gorm:"column:role;size:16;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Collaborator) TableName() string {
	return "project_collaborators"
}
