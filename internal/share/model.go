package share

import (
	"time"

	"github.com/collabforge/backend/internal/projects"
)

// Token is a time-limited, role-scoped capability granting project
// membership to whoever presents it. Tokens are multi-use: joining does not
// invalidate them, and they expire lazily by timestamp comparison.
type Token struct {
	ID        string        `gorm:"column:id;primaryKey;size:64;not null"`
	Token     string        `gorm:"column:token;size:64;not null;uniqueIndex"`
	ProjectID string        `gorm:"column:project_id;size:64;not null;index"`
	Role      projects.Role `gorm:"column:role;size:16;not null"`
	CreatedAt time.Time     `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt time.Time     `gorm:"column:expires_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Token) TableName() string {
	return "share_tokens"
}
