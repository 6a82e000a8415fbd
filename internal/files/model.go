package files

import "time"

// NodeType distinguishes files from folders in the project tree.
type NodeType string

const (
	// NodeTypeFile is a leaf carrying content and a language tag.
	NodeTypeFile NodeType = "file"
	// NodeTypeFolder is a container; folders carry no content or language.
	NodeTypeFolder NodeType = "folder"
)

const defaultLanguage = "javascript"

// Node is a file or folder belonging to exactly one project. ParentID nil
// means the node sits at the project root; a non-nil ParentID must reference
// a folder node in the same project, enforced at the service layer.
type Node struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	ProjectID string    `gorm:"column:project_id;size:64;not null;index:idx_nodes_project_parent,priority:1"`
	ParentID  *string   `gorm:"column:parent_id;size:64;index:idx_nodes_project_parent,priority:2"`
	Name      string    `gorm:"column:name;size:190;not null"`
	Type      NodeType  `gorm:"column:node_type;size:16;not null"`
	Content   string    `gorm:"column:content;type:text"`
	Language  string    `gorm:"column:language;size:64"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Node) TableName() string {
	return "file_nodes"
}

// IsFolder reports whether the node is a folder.
func (n Node) IsFolder() bool {
	return n.Type == NodeTypeFolder
}

// Version is an immutable snapshot of a file's content at a point in time.
// Rows are append-only; nothing in the system mutates or deletes them.
type Version struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	FileID    string    `gorm:"column:file_id;size:64;not null;index:idx_versions_file_created,priority:1"`
	ProjectID string    `gorm:"column:project_id;size:64;not null;index"`
	Content   string    `gorm:"column:content;type:text;not null"`
	Language  string    `gorm:"column:language;size:64"`
	AuthorID  string    `gorm:"column:author_id;size:64"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_versions_file_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "file_versions"
}
