package lumen

import "time"

// DocType discriminates document kinds in the heterogeneous store.
type DocType string

const (
	DocTask     DocType = "task"
	DocTag      DocType = "tag"
	DocBranch   DocType = "branch"
	DocFile     DocType = "file"
	DocSettings DocType = "settings"
)

// Well-known document ids.
const (
	// DefaultBranchID is the always-present branch every task falls back to.
	// It cannot be deleted or renamed.
	DefaultBranchID = "main"

	// SettingsID is the id of the settings singleton.
	SettingsID = "settings"
)

// OrderIndexSpacing is the gap left between consecutive task order indexes
// so tasks can be reordered without rewriting their neighbors.
const OrderIndexSpacing = 1024

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskDone      TaskStatus = "done"
	TaskDiscarded TaskStatus = "discarded"
)

// Meta carries the fields shared by every document: identity, the opaque
// optimistic-concurrency revision token, and timestamps. A non-nil DeletedAt
// is a tombstone: the document is soft-deleted but retained so the deletion
// can propagate through sync.
type Meta struct {
	ID        string     `json:"id"`
	Rev       string     `json:"rev"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt"`
}

// DocID returns the document id.
func (m Meta) DocID() string { return m.ID }

// DocRev returns the revision token.
func (m Meta) DocRev() string { return m.Rev }

// DocUpdatedAt returns the last modification time.
func (m Meta) DocUpdatedAt() time.Time { return m.UpdatedAt }

// Tombstoned reports whether the document is soft-deleted.
func (m Meta) Tombstoned() bool { return m.DeletedAt != nil }

// DocMeta gives mutable access to the shared fields.
func (m *Meta) DocMeta() *Meta { return m }

// Schedule places a task on a calendar day, optionally at a time of day.
type Schedule struct {
	Date     string `json:"date"`     // YYYY-MM-DD, empty for unscheduled
	Time     string `json:"time"`     // HH:MM, empty for all-day
	Timezone string `json:"timezone"` // IANA name, e.g. "Europe/Berlin"
}

// Task is a markdown todo item.
type Task struct {
	Meta
	Status        TaskStatus `json:"status"`
	Scheduled     Schedule   `json:"scheduled"`
	EstimatedTime int        `json:"estimatedTime"` // minutes
	SpentTime     int        `json:"spentTime"`     // minutes
	Content       string     `json:"content"`
	OrderIndex    int64      `json:"orderIndex"`
	BranchID      string     `json:"branchId"`
	Tags          []string   `json:"tags"`
	Attachments   []string   `json:"attachments"`
}

// DocType implements Document.
func (*Task) DocType() DocType { return DocTask }

// Tag is a named label tasks can carry. Name uniqueness is enforced by
// TagService, not by the store.
type Tag struct {
	Meta
	Name      string `json:"name"`
	Color     string `json:"color"`
	SortOrder int    `json:"sortOrder"`
}

func (*Tag) DocType() DocType { return DocTag }

// Branch partitions tasks into independent lists.
type Branch struct {
	Meta
	Name string `json:"name"`
}

func (*Branch) DocType() DocType { return DocBranch }

// FileDoc describes an attachment. The binary payload is stored as a blob
// keyed by the record id and is never part of snapshots or hashing.
type FileDoc struct {
	Meta
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

func (*FileDoc) DocType() DocType { return DocFile }

// WindowState is the persisted window geometry.
type WindowState struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

// AssistantConfig holds the AI provider configuration consumed by the
// assistant subsystem. The core only stores it.
type AssistantConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	BaseURL  string `json:"baseUrl"`
}

// Settings is the configuration singleton (id SettingsID).
type Settings struct {
	Meta
	Theme        string          `json:"theme"`
	Window       WindowState     `json:"window"`
	ActiveBranch string          `json:"activeBranch"`
	Assistant    AssistantConfig `json:"assistant"`
}

func (*Settings) DocType() DocType { return DocSettings }

// Document is the tagged-variant view of any stored record.
type Document interface {
	DocType() DocType
	DocID() string
	DocRev() string
	DocUpdatedAt() time.Time
	Tombstoned() bool
	DocMeta() *Meta
}

var (
	_ Document = (*Task)(nil)
	_ Document = (*Tag)(nil)
	_ Document = (*Branch)(nil)
	_ Document = (*FileDoc)(nil)
	_ Document = (*Settings)(nil)
)

// Collections is the full typed document set, the input to snapshot building
// and the payload of a snapshot.
type Collections struct {
	Tasks    []Task     `json:"tasks"`
	Tags     []Tag      `json:"tags"`
	Branches []Branch   `json:"branches"`
	Files    []FileDoc  `json:"files"`
	Settings []Settings `json:"settings"`
}
