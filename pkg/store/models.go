// Package store is the transactional Metadata Store: GORM-backed
// records for secrets, pending/committed uploads, pending/completed
// downloads, and the singleton byte-cap counter, plus the repository
// methods the lifecycle packages use to mutate them transactionally.
package store

import "time"

// DownloadUsage distinguishes the two PendingDownload rows an init
// call creates: one that gates the body stream, one that gates the
// post-transfer confirm call.
type DownloadUsage string

const (
	UsageContent DownloadUsage = "content"
	UsageConfirm DownloadUsage = "confirm"
)

// Secret is the persisted salt+hash pair backing an access or
// deletion password. Immutable once created.
type Secret struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	Salt      []byte `gorm:"not null" json:"-"`
	Hash      []byte `gorm:"not null" json:"-"`
	CreatedAt time.Time
}

// TableName returns the table name for Secret.
func (Secret) TableName() string { return "secrets" }

// PendingUpload is the reservation created by announce and consumed
// by stream. It exists only between those two calls, or until
// upload_timeout_secs elapses without a stream call.
type PendingUpload struct {
	ID                 uint `gorm:"primaryKey" json:"-"`
	Key                string `gorm:"uniqueIndex;size:36;not null" json:"-"`
	FileNameToken      []byte `gorm:"not null" json:"-"`
	DeclaredSize       int64  `gorm:"not null" json:"-"`
	ContentHash        []byte `gorm:"not null" json:"-"`
	Nonce              []byte `gorm:"not null" json:"-"`
	AccessSecretID     uint   `gorm:"not null" json:"-"`
	AccessSecret       Secret `gorm:"foreignKey:AccessSecretID" json:"-"`
	DeletionSecretID   *uint  `json:"-"`
	DeletionSecret     *Secret `gorm:"foreignKey:DeletionSecretID" json:"-"`
	DownloadLimit      *int   `json:"-"`
	ExpireDate         time.Time `gorm:"not null" json:"-"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName returns the table name for PendingUpload.
func (PendingUpload) TableName() string { return "pending_uploads" }

// Upload is a committed, durable blob record. Soft-deleted rows are
// invisible to all lookups but may still have a file on disk until
// the Reaper or the delete handler removes it.
type Upload struct {
	ID               uint `gorm:"primaryKey" json:"-"`
	Key              string `gorm:"uniqueIndex;size:36;not null" json:"-"`
	ContentHash      []byte `gorm:"not null" json:"-"`
	Size             int64  `gorm:"not null" json:"-"`
	FileNameToken    []byte `gorm:"not null" json:"-"`
	StoragePath      string `gorm:"not null" json:"-"`
	Nonce            []byte `gorm:"not null" json:"-"`
	AccessSecretID   uint   `gorm:"not null" json:"-"`
	AccessSecret     Secret `gorm:"foreignKey:AccessSecretID" json:"-"`
	DeletionSecretID *uint  `json:"-"`
	DeletionSecret   *Secret `gorm:"foreignKey:DeletionSecretID" json:"-"`
	DownloadLimit    *int      `json:"-"`
	ExpireDate       time.Time `gorm:"not null;index" json:"-"`
	Deleted          bool      `gorm:"not null;default:false;index" json:"-"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"-"`

	Downloads []Download `gorm:"foreignKey:UploadID" json:"-"`
}

// TableName returns the table name for Upload.
func (Upload) TableName() string { return "uploads" }

// PendingDownload is a short-lived, single-use handshake token created
// in pairs at download init. Each row is deleted the moment it is
// consumed by body or confirm.
type PendingDownload struct {
	ID        uint          `gorm:"primaryKey" json:"-"`
	Key       string        `gorm:"uniqueIndex;size:36;not null" json:"-"`
	Usage     DownloadUsage `gorm:"not null;size:16" json:"-"`
	UploadID  uint          `gorm:"not null;index" json:"-"`
	Upload    Upload        `gorm:"foreignKey:UploadID" json:"-"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"-"`
}

// TableName returns the table name for PendingDownload.
func (PendingDownload) TableName() string { return "pending_downloads" }

// Download records a completed body-transfer start. Never mutated
// after insertion; its existence is what the per-upload download
// count sums over.
type Download struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UploadID  uint       `gorm:"not null;index" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName returns the table name for Download.
func (Download) TableName() string { return "downloads" }

// Status is the singleton Resource Accountant row: current aggregate
// byte usage and upload count across all non-deleted Uploads.
type Status struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	TotalBytes  int64     `gorm:"not null;default:0" json:"total_bytes"`
	UploadCount int64     `gorm:"not null;default:0" json:"upload_count"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"-"`
}

// TableName returns the table name for Status.
func (Status) TableName() string { return "status" }

// StatusSingletonID is the fixed primary key of the one Status row.
const StatusSingletonID = 1

// AllModels returns every model the schema migrator must create.
// Order matters for foreign key creation on databases that enforce it
// eagerly; parents before children.
func AllModels() []any {
	return []any{
		&Secret{},
		&PendingUpload{},
		&Upload{},
		&PendingDownload{},
		&Download{},
		&Status{},
	}
}
