package types

import "time"

// Attachment is a file uploaded to a task. The content lives in object
// storage under ObjectKey; only metadata is kept in the database.
type Attachment struct {
	ID          int       `json:"id" db:"id"`
	TaskID      int       `json:"task_id" db:"task_id"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	SHA256      string    `json:"sha256" db:"sha256"`
	ObjectKey   string    `json:"-" db:"object_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
