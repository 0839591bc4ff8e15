package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tasktracker/apiserver/types"
)

const attachmentColumns = `id, task_id, filename, content_type, size, sha256, object_key, created_at`

// AttachmentRepository handles persistence for task attachment metadata.
type AttachmentRepository struct {
	db *sql.DB
}

func NewAttachmentRepository(db *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) ListForTask(ctx context.Context, taskID int) ([]types.Attachment, error) {
	const query = `SELECT ` + attachmentColumns + ` FROM task_attachments WHERE task_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := make([]types.Attachment, 0)
	for rows.Next() {
		attachment, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attachments, nil
}

// ObjectKeysForOwner returns the object keys of every attachment on tasks
// owned by the account, so the objects can be removed after a cascade.
func (r *AttachmentRepository) ObjectKeysForOwner(ctx context.Context, ownerID int) ([]string, error) {
	const query = `
		SELECT a.object_key
		FROM task_attachments a
		JOIN tasks t ON t.id = a.task_id
		WHERE t.owner_id = $1`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *AttachmentRepository) Get(ctx context.Context, id int) (types.Attachment, error) {
	const query = `SELECT ` + attachmentColumns + ` FROM task_attachments WHERE id = $1`
	return scanAttachment(r.db.QueryRowContext(ctx, query, id))
}

func (r *AttachmentRepository) Create(ctx context.Context, attachment types.Attachment) (types.Attachment, error) {
	attachment.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO task_attachments (task_id, filename, content_type, size, sha256, object_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		attachment.TaskID,
		attachment.Filename,
		attachment.ContentType,
		attachment.Size,
		attachment.SHA256,
		attachment.ObjectKey,
		attachment.CreatedAt,
	).Scan(&attachment.ID); err != nil {
		return types.Attachment{}, err
	}
	return attachment, nil
}

func (r *AttachmentRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM task_attachments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAttachment(row rowScanner) (types.Attachment, error) {
	var attachment types.Attachment
	err := row.Scan(
		&attachment.ID,
		&attachment.TaskID,
		&attachment.Filename,
		&attachment.ContentType,
		&attachment.Size,
		&attachment.SHA256,
		&attachment.ObjectKey,
		&attachment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Attachment{}, ErrNotFound
		}
		return types.Attachment{}, err
	}
	return attachment, nil
}
