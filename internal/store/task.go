package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tasktracker/apiserver/types"
)

const taskColumns = `t.id, t.title, t.description, t.status, t.owner_id, u.username, t.created_at, t.updated_at`

// TaskRepository handles persistence for tasks.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// ListForOwner returns one page of the owner's tasks ordered by id, and
// the number of tasks matching the filter.
func (r *TaskRepository) ListForOwner(ctx context.Context, ownerID int, filter types.TaskFilter, offset, limit int) ([]types.Task, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}
	status := string(filter.Status)

	const countQuery = `
		SELECT COUNT(1)
		FROM tasks t
		WHERE t.owner_id = $1 AND ($2::text = '' OR t.status = $2::text)`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, ownerID, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN users u ON u.id = t.owner_id
		WHERE t.owner_id = $1 AND ($2::text = '' OR t.status = $2::text)
		ORDER BY t.id
		OFFSET $3 LIMIT $4`
	rows, err := r.db.QueryContext(ctx, listQuery, ownerID, status, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

func (r *TaskRepository) Get(ctx context.Context, id int) (types.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN users u ON u.id = t.owner_id
		WHERE t.id = $1`
	return scanTask(r.db.QueryRowContext(ctx, query, id))
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	const query = `
		WITH inserted AS (
			INSERT INTO tasks (title, description, status, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, owner_id
		)
		SELECT inserted.id, u.username
		FROM inserted
		JOIN users u ON u.id = inserted.owner_id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		task.Title,
		task.Description,
		task.Status,
		task.OwnerID,
		task.CreatedAt,
		task.UpdatedAt,
	).Scan(&task.ID, &task.Owner); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

// Update writes title, description and status. Owner and creation time are
// never written, whatever the caller put in the struct.
func (r *TaskRepository) Update(ctx context.Context, task types.Task) (types.Task, error) {
	const query = `
		UPDATE tasks
		SET title = $1,
			description = $2,
			status = $3,
			updated_at = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(
		ctx,
		query,
		task.Title,
		task.Description,
		task.Status,
		time.Now().UTC(),
		task.ID,
	)
	if err != nil {
		return types.Task{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Task{}, err
	}
	if affected == 0 {
		return types.Task{}, ErrNotFound
	}
	return r.Get(ctx, task.ID)
}

func (r *TaskRepository) SetStatus(ctx context.Context, id int, status types.TaskStatus) (types.Task, error) {
	const query = `UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return types.Task{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Task{}, err
	}
	if affected == 0 {
		return types.Task{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *TaskRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM tasks WHERE id = $1`
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

func scanTask(row rowScanner) (types.Task, error) {
	var task types.Task
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.OwnerID,
		&task.Owner,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}
