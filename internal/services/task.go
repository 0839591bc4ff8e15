package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tasktracker/apiserver/internal/authz"
	"github.com/tasktracker/apiserver/internal/events"
	"github.com/tasktracker/apiserver/types"
)

const maxTitleLength = 255

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	ListForOwner(ctx context.Context, ownerID int, filter types.TaskFilter, offset, limit int) ([]types.Task, int, error)
	Get(ctx context.Context, id int) (types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	SetStatus(ctx context.Context, id int, status types.TaskStatus) (types.Task, error)
	Delete(ctx context.Context, id int) error
}

// TaskInput carries the writable task fields. Nil fields are absent from
// the request. Owner, id and timestamps are not writable.
type TaskInput struct {
	Title       *string
	Description *string
	Status      *string
}

// TaskService encapsulates task use-cases. Only the owner of a task may
// read or change it.
type TaskService struct {
	tasks   TaskRepository
	cleaner ObjectCleaner
	events  EventPublisher
}

func NewTaskService(tasks TaskRepository, cleaner ObjectCleaner, publisher EventPublisher) *TaskService {
	return &TaskService{
		tasks:   tasks,
		cleaner: cleaner,
		events:  publisherOrNoop(publisher),
	}
}

// List returns the actor's own tasks. A status outside the fixed set
// matches nothing.
func (s *TaskService) List(ctx context.Context, actor types.Account, filter types.TaskFilter, offset, limit int) ([]types.Task, int, error) {
	if err := authz.Check(actor, authz.ActionListTasks, authz.Target{}); err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return []types.Task{}, 0, nil
	}
	return s.tasks.ListForOwner(ctx, actor.ID, filter, offset, limit)
}

func (s *TaskService) Get(ctx context.Context, actor types.Account, id int) (types.Task, error) {
	return loadOwnedTask(ctx, s.tasks, actor, id, authz.ActionReadTask)
}

// Create stores a new task owned by the actor. Status defaults to New.
func (s *TaskService) Create(ctx context.Context, actor types.Account, in TaskInput) (types.Task, error) {
	if err := authz.Check(actor, authz.ActionCreateTask, authz.Target{}); err != nil {
		return types.Task{}, err
	}

	task, err := applyTaskInput(types.Task{Status: types.DefaultTaskStatus}, in, true)
	if err != nil {
		return types.Task{}, err
	}
	task.OwnerID = actor.ID

	created, err := s.tasks.Create(ctx, task)
	if err != nil {
		return types.Task{}, fmt.Errorf("create task: %w", err)
	}
	s.events.Publish(ctx, events.Event{
		Type:      events.TaskCreated,
		AccountID: actor.ID,
		TaskID:    created.ID,
		Status:    string(created.Status),
	})
	return created, nil
}

// Update changes title, description and status. When partial is false the
// title is required.
func (s *TaskService) Update(ctx context.Context, actor types.Account, id int, in TaskInput, partial bool) (types.Task, error) {
	current, err := loadOwnedTask(ctx, s.tasks, actor, id, authz.ActionUpdateTask)
	if err != nil {
		return types.Task{}, err
	}

	next, err := applyTaskInput(current, in, !partial)
	if err != nil {
		return types.Task{}, err
	}

	updated, err := s.tasks.Update(ctx, next)
	if err != nil {
		return types.Task{}, err
	}
	s.events.Publish(ctx, events.Event{
		Type:      events.TaskUpdated,
		AccountID: actor.ID,
		TaskID:    updated.ID,
		Status:    string(updated.Status),
	})
	return updated, nil
}

// SetStatus moves the task to any status in the fixed set.
func (s *TaskService) SetStatus(ctx context.Context, actor types.Account, id int, status types.TaskStatus) (types.Task, error) {
	if _, err := loadOwnedTask(ctx, s.tasks, actor, id, authz.ActionSetTaskStatus); err != nil {
		return types.Task{}, err
	}
	if !status.Valid() {
		return types.Task{}, FieldError(FieldStatus, msgInvalidChoice(string(status)))
	}

	updated, err := s.tasks.SetStatus(ctx, id, status)
	if err != nil {
		return types.Task{}, err
	}
	s.events.Publish(ctx, events.Event{
		Type:      events.TaskStatusChanged,
		AccountID: actor.ID,
		TaskID:    updated.ID,
		Status:    string(updated.Status),
	})
	return updated, nil
}

func (s *TaskService) MarkCompleted(ctx context.Context, actor types.Account, id int) (types.Task, error) {
	return s.SetStatus(ctx, actor, id, types.TaskStatusCompleted)
}

// Delete removes the task and the content of its attachments.
func (s *TaskService) Delete(ctx context.Context, actor types.Account, id int) error {
	if _, err := loadOwnedTask(ctx, s.tasks, actor, id, authz.ActionDeleteTask); err != nil {
		return err
	}

	var keys []string
	if s.cleaner != nil {
		found, err := s.cleaner.KeysForTask(ctx, id)
		if err != nil {
			return fmt.Errorf("collect attachments: %w", err)
		}
		keys = found
	}

	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}

	if s.cleaner != nil {
		s.cleaner.RemoveObjects(ctx, keys)
	}
	s.events.Publish(ctx, events.Event{Type: events.TaskDeleted, AccountID: actor.ID, TaskID: id})
	return nil
}

// loadOwnedTask fetches the task first and then applies the guard, so a
// foreign task yields Forbidden rather than NotFound.
func loadOwnedTask(ctx context.Context, tasks TaskRepository, actor types.Account, id int, action authz.Action) (types.Task, error) {
	task, err := tasks.Get(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	if err := authz.Check(actor, action, authz.TaskTarget(task)); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

// applyTaskInput validates in and merges it into task, reporting every
// failing field at once.
func applyTaskInput(task types.Task, in TaskInput, requireTitle bool) (types.Task, error) {
	v := &ValidationError{}

	switch {
	case in.Title != nil:
		title := strings.TrimSpace(*in.Title)
		switch {
		case title == "":
			v.Add(FieldTitle, msgBlank)
		case utf8.RuneCountInString(title) > maxTitleLength:
			v.Add(FieldTitle, msgMaxLength(maxTitleLength))
		default:
			task.Title = title
		}
	case requireTitle:
		v.Add(FieldTitle, msgRequired)
	}

	if in.Description != nil {
		task.Description = strings.TrimSpace(*in.Description)
	}

	if in.Status != nil {
		status := types.TaskStatus(*in.Status)
		if status.Valid() {
			task.Status = status
		} else {
			v.Add(FieldStatus, msgInvalidChoice(*in.Status))
		}
	}

	if err := v.OrNil(); err != nil {
		return types.Task{}, err
	}
	return task, nil
}
