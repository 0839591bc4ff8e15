// Package testutil provides in-memory stand-ins for the Postgres
// repositories, object storage and message broker.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tasktracker/apiserver/internal/store"
	"github.com/tasktracker/apiserver/types"
)

// MemoryDB mimics the relational store: unique usernames, sequential ids,
// and ON DELETE CASCADE from accounts to tasks to attachments.
type MemoryDB struct {
	mu          sync.Mutex
	accounts    map[int]types.Account
	tasks       map[int]types.Task
	attachments map[int]types.Attachment
	nextID      map[string]int

	// FailWrites, when set, is returned by every write.
	FailWrites error
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts:    make(map[int]types.Account),
		tasks:       make(map[int]types.Task),
		attachments: make(map[int]types.Attachment),
		nextID:      make(map[string]int),
	}
}

func (m *MemoryDB) Accounts() *MemoryAccounts {
	return &MemoryAccounts{db: m}
}

func (m *MemoryDB) Tasks() *MemoryTasks {
	return &MemoryTasks{db: m}
}

func (m *MemoryDB) Attachments() *MemoryAttachments {
	return &MemoryAttachments{db: m}
}

// AccountCount returns the number of stored accounts.
func (m *MemoryDB) AccountCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// TaskCount returns the number of stored tasks.
func (m *MemoryDB) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// RawTask returns the stored task without going through a service.
func (m *MemoryDB) RawTask(id int) (types.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if ok {
		task.Owner = m.accounts[task.OwnerID].Username
	}
	return task, ok
}

func (m *MemoryDB) next(table string) int {
	m.nextID[table]++
	return m.nextID[table]
}

// MemoryAccounts satisfies services.AccountRepository.
type MemoryAccounts struct {
	db *MemoryDB
}

func (r *MemoryAccounts) GetByID(ctx context.Context, id int) (types.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	account, ok := r.db.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (r *MemoryAccounts) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, account := range r.db.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (r *MemoryAccounts) List(ctx context.Context, offset, limit int) ([]types.Account, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	all := make([]types.Account, 0, len(r.db.accounts))
	for _, account := range r.db.accounts {
		all = append(all, account)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, offset, limit), len(all), nil
}

func (r *MemoryAccounts) Create(ctx context.Context, account types.Account) (types.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailWrites != nil {
		return types.Account{}, r.db.FailWrites
	}
	for _, existing := range r.db.accounts {
		if existing.Username == account.Username {
			return types.Account{}, store.ErrDuplicateUsername
		}
	}
	now := time.Now().UTC()
	account.ID = r.db.next("users")
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Role == "" {
		account.Role = types.RoleUser
	}
	r.db.accounts[account.ID] = account
	return account, nil
}

func (r *MemoryAccounts) Update(ctx context.Context, account types.Account) (types.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailWrites != nil {
		return types.Account{}, r.db.FailWrites
	}
	current, ok := r.db.accounts[account.ID]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	for id, existing := range r.db.accounts {
		if id != account.ID && existing.Username == account.Username {
			return types.Account{}, store.ErrDuplicateUsername
		}
	}
	account.CreatedAt = current.CreatedAt
	account.UpdatedAt = time.Now().UTC()
	r.db.accounts[account.ID] = account
	return account, nil
}

func (r *MemoryAccounts) Delete(ctx context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailWrites != nil {
		return r.db.FailWrites
	}
	if _, ok := r.db.accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.accounts, id)
	for taskID, task := range r.db.tasks {
		if task.OwnerID == id {
			r.db.deleteTaskLocked(taskID)
		}
	}
	return nil
}

// MemoryTasks satisfies services.TaskRepository.
type MemoryTasks struct {
	db *MemoryDB
}

func (r *MemoryTasks) ListForOwner(ctx context.Context, ownerID int, filter types.TaskFilter, offset, limit int) ([]types.Task, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var matched []types.Task
	for _, task := range r.db.tasks {
		if task.OwnerID != ownerID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		matched = append(matched, r.db.withOwnerLocked(task))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, offset, limit), len(matched), nil
}

func (r *MemoryTasks) Get(ctx context.Context, id int) (types.Task, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	task, ok := r.db.tasks[id]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	return r.db.withOwnerLocked(task), nil
}

func (r *MemoryTasks) Create(ctx context.Context, task types.Task) (types.Task, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailWrites != nil {
		return types.Task{}, r.db.FailWrites
	}
	if _, ok := r.db.accounts[task.OwnerID]; !ok {
		return types.Task{}, fmt.Errorf("tasks_owner_id_fkey: account %d does not exist", task.OwnerID)
	}
	now := time.Now().UTC()
	task.ID = r.db.next("tasks")
	task.CreatedAt = now
	task.UpdatedAt = now
	r.db.tasks[task.ID] = task
	return r.db.withOwnerLocked(task), nil
}

func (r *MemoryTasks) Update(ctx context.Context, task types.Task) (types.Task, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailWrites != nil {
		return types.Task{}, r.db.FailWrites
	}
	current, ok := r.db.tasks[task.ID]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	current.Title = task.Title
	current.Description = task.Description
	current.Status = task.Status
	current.UpdatedAt = laterThan(current.UpdatedAt)
	r.db.tasks[task.ID] = current
	return r.db.withOwnerLocked(current), nil
}

func (r *MemoryTasks) SetStatus(ctx context.Context, id int, status types.TaskStatus) (types.Task, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailWrites != nil {
		return types.Task{}, r.db.FailWrites
	}
	current, ok := r.db.tasks[id]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	current.Status = status
	current.UpdatedAt = laterThan(current.UpdatedAt)
	r.db.tasks[id] = current
	return r.db.withOwnerLocked(current), nil
}

func (r *MemoryTasks) Delete(ctx context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailWrites != nil {
		return r.db.FailWrites
	}
	if _, ok := r.db.tasks[id]; !ok {
		return store.ErrNotFound
	}
	r.db.deleteTaskLocked(id)
	return nil
}

// MemoryAttachments satisfies services.AttachmentRepository.
type MemoryAttachments struct {
	db *MemoryDB
}

func (r *MemoryAttachments) ListForTask(ctx context.Context, taskID int) ([]types.Attachment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.Attachment, 0)
	for _, attachment := range r.db.attachments {
		if attachment.TaskID == taskID {
			out = append(out, attachment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryAttachments) ObjectKeysForOwner(ctx context.Context, ownerID int) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var keys []string
	for _, attachment := range r.db.attachments {
		if task, ok := r.db.tasks[attachment.TaskID]; ok && task.OwnerID == ownerID {
			keys = append(keys, attachment.ObjectKey)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *MemoryAttachments) Get(ctx context.Context, id int) (types.Attachment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	attachment, ok := r.db.attachments[id]
	if !ok {
		return types.Attachment{}, store.ErrNotFound
	}
	return attachment, nil
}

func (r *MemoryAttachments) Create(ctx context.Context, attachment types.Attachment) (types.Attachment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailWrites != nil {
		return types.Attachment{}, r.db.FailWrites
	}
	if _, ok := r.db.tasks[attachment.TaskID]; !ok {
		return types.Attachment{}, fmt.Errorf("task_attachments_task_id_fkey: task %d does not exist", attachment.TaskID)
	}
	attachment.ID = r.db.next("task_attachments")
	attachment.CreatedAt = time.Now().UTC()
	r.db.attachments[attachment.ID] = attachment
	return attachment, nil
}

func (r *MemoryAttachments) Delete(ctx context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailWrites != nil {
		return r.db.FailWrites
	}
	if _, ok := r.db.attachments[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.attachments, id)
	return nil
}

func (m *MemoryDB) withOwnerLocked(task types.Task) types.Task {
	task.Owner = m.accounts[task.OwnerID].Username
	return task
}

func (m *MemoryDB) deleteTaskLocked(id int) {
	delete(m.tasks, id)
	for attachmentID, attachment := range m.attachments {
		if attachment.TaskID == id {
			delete(m.attachments, attachmentID)
		}
	}
}

// laterThan returns now, nudged forward so consecutive updates always
// produce strictly increasing timestamps.
func laterThan(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit < 1 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
