package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/tasktracker/apiserver/internal/authz"
	"github.com/tasktracker/apiserver/internal/events"
	"github.com/tasktracker/apiserver/internal/storage"
	"github.com/tasktracker/apiserver/internal/store"
	"github.com/tasktracker/apiserver/types"
)

const (
	// MaxAttachmentSize bounds a single uploaded file.
	MaxAttachmentSize = 10 << 20

	maxFilenameLength = 255
	defaultMediaType  = "application/octet-stream"
)

// AttachmentRepository defines persistence operations for attachment
// metadata.
type AttachmentRepository interface {
	ListForTask(ctx context.Context, taskID int) ([]types.Attachment, error)
	ObjectKeysForOwner(ctx context.Context, ownerID int) ([]string, error)
	Get(ctx context.Context, id int) (types.Attachment, error)
	Create(ctx context.Context, attachment types.Attachment) (types.Attachment, error)
	Delete(ctx context.Context, id int) error
}

// ObjectStorage is the subset of storage.Storage used for attachment
// content.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Upload is a file received for a task.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentService manages files attached to tasks. A nil
// *AttachmentService means attachments are disabled: every operation
// returns ErrAttachmentsDisabled and the cleanup methods do nothing.
type AttachmentService struct {
	tasks       TaskRepository
	attachments AttachmentRepository
	objects     ObjectStorage
	events      EventPublisher
	logger      *log.Logger
}

func NewAttachmentService(
	tasks TaskRepository,
	attachments AttachmentRepository,
	objects ObjectStorage,
	publisher EventPublisher,
	logger *log.Logger,
) *AttachmentService {
	if logger == nil {
		logger = log.Default()
	}
	return &AttachmentService{
		tasks:       tasks,
		attachments: attachments,
		objects:     objects,
		events:      publisherOrNoop(publisher),
		logger:      logger,
	}
}

func (s *AttachmentService) List(ctx context.Context, actor types.Account, taskID int) ([]types.Attachment, error) {
	if s == nil {
		return nil, ErrAttachmentsDisabled
	}
	if _, err := loadOwnedTask(ctx, s.tasks, actor, taskID, authz.ActionManageAttachments); err != nil {
		return nil, err
	}
	return s.attachments.ListForTask(ctx, taskID)
}

// Add streams the upload to object storage and records its metadata. The
// object is removed again if the metadata cannot be stored.
func (s *AttachmentService) Add(ctx context.Context, actor types.Account, taskID int, upload Upload) (types.Attachment, error) {
	if s == nil {
		return types.Attachment{}, ErrAttachmentsDisabled
	}
	if _, err := loadOwnedTask(ctx, s.tasks, actor, taskID, authz.ActionManageAttachments); err != nil {
		return types.Attachment{}, err
	}

	filename := cleanFilename(upload.Filename)
	v := &ValidationError{}
	switch {
	case filename == "":
		v.Add(FieldFile, "The submitted file has no name.")
	case utf8.RuneCountInString(filename) > maxFilenameLength:
		v.Add(FieldFile, fmt.Sprintf("Ensure this filename has at most %d characters.", maxFilenameLength))
	}
	switch {
	case upload.Size <= 0:
		v.Add(FieldFile, "The submitted file is empty.")
	case upload.Size > MaxAttachmentSize:
		v.Add(FieldFile, fmt.Sprintf("The submitted file is larger than %d bytes.", MaxAttachmentSize))
	}
	if err := v.OrNil(); err != nil {
		return types.Attachment{}, err
	}

	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" {
		contentType = defaultMediaType
	}
	key := fmt.Sprintf("tasks/%d/%s/%s", taskID, uuid.NewString(), filename)

	hasher := sha256.New()
	if err := s.objects.Put(ctx, key, io.TeeReader(upload.Body, hasher), upload.Size, contentType); err != nil {
		return types.Attachment{}, fmt.Errorf("store attachment: %w", err)
	}

	created, err := s.attachments.Create(ctx, types.Attachment{
		TaskID:      taskID,
		Filename:    filename,
		ContentType: contentType,
		Size:        upload.Size,
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		ObjectKey:   key,
	})
	if err != nil {
		s.RemoveObjects(ctx, []string{key})
		return types.Attachment{}, fmt.Errorf("record attachment: %w", err)
	}

	s.events.Publish(ctx, events.Event{
		Type:         events.AttachmentAdded,
		AccountID:    actor.ID,
		TaskID:       taskID,
		AttachmentID: created.ID,
	})
	return created, nil
}

// Open returns the attachment metadata and a reader for its content. The
// caller closes the reader.
func (s *AttachmentService) Open(ctx context.Context, actor types.Account, taskID, attachmentID int) (types.Attachment, io.ReadCloser, error) {
	if s == nil {
		return types.Attachment{}, nil, ErrAttachmentsDisabled
	}
	attachment, err := s.load(ctx, actor, taskID, attachmentID)
	if err != nil {
		return types.Attachment{}, nil, err
	}

	body, err := s.objects.Get(ctx, attachment.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return types.Attachment{}, nil, fmt.Errorf("attachment %d content: %w", attachment.ID, store.ErrNotFound)
		}
		return types.Attachment{}, nil, fmt.Errorf("open attachment: %w", err)
	}
	return attachment, body, nil
}

func (s *AttachmentService) Remove(ctx context.Context, actor types.Account, taskID, attachmentID int) error {
	if s == nil {
		return ErrAttachmentsDisabled
	}
	attachment, err := s.load(ctx, actor, taskID, attachmentID)
	if err != nil {
		return err
	}
	if err := s.attachments.Delete(ctx, attachment.ID); err != nil {
		return err
	}

	s.RemoveObjects(ctx, []string{attachment.ObjectKey})
	s.events.Publish(ctx, events.Event{
		Type:         events.AttachmentRemoved,
		AccountID:    actor.ID,
		TaskID:       taskID,
		AttachmentID: attachment.ID,
	})
	return nil
}

// KeysForOwner returns the object keys of every attachment on the
// owner's tasks.
func (s *AttachmentService) KeysForOwner(ctx context.Context, ownerID int) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	return s.attachments.ObjectKeysForOwner(ctx, ownerID)
}

func (s *AttachmentService) KeysForTask(ctx context.Context, taskID int) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	attachments, err := s.attachments.ListForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(attachments))
	for _, attachment := range attachments {
		keys = append(keys, attachment.ObjectKey)
	}
	return keys, nil
}

// RemoveObjects deletes stored content. Failures are logged; the rows are
// already gone and the request has succeeded.
func (s *AttachmentService) RemoveObjects(ctx context.Context, keys []string) {
	if s == nil {
		return
	}
	for _, key := range keys {
		if err := s.objects.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to remove attachment object", "key", key, "err", err)
		}
	}
}

// load resolves an attachment through its task. An attachment that exists
// under a different task is reported as not found.
func (s *AttachmentService) load(ctx context.Context, actor types.Account, taskID, attachmentID int) (types.Attachment, error) {
	if _, err := loadOwnedTask(ctx, s.tasks, actor, taskID, authz.ActionManageAttachments); err != nil {
		return types.Attachment{}, err
	}
	attachment, err := s.attachments.Get(ctx, attachmentID)
	if err != nil {
		return types.Attachment{}, err
	}
	if attachment.TaskID != taskID {
		return types.Attachment{}, store.ErrNotFound
	}
	return attachment, nil
}

// cleanFilename keeps only the final path element of a client-supplied
// name.
func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
