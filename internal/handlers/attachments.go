package handlers

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/tasktracker/apiserver/internal/services"
	"github.com/tasktracker/apiserver/types"
)

const (
	formFieldFile      = "file"
	maxMultipartMemory = 8 << 20
	maxUploadBytes     = services.MaxAttachmentSize + 1<<20
)

// AttachmentHandler provides HTTP handlers for task attachments. A nil
// service answers 501 on every route.
type AttachmentHandler struct {
	attachments *services.AttachmentService
	logger      *log.Logger
}

func NewAttachmentHandler(attachments *services.AttachmentService, logger *log.Logger) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments, logger: logger}
}

// AttachmentRouter registers attachment routes below a task.
func AttachmentRouter(r chi.Router, attachments *services.AttachmentService, logger *log.Logger) {
	handler := NewAttachmentHandler(attachments, logger)

	r.Get("/", handler.ListAttachments)
	r.Post("/", handler.UploadAttachment)
	r.Get("/{attachmentID}", handler.DownloadAttachment)
	r.Delete("/{attachmentID}", handler.DeleteAttachment)
}

func (h *AttachmentHandler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}

	items, err := h.attachments.List(r.Context(), actor, taskID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list attachments")
		return
	}

	writeJSON(w, http.StatusOK, AttachmentListResponse{Items: items})
}

// UploadAttachment accepts a multipart form with a single "file" part.
func (h *AttachmentHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeFieldErrors(w, map[string][]string{
			formFieldFile: {"The submitted data was not a file. Check the encoding type on the form."},
		})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	files := r.MultipartForm.File[formFieldFile]
	if len(files) != 1 {
		writeFieldErrors(w, map[string][]string{formFieldFile: {"Exactly one file is required."}})
		return
	}
	header := files[0]
	file, err := header.Open()
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read upload")
		return
	}
	defer file.Close()

	created, err := h.attachments.Add(r.Context(), actor, taskID, services.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to store attachment")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// DownloadAttachment streams the stored content.
func (h *AttachmentHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}
	attachmentID, err := parseID(r, "attachmentID")
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	attachment, body, err := h.attachments.Open(r.Context(), actor, taskID, attachmentID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to open attachment")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Filename}))
	w.Header().Set("X-Content-SHA256", attachment.SHA256)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("attachment download interrupted", "attachment_id", attachment.ID, "err", err)
	}
}

func (h *AttachmentHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.task(w, r)
	if !ok {
		return
	}
	attachmentID, err := parseID(r, "attachmentID")
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := h.attachments.Remove(r.Context(), actor, taskID, attachmentID); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete attachment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AttachmentHandler) task(w http.ResponseWriter, r *http.Request) (types.Account, int, bool) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return types.Account{}, 0, false
	}
	if h.attachments == nil {
		writeServiceError(w, r, h.logger, services.ErrAttachmentsDisabled, "attachments disabled")
		return types.Account{}, 0, false
	}
	taskID, err := parseID(r, "taskID")
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return types.Account{}, 0, false
	}
	return actor, taskID, true
}

// AttachmentListResponse wraps the attachments of a task.
type AttachmentListResponse struct {
	Items []types.Attachment `json:"items"`
}
