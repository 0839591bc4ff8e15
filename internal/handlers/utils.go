package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tasktracker/apiserver/internal/authz"
	"github.com/tasktracker/apiserver/internal/services"
	"github.com/tasktracker/apiserver/internal/store"
	"github.com/tasktracker/apiserver/types"
)

const (
	defaultPage  = 1
	maxBodyBytes = 1 << 20
)

type contextKey string

const contextAccountKey contextKey = "account"

func withAccount(ctx context.Context, account types.Account) context.Context {
	return context.WithValue(ctx, contextAccountKey, account)
}

// accountFromContext returns the account resolved by RequireAuth.
func accountFromContext(ctx context.Context) (types.Account, bool) {
	account, ok := ctx.Value(contextAccountKey).(types.Account)
	if !ok || account.ID < 1 {
		return types.Account{}, false
	}
	return account, true
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// PageResponse is the paginated list response payload.
type PageResponse[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: fields})
}

// writeServiceError maps a service error to a response. Errors that are
// not part of the API contract are logged and reported as fallback.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *log.Logger, err error, fallback string) {
	var validation *services.ValidationError
	var forbidden *authz.ForbiddenError

	switch {
	case errors.As(err, &validation):
		writeFieldErrors(w, validation.Fields)
	case errors.Is(err, store.ErrDuplicateUsername):
		writeFieldErrors(w, map[string][]string{services.FieldUsername: {"A user with that username already exists."}})
	case errors.As(err, &forbidden):
		writeError(w, http.StatusForbidden, forbidden.Message)
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, services.ErrExpiredToken):
		writeUnauthorized(w, "Token is expired.")
	case errors.Is(err, services.ErrInvalidToken):
		writeUnauthorized(w, "Token is invalid.")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeUnauthorized(w, "No active account found with the given credentials.")
	case errors.Is(err, services.ErrUnauthenticated):
		writeUnauthorized(w, "Authentication credentials were not provided.")
	case errors.Is(err, services.ErrAttachmentsDisabled):
		writeError(w, http.StatusNotImplemented, "Attachments are not enabled on this server.")
	default:
		logger.Error(fallback, "err", err, "method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	writeError(w, http.StatusUnauthorized, message)
}

const msgInvalidPage = "Invalid page."

// parsePage reads the page query parameter. The page size is fixed.
func parsePage(r *http.Request, pageSize int) (page, offset int, err error) {
	page = defaultPage
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}
	return page, (page - 1) * pageSize, nil
}

// pageOutOfRange reports a page past the last one. The first page always
// exists, even when empty.
func pageOutOfRange(offset, total int) bool {
	return offset > 0 && offset >= total
}

func parseID(r *http.Request, param string) (int, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + strings.TrimSuffix(param, "ID") + " id")
	}
	return id, nil
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
