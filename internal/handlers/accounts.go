package handlers

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/tasktracker/apiserver/internal/services"
	"github.com/tasktracker/apiserver/types"
)

// AccountHandler provides HTTP handlers for account management.
type AccountHandler struct {
	accounts *services.AccountService
	pageSize int
	logger   *log.Logger
}

func NewAccountHandler(accounts *services.AccountService, pageSize int, logger *log.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, pageSize: pageSize, logger: logger}
}

// AccountRouter registers account routes. authMiddleware must run first.
func AccountRouter(r chi.Router, accounts *services.AccountService, pageSize int, logger *log.Logger) {
	handler := NewAccountHandler(accounts, pageSize, logger)

	r.Get("/", handler.ListAccounts)
	r.Post("/", handler.CreateAccount)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetAccount)
		r.Put("/", handler.UpdateAccount)
		r.Patch("/", handler.PatchAccount)
		r.Delete("/", handler.DeleteAccount)
	})
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	page, offset, err := parsePage(r, h.pageSize)
	if err != nil {
		writeError(w, http.StatusNotFound, msgInvalidPage)
		return
	}

	items, total, err := h.accounts.List(r.Context(), actor, offset, h.pageSize)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list accounts")
		return
	}
	if pageOutOfRange(offset, total) {
		writeError(w, http.StatusNotFound, msgInvalidPage)
		return
	}

	writeJSON(w, http.StatusOK, PageResponse[types.Account]{
		Items: items,
		Page:  page,
		Limit: h.pageSize,
		Total: total,
	})
}

// CreateAccount lets an administrator add an account, optionally with the
// administrative role.
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if !readJSON(w, r, h.logger, schemaAccountCreate, &req) {
		return
	}

	created, err := h.accounts.Create(r.Context(), actor, req.RegisterRequest.input(), req.IsAdmin)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	id, err := parseID(r, "userID")
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	account, err := h.accounts.Get(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *AccountHandler) PatchAccount(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *AccountHandler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	id, err := parseID(r, "userID")
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req AccountUpdateRequest
	if !readJSON(w, r, h.logger, schemaAccount, &req) {
		return
	}

	updated, err := h.accounts.Update(r.Context(), actor, id, services.AccountPatch{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		IsAdmin:   req.IsAdmin,
	}, partial)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update account")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	id, err := parseID(r, "userID")
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := h.accounts.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type CreateAccountRequest struct {
	RegisterRequest
	IsAdmin bool `json:"is_admin"`
}

// AccountUpdateRequest distinguishes absent fields from empty ones.
type AccountUpdateRequest struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Password  *string `json:"password"`
	IsAdmin   *bool   `json:"is_admin"`
}
