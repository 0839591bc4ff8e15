package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/tasktracker/apiserver/internal/services"
)

// AuthHandler provides registration and JWT endpoints.
type AuthHandler struct {
	credentials *services.CredentialService
	logger      *log.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(credentials *services.CredentialService, logger *log.Logger) *AuthHandler {
	return &AuthHandler{credentials: credentials, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, credentials *services.CredentialService, logger *log.Logger) {
	handler := NewAuthHandler(credentials, logger)

	r.Post("/register", handler.Register)
	r.Post("/token", handler.Token)
	r.Post("/token/refresh", handler.Refresh)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces bearer authentication and injects the account into
// the request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.credentials, h.logger)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(credentials *services.CredentialService, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeServiceError(w, r, logger, services.ErrUnauthenticated, "unauthorized")
				return
			}

			account, err := credentials.Identify(r.Context(), token)
			if err != nil {
				writeServiceError(w, r, logger, err, "failed to authenticate")
				return
			}

			next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
		})
	}
}

// Register creates a new ordinary account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !readJSON(w, r, h.logger, schemaRegister, &req) {
		return
	}

	account, err := h.credentials.Register(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// Token verifies credentials and returns an access and refresh token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !readJSON(w, r, h.logger, schemaToken, &req) {
		return
	}

	missing := map[string][]string{}
	if req.Username == "" {
		missing["username"] = []string{"This field is required."}
	}
	if req.Password == "" {
		missing["password"] = []string{"This field is required."}
	}
	if len(missing) > 0 {
		writeFieldErrors(w, missing)
		return
	}

	pair, err := h.credentials.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !readJSON(w, r, h.logger, schemaRefresh, &req) {
		return
	}
	if req.Refresh == "" {
		writeFieldErrors(w, map[string][]string{"refresh": {"This field is required."}})
		return
	}

	access, err := h.credentials.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{Access: access})
}

// Me returns the current authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, h.logger, services.ErrUnauthenticated, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type RegisterRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

func (req RegisterRequest) input() services.RegisterInput {
	return services.RegisterInput{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	}
}

type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type RefreshResponse struct {
	Access string `json:"access"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
