package handlers

import (
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/tasktracker/apiserver/internal/services"
)

// API bundles the services exposed over HTTP. Attachments may be nil.
type API struct {
	Credentials *services.CredentialService
	Accounts    *services.AccountService
	Tasks       *services.TaskService
	Attachments *services.AttachmentService
	PageSize    int
	Logger      *log.Logger
}

// Mount registers every /api route on r.
func Mount(r chi.Router, api API) {
	r.Route("/api", func(r chi.Router) {
		AuthRouter(r, api.Credentials, api.Logger)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(api.Credentials, api.Logger))
			r.Route("/users", func(r chi.Router) {
				AccountRouter(r, api.Accounts, api.PageSize, api.Logger)
			})
			r.Route("/tasks", func(r chi.Router) {
				TaskRouter(r, api.Tasks, api.Attachments, api.PageSize, api.Logger)
			})
		})
	})
}
