package server

import (
	"net/http"

	"notes-server/internal/handler"
	"notes-server/internal/middleware"
	"notes-server/pkg/response"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Handlers struct {
	Home      *handler.HomeHandler
	Auth      *handler.AuthHandler
	User      *handler.UserHandler
	Note      *handler.NoteHandler
	WebSocket *handler.WebSocketHandler
}

type RouterOptions struct {
	Validator middleware.TokenValidator
	CORS      middleware.CORSOptions
	Logger    *zap.Logger
}

func NewRouter(h Handlers, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "Not found.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, "Method \""+r.Method+"\" not allowed.")
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.LoggerMiddleware(opts.Logger))
	r.Use(middleware.Recoverer(opts.Logger))
	r.Use(middleware.CORSMiddleware(opts.CORS))

	r.HandleFunc("/", h.Home.Home).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/healthz/", h.Home.Health).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/signup/", h.Auth.Signup).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/login/", h.Auth.Login).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/token/refresh/", h.Auth.Refresh).Methods(http.MethodPost, http.MethodOptions)

	// Authenticates itself; the token may also arrive as a query parameter.
	r.HandleFunc("/ws/", h.WebSocket.HandleConnection).Methods(http.MethodGet)

	auth := middleware.AuthMiddleware(opts.Validator)
	protected := func(path string, fn http.HandlerFunc, method string) {
		r.Handle(path, auth(fn)).Methods(method, http.MethodOptions)
	}

	protected("/logout/", h.Auth.Logout, http.MethodPost)
	protected("/users/me/", h.User.GetMe, http.MethodGet)

	protected("/notes/", h.Note.List, http.MethodGet)
	protected("/notes/create/", h.Note.Create, http.MethodPost)
	protected("/notes/share/", h.Note.Share, http.MethodPost)
	protected("/notes/update/{id}/", h.Note.Update, http.MethodPut)
	protected("/notes/delete/{id}/", h.Note.Delete, http.MethodDelete)
	protected("/notes/version-history/{id}/", h.Note.History, http.MethodGet)
	protected("/notes/{id}/", h.Note.Get, http.MethodGet)

	return r
}
