package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"bookworm-backend/internal/config"
	"bookworm-backend/internal/security"
	"bookworm-backend/internal/service"
)

// NewRouter assembles the REST command layer.
func NewRouter(
	cfg *config.Config,
	tokens security.TokenManager,
	authSvc service.AuthService,
	userSvc service.UserService,
	bookSvc service.BookService,
	borrowSvc service.BorrowService,
) *mux.Router {
	authHandler := NewAuthHandler(authSvc, userSvc)
	userHandler := NewUserHandler(userSvc)
	bookHandler := NewBookHandler(bookSvc)
	borrowHandler := NewBorrowHandler(borrowSvc)

	r := mux.NewRouter()
	if cfg.RateLimit.Enabled {
		r.Use(RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/verify", authHandler.Verify).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods(http.MethodPost)

	// Authenticated routes
	authed := api.NewRoute().Subrouter()
	authed.Use(AuthMiddleware(tokens))

	authed.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)
	authed.HandleFunc("/auth/password", authHandler.UpdatePassword).Methods(http.MethodPut)

	authed.HandleFunc("/books", bookHandler.ListBooks).Methods(http.MethodGet)
	authed.HandleFunc("/books/{id}", bookHandler.GetBook).Methods(http.MethodGet)
	authed.HandleFunc("/books", RequireAdmin(bookHandler.AddBook)).Methods(http.MethodPost)
	authed.HandleFunc("/books/{id}", RequireAdmin(bookHandler.DeleteBook)).Methods(http.MethodDelete)

	authed.HandleFunc("/borrow/{bookId}", RequireAdmin(borrowHandler.RecordBorrow)).Methods(http.MethodPost)
	authed.HandleFunc("/borrow/return/{loanId}", RequireAdmin(borrowHandler.ReturnBorrow)).Methods(http.MethodPut)
	authed.HandleFunc("/borrow/extend/{loanId}", borrowHandler.ExtendBorrow).Methods(http.MethodPut)
	authed.HandleFunc("/borrow/my", borrowHandler.MyBorrowedBooks).Methods(http.MethodGet)
	authed.HandleFunc("/borrow/all", RequireAdmin(borrowHandler.AllBorrowedBooks)).Methods(http.MethodGet)

	authed.HandleFunc("/users", RequireAdmin(userHandler.ListUsers)).Methods(http.MethodGet)
	authed.HandleFunc("/users/admin", RequireAdmin(userHandler.RegisterAdmin)).Methods(http.MethodPost)

	return r
}
