package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/librarydb/internal/middleware"
)

// Routes holds every handler served under /api
type Routes struct {
	Auth    *AuthHandler
	Catalog *CatalogHandler
	Lending *LendingHandler
	Health  *HealthHandler
}

// Register mounts the API on router. identify resolves the caller of every request.
func (r *Routes) Register(api fiber.Router, identify fiber.Handler) {
	if r.Health != nil {
		api.Get("/health", r.Health.Health)
	}

	api.Use(identify)

	signedIn := middleware.AuthAny()
	librarian := middleware.AuthLibrarian()
	general := middleware.AuthGeneral()

	// Accounts and sessions
	auth := api.Group("/auth")
	auth.Post("/register", r.Auth.Register)
	auth.Post("/login", r.Auth.Login)
	auth.Post("/logout", r.Auth.Logout)
	auth.Get("/me", signedIn, r.Auth.Me)

	// Catalog, read by anyone signed in and written by librarians
	api.Get("/sections", signedIn, r.Catalog.ListSections)
	api.Get("/sections/search", signedIn, r.Catalog.SearchSections)
	api.Get("/sections/:id", signedIn, r.Catalog.GetSection)
	api.Post("/sections", librarian, r.Catalog.CreateSection)
	api.Patch("/sections/:id", librarian, r.Catalog.UpdateSection)
	api.Delete("/sections/:id", librarian, r.Catalog.DeleteSection)

	api.Get("/books", signedIn, r.Catalog.ListBooks)
	api.Get("/books/:id", signedIn, r.Catalog.GetBook)
	api.Post("/books", librarian, r.Catalog.CreateBook)
	api.Patch("/books/:id", librarian, r.Catalog.UpdateBook)
	api.Delete("/books/:id", librarian, r.Catalog.DeleteBook)
	api.Get("/books/:id/status", librarian, r.Catalog.BookStatus)
	api.Get("/stats", librarian, r.Catalog.Stats)
	api.Get("/search", signedIn, r.Catalog.Search)

	// Lending
	api.Get("/books/:id/content", signedIn, r.Lending.Content)
	api.Post("/books/:id/purchase", general, r.Lending.PurchaseBook)
	api.Put("/books/:id/feedback", general, r.Lending.SubmitFeedback)
	api.Get("/feedback", signedIn, r.Lending.ListFeedback)

	lending := api.Group("/lending")
	lending.Get("/requests", signedIn, r.Lending.ListRequests)
	lending.Post("/requests", general, r.Lending.RequestBook)
	lending.Post("/requests/:book/:user/issue", librarian, r.Lending.IssueBook)
	lending.Delete("/requests/:book/:user", librarian, r.Lending.RejectRequest)
	lending.Get("/issues", signedIn, r.Lending.ListIssues)
	lending.Post("/issues/:book/return", general, r.Lending.ReturnBook)
	lending.Delete("/issues/:book/:user", librarian, r.Lending.RevokeIssue)
}
