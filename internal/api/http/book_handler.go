package http

import (
	"encoding/json"
	"net/http"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/service"
)

type BookHandler struct {
	bookSvc service.BookService
}

func NewBookHandler(bookSvc service.BookService) *BookHandler {
	return &BookHandler{bookSvc: bookSvc}
}

type addBookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	PriceCents  int64  `json:"price_cents"`
	Quantity    int32  `json:"quantity"`
}

func (h *BookHandler) AddBook(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}

	book := &domain.Book{
		Title:         req.Title,
		Author:        req.Author,
		Description:   req.Description,
		Genre:         req.Genre,
		PriceCents:    req.PriceCents,
		TotalQuantity: req.Quantity,
	}
	if err := h.bookSvc.AddBook(r.Context(), book); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Book added successfully.",
		"book":    book,
	})
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	book, err := h.bookSvc.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "book": book})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.bookSvc.ListBooks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "books": books})
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.bookSvc.DeleteBook(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Book deleted successfully.")
}
