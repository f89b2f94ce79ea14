package service

import (
	"context"
	"strings"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/repository"
)

type bookService struct {
	books repository.BookRepository
}

func NewBookService(books repository.BookRepository) BookService {
	return &bookService{books: books}
}

func (s *bookService) AddBook(ctx context.Context, book *domain.Book) error {
	if strings.TrimSpace(book.Title) == "" || strings.TrimSpace(book.Author) == "" {
		return domain.ErrValidation
	}
	if book.PriceCents < 0 || book.TotalQuantity < 1 {
		return domain.ErrValidation
	}
	if book.Genre == "" {
		book.Genre = "General"
	}
	// New titles start with every copy on the shelf.
	book.AvailableQuantity = book.TotalQuantity
	return s.books.Create(ctx, book)
}

func (s *bookService) GetBook(ctx context.Context, id int32) (*domain.Book, error) {
	return s.books.GetByID(ctx, id)
}

func (s *bookService) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return s.books.List(ctx)
}

func (s *bookService) DeleteBook(ctx context.Context, id int32) error {
	return s.books.Delete(ctx, id)
}
