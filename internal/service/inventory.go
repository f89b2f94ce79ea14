package service

import (
	"context"

	"bookworm-backend/internal/logger"
	"bookworm-backend/internal/repository"
)

// InventoryPool guards the shared pool of physical copies. All quantity
// mutations in the system go through Reserve and Release; both are atomic
// bounded updates at the storage layer, so concurrent commands on the same
// book cannot over-allocate copies.
type InventoryPool struct {
	books repository.BookRepository
}

func NewInventoryPool(books repository.BookRepository) *InventoryPool {
	return &InventoryPool{books: books}
}

// Reserve takes one copy of the book out of the pool. Returns
// domain.ErrBookOutOfStock when no copy is available.
func (p *InventoryPool) Reserve(ctx context.Context, bookID int32) error {
	return p.books.ReserveCopy(ctx, bookID)
}

// Release puts one copy back. A release that would exceed the total stock
// indicates a caller bug; it is logged and surfaced, never applied.
func (p *InventoryPool) Release(ctx context.Context, bookID int32) error {
	err := p.books.ReleaseCopy(ctx, bookID)
	if err != nil {
		logger.Error("Failed to release copy", "book_id", bookID, "error", err)
	}
	return err
}
