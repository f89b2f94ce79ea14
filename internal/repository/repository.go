package repository

import (
	"context"
	"time"

	"bookworm-backend/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int32) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	List(ctx context.Context) ([]domain.User, error)
}

type BookRepository interface {
	Create(ctx context.Context, book *domain.Book) error
	GetByID(ctx context.Context, id int32) (*domain.Book, error)
	List(ctx context.Context) ([]domain.Book, error)
	Delete(ctx context.Context, id int32) error

	// ReserveCopy atomically decrements available_quantity if a copy is free.
	// Returns domain.ErrBookOutOfStock when no copy is available.
	ReserveCopy(ctx context.Context, bookID int32) error

	// ReleaseCopy atomically increments available_quantity, refusing to go
	// past total_quantity. Returns domain.ErrInventoryInvariant on overflow.
	ReleaseCopy(ctx context.Context, bookID int32) error
}

type LoanRepository interface {
	Create(ctx context.Context, loan *domain.Loan) error
	GetByID(ctx context.Context, id int32) (*domain.Loan, error)

	// GetActiveByBookAndBorrower returns the unreturned loan for the pair,
	// or domain.ErrLoanNotFound when none exists.
	GetActiveByBookAndBorrower(ctx context.Context, bookID, borrowerID int32) (*domain.Loan, error)

	List(ctx context.Context) ([]domain.Loan, error)
	ListByBorrower(ctx context.Context, borrowerID int32) ([]domain.Loan, error)
	ListBorrowerIDs(ctx context.Context) ([]int32, error)

	// MarkReturned settles the loan in one guarded update: it sets
	// returned_at and freezes the fine only while returned_at is still NULL.
	// Returns domain.ErrLoanAlreadyReturned if the loan was settled before.
	MarkReturned(ctx context.Context, id int32, returnedAt time.Time, fineCents int64) error

	// ExtendDueDate pushes due_at and bumps extension_count, guarded by the
	// extension count the caller validated against so a racing Return or
	// Extend loses cleanly. Returns domain.ErrLoanConflict when the guard
	// no longer holds.
	ExtendDueDate(ctx context.Context, id int32, newDueAt time.Time, knownExtensionCount int32) error

	ListOverdueUnnotified(ctx context.Context, asOf time.Time) ([]domain.Loan, error)
	MarkNotified(ctx context.Context, id int32) error
}

// MirrorStore holds the per-borrower derived view of loan state. It is a
// cache over LoanRepository contents: safe to lose, rebuilt on demand.
type MirrorStore interface {
	Upsert(ctx context.Context, borrowerID int32, entry domain.MirrorEntry) error
	List(ctx context.Context, borrowerID int32) ([]domain.MirrorEntry, bool, error)
	Rebuild(ctx context.Context, borrowerID int32, entries []domain.MirrorEntry) error
	Invalidate(ctx context.Context, borrowerID int32) error
}
