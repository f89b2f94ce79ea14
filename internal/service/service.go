package service

import (
	"context"

	"bookworm-backend/internal/domain"
)

type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*domain.User, error)
	Verify(ctx context.Context, email, token string) error
	Login(ctx context.Context, email, password string) (*domain.User, string, string, error) // user, access, refresh
	Refresh(ctx context.Context, refreshToken string) (string, error)
	UpdatePassword(ctx context.Context, userID int32, currentPassword, newPassword string) error
}

type UserService interface {
	GetUser(ctx context.Context, id int32) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	RegisterAdmin(ctx context.Context, name, email, password string) (*domain.User, error)
}

type BookService interface {
	AddBook(ctx context.Context, book *domain.Book) error
	GetBook(ctx context.Context, id int32) (*domain.Book, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	DeleteBook(ctx context.Context, id int32) error
}

// AdminLoan is a ledger record joined with the live fine preview.
type AdminLoan struct {
	domain.Loan
	CurrentFineCents int64 `json:"current_fine_cents"`
}

// BorrowerLoan is a mirror entry joined with the live fine preview.
type BorrowerLoan struct {
	domain.MirrorEntry
	CurrentFineCents int64 `json:"current_fine_cents"`
}

type BorrowService interface {
	// Borrow lends one copy of the book to the user with the given email.
	Borrow(ctx context.Context, bookID int32, borrowerEmail string) (*domain.Loan, error)

	// Return settles an active loan, freezing the fine. The second result is
	// the total charge in cents (price snapshot plus fine).
	Return(ctx context.Context, loanID int32, borrowerEmail string) (*domain.Loan, int64, error)

	// Extend pushes the due date of an active, not-yet-overdue loan.
	Extend(ctx context.Context, loanID int32, requester domain.Identity) (*domain.Loan, error)

	ListLoansForAdmin(ctx context.Context) ([]AdminLoan, error)
	ListLoansForBorrower(ctx context.Context, borrowerID int32) ([]BorrowerLoan, error)

	// RebuildMirror reconstructs one borrower's mirror from the ledger.
	RebuildMirror(ctx context.Context, borrowerID int32) error
}

type EmailService interface {
	SendVerificationEmail(ctx context.Context, email, name, token string) error
	SendReturnReceipt(ctx context.Context, email, name, bookTitle string, totalCents, fineCents int64) error
	SendOverdueReminder(ctx context.Context, email, name, bookTitle string, dueAt string) error
}
