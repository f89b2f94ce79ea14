package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/repository"
)

const loanColumns = `id, reference, book_id, borrower_id, borrower_name, borrower_email, book_title, book_author, price_cents, borrowed_at, due_at, returned_at, extension_count, fine_cents, notified, created_on, updated_on`

type loanRepository struct {
	db *sql.DB
}

func NewLoanRepository(db *sql.DB) repository.LoanRepository {
	return &loanRepository{db: db}
}

func scanLoan(row interface{ Scan(...any) error }) (*domain.Loan, error) {
	l := &domain.Loan{}
	err := row.Scan(&l.ID, &l.Reference, &l.BookID, &l.BorrowerID, &l.BorrowerName, &l.BorrowerEmail, &l.BookTitle, &l.BookAuthor, &l.PriceCents, &l.BorrowedAt, &l.DueAt, &l.ReturnedAt, &l.ExtensionCount, &l.FineCents, &l.Notified, &l.CreatedOn, &l.UpdatedOn)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Create inserts a new ledger record. The loans_one_active_per_pair partial
// unique index rejects a second active loan for the same (book, borrower)
// pair, closing the window between the service's duplicate check and the
// insert when two borrows race.
func (r *loanRepository) Create(ctx context.Context, l *domain.Loan) error {
	query := `INSERT INTO loans (reference, book_id, borrower_id, borrower_name, borrower_email, book_title, book_author, price_cents, borrowed_at, due_at, extension_count, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		l.Reference, l.BookID, l.BorrowerID, l.BorrowerName, l.BorrowerEmail, l.BookTitle, l.BookAuthor,
		l.PriceCents, l.BorrowedAt, l.DueAt, l.ExtensionCount, time.Now(), time.Now()).Scan(&l.ID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return domain.ErrDuplicateLoan
	}
	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLoanNotFound
	}
	return l, err
}

func (r *loanRepository) GetActiveByBookAndBorrower(ctx context.Context, bookID, borrowerID int32) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE book_id = $1 AND borrower_id = $2 AND returned_at IS NULL`
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, bookID, borrowerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLoanNotFound
	}
	return l, err
}

func (r *loanRepository) List(ctx context.Context) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans ORDER BY borrowed_at DESC`
	return r.queryLoans(ctx, query)
}

func (r *loanRepository) ListByBorrower(ctx context.Context, borrowerID int32) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE borrower_id = $1 ORDER BY borrowed_at DESC`
	return r.queryLoans(ctx, query, borrowerID)
}

func (r *loanRepository) ListBorrowerIDs(ctx context.Context) ([]int32, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT borrower_id FROM loans`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkReturned settles the loan and freezes the fine in a single statement.
// The returned_at IS NULL guard makes a second settlement a no-op at the
// database, so the fine written by the first return is never overwritten.
func (r *loanRepository) MarkReturned(ctx context.Context, id int32, returnedAt time.Time, fineCents int64) error {
	query := `UPDATE loans SET returned_at = $2, fine_cents = $3, updated_on = $4
	          WHERE id = $1 AND returned_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, returnedAt, fineCents, time.Now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrLoanAlreadyReturned
	}
	return nil
}

// ExtendDueDate applies only while the loan is still active and holds the
// extension count the caller validated against. A concurrent Return or
// Extend invalidates the guard and the update affects zero rows.
func (r *loanRepository) ExtendDueDate(ctx context.Context, id int32, newDueAt time.Time, knownExtensionCount int32) error {
	query := `UPDATE loans SET due_at = $2, extension_count = extension_count + 1, updated_on = $3
	          WHERE id = $1 AND returned_at IS NULL AND extension_count = $4`
	res, err := r.db.ExecContext(ctx, query, id, newDueAt, time.Now(), knownExtensionCount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrLoanConflict
	}
	return nil
}

func (r *loanRepository) ListOverdueUnnotified(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE returned_at IS NULL AND due_at < $1 AND notified = FALSE`
	return r.queryLoans(ctx, query, asOf)
}

func (r *loanRepository) MarkNotified(ctx context.Context, id int32) error {
	_, err := r.db.ExecContext(ctx, `UPDATE loans SET notified = TRUE, updated_on = $2 WHERE id = $1`, id, time.Now())
	return err
}

func (r *loanRepository) queryLoans(ctx context.Context, query string, args ...any) ([]domain.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}
