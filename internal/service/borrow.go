package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/logger"
	"bookworm-backend/internal/repository"
	"bookworm-backend/internal/utils"
)

// BorrowPolicy carries the lending rules the engine applies.
type BorrowPolicy struct {
	LoanPeriod           time.Duration
	ExtensionPeriod      time.Duration
	FineRateCentsPerHour int64
}

type borrowService struct {
	loans    repository.LoanRepository
	books    repository.BookRepository
	users    repository.UserRepository
	pool     *InventoryPool
	mirror   repository.MirrorStore
	emailSvc EmailService
	policy   BorrowPolicy
	now      func() time.Time
}

func NewBorrowService(
	loans repository.LoanRepository,
	books repository.BookRepository,
	users repository.UserRepository,
	pool *InventoryPool,
	mirror repository.MirrorStore,
	emailSvc EmailService,
	policy BorrowPolicy,
) BorrowService {
	return &borrowService{
		loans:    loans,
		books:    books,
		users:    users,
		pool:     pool,
		mirror:   mirror,
		emailSvc: emailSvc,
		policy:   policy,
		now:      time.Now,
	}
}

func (s *borrowService) Borrow(ctx context.Context, bookID int32, borrowerEmail string) (*domain.Loan, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, borrowerEmail)
	if err != nil {
		return nil, err
	}

	// Duplicate guard is checked against the ledger, never the mirror. This
	// read is a fast path; the unique index on active (book, borrower) pairs
	// is what stops two racing borrows, surfacing through Create below.
	_, err = s.loans.GetActiveByBookAndBorrower(ctx, bookID, user.ID)
	if err == nil {
		return nil, domain.ErrDuplicateLoan
	}
	if !errors.Is(err, domain.ErrLoanNotFound) {
		return nil, err
	}

	if err := s.pool.Reserve(ctx, bookID); err != nil {
		return nil, err
	}

	now := s.now()
	loan := &domain.Loan{
		Reference:     uuid.NewString(),
		BookID:        book.ID,
		BorrowerID:    user.ID,
		BorrowerName:  user.Name,
		BorrowerEmail: user.Email,
		BookTitle:     book.Title,
		BookAuthor:    book.Author,
		PriceCents:    book.PriceCents,
		BorrowedAt:    now,
		DueAt:         now.Add(s.policy.LoanPeriod),
	}

	if err := s.loans.Create(ctx, loan); err != nil {
		// The reservation must not leak: give the copy back before failing.
		if relErr := s.pool.Release(ctx, bookID); relErr != nil {
			logger.Error("Failed to compensate reservation", "book_id", bookID, "error", relErr)
		}
		return nil, err
	}

	s.updateMirror(ctx, loan)
	return loan, nil
}

func (s *borrowService) Return(ctx context.Context, loanID int32, borrowerEmail string) (*domain.Loan, int64, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, 0, err
	}
	if !loan.Active() {
		return nil, 0, domain.ErrLoanAlreadyReturned
	}
	// Identity check against the snapshot on the record. An admin returning
	// on a user's behalf still supplies that user's email.
	if loan.BorrowerEmail != borrowerEmail {
		return nil, 0, domain.ErrUnauthorized
	}

	now := s.now()
	fine := utils.CalculateFineCents(loan.DueAt, now, s.policy.FineRateCentsPerHour)

	// Settlement and fine freeze happen in one guarded write; a racing
	// second Return fails here without touching the record.
	if err := s.loans.MarkReturned(ctx, loanID, now, fine); err != nil {
		return nil, 0, err
	}

	loan.ReturnedAt = &now
	loan.FineCents = &fine

	if err := s.pool.Release(ctx, loan.BookID); err != nil {
		// The loan is settled; a failed release is an inventory drift to
		// reconcile, not a reason to unwind the settlement.
		logger.Error("Copy release failed after settlement", "loan_id", loanID, "book_id", loan.BookID, "error", err)
	}

	s.updateMirror(ctx, loan)

	total := loan.PriceCents + fine
	if err := s.emailSvc.SendReturnReceipt(ctx, loan.BorrowerEmail, loan.BorrowerName, loan.BookTitle, total, fine); err != nil {
		logger.Warn("Failed to send return receipt", "loan_id", loanID, "error", err)
	}

	return loan, total, nil
}

func (s *borrowService) Extend(ctx context.Context, loanID int32, requester domain.Identity) (*domain.Loan, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if requester.UserID != loan.BorrowerID && !requester.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	if !loan.Active() {
		return nil, domain.ErrLoanAlreadyReturned
	}
	if loan.ExtensionCount >= domain.MaxExtensions {
		return nil, domain.ErrExtensionLimit
	}
	// An overdue loan cannot be rescued by extension; it has to be returned
	// so the fine settles.
	if s.now().After(loan.DueAt) {
		return nil, domain.ErrLoanOverdue
	}

	newDueAt := loan.DueAt.Add(s.policy.ExtensionPeriod)
	if err := s.loans.ExtendDueDate(ctx, loanID, newDueAt, loan.ExtensionCount); err != nil {
		if errors.Is(err, domain.ErrLoanConflict) {
			// The loan changed under us; drop the mirror so the next read
			// rebuilds from the ledger instead of trusting whichever racing
			// upsert landed last.
			if invErr := s.mirror.Invalidate(ctx, loan.BorrowerID); invErr != nil {
				logger.Warn("Mirror invalidation failed after extend conflict", "borrower_id", loan.BorrowerID, "error", invErr)
			}
			return nil, s.resolveExtendConflict(ctx, loanID)
		}
		return nil, err
	}

	loan.DueAt = newDueAt
	loan.ExtensionCount++

	s.updateMirror(ctx, loan)
	return loan, nil
}

// resolveExtendConflict rereads a loan whose guarded extension lost a race
// and reports what actually happened to it.
func (s *borrowService) resolveExtendConflict(ctx context.Context, loanID int32) error {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return err
	}
	if !loan.Active() {
		return domain.ErrLoanAlreadyReturned
	}
	if loan.ExtensionCount >= domain.MaxExtensions {
		return domain.ErrExtensionLimit
	}
	return domain.ErrLoanConflict
}

func (s *borrowService) ListLoansForAdmin(ctx context.Context) ([]AdminLoan, error) {
	loans, err := s.loans.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]AdminLoan, 0, len(loans))
	for _, l := range loans {
		view := AdminLoan{Loan: l}
		if l.Active() {
			view.CurrentFineCents = utils.CalculateFineCents(l.DueAt, now, s.policy.FineRateCentsPerHour)
		} else if l.FineCents != nil {
			view.CurrentFineCents = *l.FineCents
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *borrowService) ListLoansForBorrower(ctx context.Context, borrowerID int32) ([]BorrowerLoan, error) {
	entries, found, err := s.mirror.List(ctx, borrowerID)
	if err != nil {
		logger.Warn("Mirror read failed, falling back to ledger", "borrower_id", borrowerID, "error", err)
		found = false
	}
	if !found {
		entries, err = s.rebuildMirror(ctx, borrowerID)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	views := make([]BorrowerLoan, 0, len(entries))
	for _, e := range entries {
		view := BorrowerLoan{MirrorEntry: e}
		if !e.Returned {
			view.CurrentFineCents = utils.CalculateFineCents(e.DueAt, now, s.policy.FineRateCentsPerHour)
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *borrowService) RebuildMirror(ctx context.Context, borrowerID int32) error {
	_, err := s.rebuildMirror(ctx, borrowerID)
	return err
}

// rebuildMirror reconstructs the borrower's mirror from ledger contents.
// The ledger is authoritative, so this is always safe to run.
func (s *borrowService) rebuildMirror(ctx context.Context, borrowerID int32) ([]domain.MirrorEntry, error) {
	loans, err := s.loans.ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.MirrorEntry, 0, len(loans))
	for i := range loans {
		entries = append(entries, domain.MirrorEntryFromLoan(&loans[i]))
	}

	if err := s.mirror.Rebuild(ctx, borrowerID, entries); err != nil {
		logger.Warn("Mirror rebuild failed", "borrower_id", borrowerID, "error", err)
	}
	return entries, nil
}

// updateMirror propagates one ledger transition into the borrower's mirror.
// The mirror is a rebuildable cache: on failure the stale view is dropped so
// the next read reconstructs it from the ledger instead of serving a state
// the ledger disagrees with.
func (s *borrowService) updateMirror(ctx context.Context, loan *domain.Loan) {
	if err := s.mirror.Upsert(ctx, loan.BorrowerID, domain.MirrorEntryFromLoan(loan)); err != nil {
		logger.Warn("Mirror update failed, invalidating", "borrower_id", loan.BorrowerID, "loan_id", loan.ID, "error", err)
		if err := s.mirror.Invalidate(ctx, loan.BorrowerID); err != nil {
			logger.Error("Mirror invalidation failed", "borrower_id", loan.BorrowerID, "error", err)
		}
	}
}
