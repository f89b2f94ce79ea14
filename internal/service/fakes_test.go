package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"bookworm-backend/internal/domain"
)

// In-memory repository fakes. They enforce the same guarded transitions as
// the postgres implementations so lifecycle tests exercise real state.

type memBookRepo struct {
	mu     sync.Mutex
	nextID int32
	books  map[int32]*domain.Book
}

func newMemBookRepo() *memBookRepo {
	return &memBookRepo{nextID: 1, books: make(map[int32]*domain.Book)}
}

func (r *memBookRepo) Create(ctx context.Context, b *domain.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = r.nextID
	r.nextID++
	cp := *b
	r.books[b.ID] = &cp
	return nil
}

func (r *memBookRepo) GetByID(ctx context.Context, id int32) (*domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memBookRepo) List(ctx context.Context) ([]domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Book
	for _, b := range r.books {
		out = append(out, *b)
	}
	return out, nil
}

func (r *memBookRepo) Delete(ctx context.Context, id int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.books[id]; !ok {
		return domain.ErrBookNotFound
	}
	delete(r.books, id)
	return nil
}

func (r *memBookRepo) ReserveCopy(ctx context.Context, bookID int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[bookID]
	if !ok || b.AvailableQuantity <= 0 {
		return domain.ErrBookOutOfStock
	}
	b.AvailableQuantity--
	return nil
}

func (r *memBookRepo) ReleaseCopy(ctx context.Context, bookID int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[bookID]
	if !ok || b.AvailableQuantity >= b.TotalQuantity {
		return domain.ErrInventoryInvariant
	}
	b.AvailableQuantity++
	return nil
}

type memLoanRepo struct {
	mu         sync.Mutex
	nextID     int32
	loans      map[int32]*domain.Loan
	failCreate error
}

func newMemLoanRepo() *memLoanRepo {
	return &memLoanRepo{nextID: 1, loans: make(map[int32]*domain.Loan)}
}

func (r *memLoanRepo) Create(ctx context.Context, l *domain.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	// Same rule as the loans_one_active_per_pair unique index.
	for _, existing := range r.loans {
		if existing.BookID == l.BookID && existing.BorrowerID == l.BorrowerID && existing.ReturnedAt == nil {
			return domain.ErrDuplicateLoan
		}
	}
	l.ID = r.nextID
	r.nextID++
	cp := *l
	r.loans[l.ID] = &cp
	return nil
}

func (r *memLoanRepo) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *memLoanRepo) GetActiveByBookAndBorrower(ctx context.Context, bookID, borrowerID int32) (*domain.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.loans {
		if l.BookID == bookID && l.BorrowerID == borrowerID && l.ReturnedAt == nil {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrLoanNotFound
}

func (r *memLoanRepo) List(ctx context.Context) ([]domain.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Loan
	for _, l := range r.loans {
		out = append(out, *l)
	}
	return out, nil
}

func (r *memLoanRepo) ListByBorrower(ctx context.Context, borrowerID int32) ([]domain.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Loan
	for _, l := range r.loans {
		if l.BorrowerID == borrowerID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *memLoanRepo) ListBorrowerIDs(ctx context.Context) ([]int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int32]bool)
	var out []int32
	for _, l := range r.loans {
		if !seen[l.BorrowerID] {
			seen[l.BorrowerID] = true
			out = append(out, l.BorrowerID)
		}
	}
	return out, nil
}

func (r *memLoanRepo) MarkReturned(ctx context.Context, id int32, returnedAt time.Time, fineCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[id]
	if !ok {
		return domain.ErrLoanNotFound
	}
	if l.ReturnedAt != nil {
		return domain.ErrLoanAlreadyReturned
	}
	l.ReturnedAt = &returnedAt
	l.FineCents = &fineCents
	return nil
}

func (r *memLoanRepo) ExtendDueDate(ctx context.Context, id int32, newDueAt time.Time, knownExtensionCount int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[id]
	if !ok {
		return domain.ErrLoanNotFound
	}
	if l.ReturnedAt != nil || l.ExtensionCount != knownExtensionCount {
		return domain.ErrLoanConflict
	}
	l.DueAt = newDueAt
	l.ExtensionCount++
	return nil
}

func (r *memLoanRepo) ListOverdueUnnotified(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Loan
	for _, l := range r.loans {
		if l.ReturnedAt == nil && l.DueAt.Before(asOf) && !l.Notified {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *memLoanRepo) MarkNotified(ctx context.Context, id int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loans[id]; ok {
		l.Notified = true
	}
	return nil
}

type memMirrorStore struct {
	mu      sync.Mutex
	entries map[int32]map[int32]domain.MirrorEntry
}

func newMemMirrorStore() *memMirrorStore {
	return &memMirrorStore{entries: make(map[int32]map[int32]domain.MirrorEntry)}
}

func (s *memMirrorStore) Upsert(ctx context.Context, borrowerID int32, entry domain.MirrorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[borrowerID] == nil {
		s.entries[borrowerID] = make(map[int32]domain.MirrorEntry)
	}
	s.entries[borrowerID][entry.LoanID] = entry
	return nil
}

func (s *memMirrorStore) List(ctx context.Context, borrowerID int32) ([]domain.MirrorEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[borrowerID]
	if !ok {
		return nil, false, nil
	}
	var out []domain.MirrorEntry
	for _, e := range m {
		out = append(out, e)
	}
	return out, true, nil
}

func (s *memMirrorStore) Rebuild(ctx context.Context, borrowerID int32, entries []domain.MirrorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[int32]domain.MirrorEntry, len(entries))
	for _, e := range entries {
		m[e.LoanID] = e
	}
	s.entries[borrowerID] = m
	return nil
}

func (s *memMirrorStore) Invalidate(ctx context.Context, borrowerID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, borrowerID)
	return nil
}

func (s *memMirrorStore) get(borrowerID, loanID int32) (domain.MirrorEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[borrowerID][loanID]
	return e, ok
}

type memUserRepo struct {
	mu     sync.Mutex
	nextID int32
	users  map[int32]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: make(map[int32]*domain.User)}
}

func (r *memUserRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.ID = r.nextID
	r.nextID++
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUserRepo) Update(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return domain.ErrUserNotFound
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) List(ctx context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

type fakeEmailService struct {
	mu       sync.Mutex
	receipts []string
}

func (s *fakeEmailService) SendVerificationEmail(ctx context.Context, email, name, token string) error {
	return nil
}

func (s *fakeEmailService) SendReturnReceipt(ctx context.Context, email, name, bookTitle string, totalCents, fineCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, email)
	return nil
}

func (s *fakeEmailService) SendOverdueReminder(ctx context.Context, email, name, bookTitle string, dueAt string) error {
	return nil
}

// returnRacingLoanRepo settles the loan just before the guarded extension
// applies, reproducing a return that wins the race against an extend.
type returnRacingLoanRepo struct {
	*memLoanRepo
	raced bool
}

func (r *returnRacingLoanRepo) ExtendDueDate(ctx context.Context, id int32, newDueAt time.Time, knownExtensionCount int32) error {
	if !r.raced {
		r.raced = true
		if err := r.memLoanRepo.MarkReturned(ctx, id, time.Now(), 0); err != nil {
			return err
		}
	}
	return r.memLoanRepo.ExtendDueDate(ctx, id, newDueAt, knownExtensionCount)
}

var errStorageDown = errors.New("storage down")
