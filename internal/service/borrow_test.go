package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookworm-backend/internal/domain"
)

type borrowEnv struct {
	books  *memBookRepo
	loans  *memLoanRepo
	users  *memUserRepo
	mirror *memMirrorStore
	email  *fakeEmailService
	svc    *borrowService
	clock  time.Time
}

func newBorrowEnv(t *testing.T) *borrowEnv {
	t.Helper()

	env := &borrowEnv{
		books:  newMemBookRepo(),
		loans:  newMemLoanRepo(),
		users:  newMemUserRepo(),
		mirror: newMemMirrorStore(),
		email:  &fakeEmailService{},
		clock:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	policy := BorrowPolicy{
		LoanPeriod:           7 * 24 * time.Hour,
		ExtensionPeriod:      7 * 24 * time.Hour,
		FineRateCentsPerHour: 10,
	}
	svc := NewBorrowService(env.loans, env.books, env.users, NewInventoryPool(env.books), env.mirror, env.email, policy)
	env.svc = svc.(*borrowService)
	env.svc.now = func() time.Time { return env.clock }
	return env
}

func (env *borrowEnv) addBook(t *testing.T, title string, priceCents int64, quantity int32) *domain.Book {
	t.Helper()
	b := &domain.Book{Title: title, Author: "Author", PriceCents: priceCents, TotalQuantity: quantity, AvailableQuantity: quantity}
	require.NoError(t, env.books.Create(context.Background(), b))
	return b
}

func (env *borrowEnv) addUser(t *testing.T, name, email string) *domain.User {
	t.Helper()
	u := &domain.User{Name: name, Email: email, Role: domain.UserRoleUser, Verified: true}
	require.NoError(t, env.users.Create(context.Background(), u))
	return u
}

func (env *borrowEnv) available(t *testing.T, bookID int32) int32 {
	t.Helper()
	b, err := env.books.GetByID(context.Background(), bookID)
	require.NoError(t, err)
	return b.AvailableQuantity
}

func TestBorrow(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 3)
		user := env.addUser(t, "Alice", "alice@test.com")

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		assert.Equal(t, book.ID, loan.BookID)
		assert.Equal(t, user.ID, loan.BorrowerID)
		assert.Equal(t, "Dune", loan.BookTitle)
		assert.Equal(t, int64(1500), loan.PriceCents)
		assert.Equal(t, env.clock, loan.BorrowedAt)
		assert.Equal(t, env.clock.Add(7*24*time.Hour), loan.DueAt)
		assert.True(t, loan.Active())
		assert.NotEmpty(t, loan.Reference)
		assert.Equal(t, int32(2), env.available(t, book.ID))

		entry, ok := env.mirror.get(user.ID, loan.ID)
		require.True(t, ok)
		assert.Equal(t, loan.DueAt, entry.DueAt)
		assert.False(t, entry.Returned)
	})

	t.Run("Book not found", func(t *testing.T) {
		env := newBorrowEnv(t)
		env.addUser(t, "Alice", "alice@test.com")

		_, err := env.svc.Borrow(ctx, 99, "alice@test.com")
		assert.ErrorIs(t, err, domain.ErrBookNotFound)
	})

	t.Run("User not found", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)

		_, err := env.svc.Borrow(ctx, book.ID, "nobody@test.com")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("Out of stock", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		alice := env.addUser(t, "Alice", "alice@test.com")
		bob := env.addUser(t, "Bob", "bob@test.com")

		_, err := env.svc.Borrow(ctx, book.ID, alice.Email)
		require.NoError(t, err)

		_, err = env.svc.Borrow(ctx, book.ID, bob.Email)
		assert.ErrorIs(t, err, domain.ErrBookOutOfStock)
		assert.Equal(t, int32(0), env.available(t, book.ID))
	})

	t.Run("Duplicate active loan rejected", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 5)
		user := env.addUser(t, "Alice", "alice@test.com")

		_, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		_, err = env.svc.Borrow(ctx, book.ID, user.Email)
		assert.ErrorIs(t, err, domain.ErrDuplicateLoan)
		assert.Equal(t, int32(4), env.available(t, book.ID))
	})

	t.Run("Borrow again after return is allowed", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)
		_, _, err = env.svc.Return(ctx, loan.ID, user.Email)
		require.NoError(t, err)

		_, err = env.svc.Borrow(ctx, book.ID, user.Email)
		assert.NoError(t, err)
	})

	t.Run("Reservation compensated when ledger write fails", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 2)
		user := env.addUser(t, "Alice", "alice@test.com")
		env.loans.failCreate = errStorageDown

		_, err := env.svc.Borrow(ctx, book.ID, user.Email)
		assert.ErrorIs(t, err, errStorageDown)
		assert.Equal(t, int32(2), env.available(t, book.ID), "reserved copy must be released on failure")
	})
}

func TestReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("On time return has no fine", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		env.clock = loan.DueAt // exactly at due time
		returned, total, err := env.svc.Return(ctx, loan.ID, user.Email)
		require.NoError(t, err)

		require.NotNil(t, returned.FineCents)
		assert.Equal(t, int64(0), *returned.FineCents)
		assert.Equal(t, int64(1500), total)
		assert.Equal(t, int32(1), env.available(t, book.ID))

		entry, ok := env.mirror.get(user.ID, loan.ID)
		require.True(t, ok)
		assert.True(t, entry.Returned)
	})

	t.Run("Overdue return freezes the fine", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		// 25 hours and a second late: 26 started hours at 10 cents each.
		env.clock = loan.DueAt.Add(25*time.Hour + time.Second)
		returned, total, err := env.svc.Return(ctx, loan.ID, user.Email)
		require.NoError(t, err)

		require.NotNil(t, returned.FineCents)
		assert.Equal(t, int64(260), *returned.FineCents)
		assert.Equal(t, int64(1760), total)
		assert.Equal(t, []string{"alice@test.com"}, env.email.receipts)
	})

	t.Run("Second return fails and leaves the first settlement intact", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		env.clock = loan.DueAt.Add(time.Hour)
		first, _, err := env.svc.Return(ctx, loan.ID, user.Email)
		require.NoError(t, err)

		env.clock = env.clock.Add(48 * time.Hour)
		_, _, err = env.svc.Return(ctx, loan.ID, user.Email)
		assert.ErrorIs(t, err, domain.ErrLoanAlreadyReturned)

		stored, err := env.loans.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, *first.FineCents, *stored.FineCents, "frozen fine must not change")
		assert.Equal(t, first.ReturnedAt.Unix(), stored.ReturnedAt.Unix())
		assert.Equal(t, int32(1), env.available(t, book.ID), "copy must not be released twice")
	})

	t.Run("Identity mismatch", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		_, _, err = env.svc.Return(ctx, loan.ID, "mallory@test.com")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Equal(t, int32(0), env.available(t, book.ID))
	})

	t.Run("Loan not found", func(t *testing.T) {
		env := newBorrowEnv(t)
		_, _, err := env.svc.Return(ctx, 42, "alice@test.com")
		assert.ErrorIs(t, err, domain.ErrLoanNotFound)
	})
}

func TestExtend(t *testing.T) {
	ctx := context.Background()

	t.Run("Two extensions then limit", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")
		identity := domain.Identity{UserID: user.ID, Email: user.Email, Role: domain.UserRoleUser}

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)
		originalDue := loan.DueAt

		first, err := env.svc.Extend(ctx, loan.ID, identity)
		require.NoError(t, err)
		assert.Equal(t, originalDue.Add(7*24*time.Hour), first.DueAt)
		assert.Equal(t, int32(1), first.ExtensionCount)

		second, err := env.svc.Extend(ctx, loan.ID, identity)
		require.NoError(t, err)
		assert.Equal(t, originalDue.Add(14*24*time.Hour), second.DueAt)
		assert.Equal(t, int32(2), second.ExtensionCount)

		_, err = env.svc.Extend(ctx, loan.ID, identity)
		assert.ErrorIs(t, err, domain.ErrExtensionLimit)

		stored, err := env.loans.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, second.DueAt, stored.DueAt, "failed extension must not move the due date")
		assert.Equal(t, int32(2), stored.ExtensionCount)

		entry, ok := env.mirror.get(user.ID, loan.ID)
		require.True(t, ok)
		assert.Equal(t, second.DueAt, entry.DueAt)
	})

	t.Run("Overdue loan cannot be extended but can be returned", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")
		identity := domain.Identity{UserID: user.ID, Email: user.Email, Role: domain.UserRoleUser}

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		env.clock = loan.DueAt.Add(time.Second)
		_, err = env.svc.Extend(ctx, loan.ID, identity)
		assert.ErrorIs(t, err, domain.ErrLoanOverdue)

		returned, _, err := env.svc.Return(ctx, loan.ID, user.Email)
		require.NoError(t, err)
		require.NotNil(t, returned.FineCents)
		assert.Equal(t, int64(10), *returned.FineCents, "one started hour late")
	})

	t.Run("Admin may extend another user's loan", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")
		admin := domain.Identity{UserID: 999, Email: "admin@test.com", Role: domain.UserRoleAdmin}

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		_, err = env.svc.Extend(ctx, loan.ID, admin)
		assert.NoError(t, err)
	})

	t.Run("Stranger may not extend", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")
		stranger := domain.Identity{UserID: 999, Email: "bob@test.com", Role: domain.UserRoleUser}

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		_, err = env.svc.Extend(ctx, loan.ID, stranger)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("Conflict with a racing return drops the mirror", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")
		identity := domain.Identity{UserID: user.ID, Email: user.Email, Role: domain.UserRoleUser}

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)
		_, ok := env.mirror.get(user.ID, loan.ID)
		require.True(t, ok)

		racing := &returnRacingLoanRepo{memLoanRepo: env.loans}
		svc := NewBorrowService(racing, env.books, env.users, NewInventoryPool(env.books), env.mirror, env.email, env.svc.policy).(*borrowService)
		svc.now = env.svc.now

		_, err = svc.Extend(ctx, loan.ID, identity)
		assert.ErrorIs(t, err, domain.ErrLoanAlreadyReturned)

		_, ok = env.mirror.get(user.ID, loan.ID)
		assert.False(t, ok, "mirror must be dropped so the next read rebuilds")
	})

	t.Run("Returned loan cannot be extended", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")
		identity := domain.Identity{UserID: user.ID, Email: user.Email, Role: domain.UserRoleUser}

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)
		_, _, err = env.svc.Return(ctx, loan.ID, user.Email)
		require.NoError(t, err)

		_, err = env.svc.Extend(ctx, loan.ID, identity)
		assert.ErrorIs(t, err, domain.ErrLoanAlreadyReturned)
	})
}

func TestConcurrentDuplicateBorrow(t *testing.T) {
	ctx := context.Background()

	// Both goroutines can pass the read-side duplicate check; the ledger's
	// uniqueness rule on active pairs must still let only one insert through.
	for i := 0; i < 300; i++ {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 2)
		user := env.addUser(t, "Alice", "alice@test.com")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, errs[j] = env.svc.Borrow(ctx, book.ID, user.Email)
			}(j)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				require.ErrorIs(t, err, domain.ErrDuplicateLoan)
			}
		}
		require.Equal(t, 1, succeeded, "exactly one borrow may create the active loan")

		active := 0
		loans, err := env.loans.List(ctx)
		require.NoError(t, err)
		for _, l := range loans {
			if l.BookID == book.ID && l.BorrowerID == user.ID && l.Active() {
				active++
			}
		}
		require.Equal(t, 1, active, "at most one active loan per (borrower, book) pair")
		require.Equal(t, int32(1), env.available(t, book.ID), "loser's reservation must be compensated")
	}
}

func TestConcurrentBorrowsSingleCopy(t *testing.T) {
	env := newBorrowEnv(t)
	book := env.addBook(t, "Dune", 1500, 1)
	alice := env.addUser(t, "Alice", "alice@test.com")
	bob := env.addUser(t, "Bob", "bob@test.com")

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i, email := range []string{alice.Email, bob.Email} {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			_, errs[i] = env.svc.Borrow(ctx, book.ID, email)
		}(i, email)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrBookOutOfStock)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent borrow may win the last copy")
	assert.Equal(t, int32(0), env.available(t, book.ID))
}

func TestListLoans(t *testing.T) {
	ctx := context.Background()

	t.Run("Borrower view rebuilds from ledger on mirror miss", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		// Simulate cache loss; the ledger must be able to reconstruct it.
		require.NoError(t, env.mirror.Invalidate(ctx, user.ID))

		views, err := env.svc.ListLoansForBorrower(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, loan.ID, views[0].LoanID)

		_, ok := env.mirror.get(user.ID, loan.ID)
		assert.True(t, ok, "mirror must be repopulated after rebuild")
	})

	t.Run("Empty borrower caches as a hit after rebuild", func(t *testing.T) {
		env := newBorrowEnv(t)
		user := env.addUser(t, "Alice", "alice@test.com")

		views, err := env.svc.ListLoansForBorrower(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, views)

		_, found, err := env.mirror.List(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, found, "a rebuilt empty mirror must not read as a miss")
	})

	t.Run("Live fine preview does not mutate the loan", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)

		env.clock = loan.DueAt.Add(90 * time.Minute)
		for i := 0; i < 3; i++ {
			views, err := env.svc.ListLoansForAdmin(ctx)
			require.NoError(t, err)
			require.Len(t, views, 1)
			assert.Equal(t, int64(20), views[0].CurrentFineCents)
		}

		stored, err := env.loans.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.FineCents, "preview must never freeze a fine")
	})

	t.Run("Admin view shows frozen fine after return", func(t *testing.T) {
		env := newBorrowEnv(t)
		book := env.addBook(t, "Dune", 1500, 1)
		user := env.addUser(t, "Alice", "alice@test.com")

		loan, err := env.svc.Borrow(ctx, book.ID, user.Email)
		require.NoError(t, err)
		env.clock = loan.DueAt.Add(time.Hour)
		_, _, err = env.svc.Return(ctx, loan.ID, user.Email)
		require.NoError(t, err)

		env.clock = env.clock.Add(100 * time.Hour)
		views, err := env.svc.ListLoansForAdmin(ctx)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, int64(10), views[0].CurrentFineCents, "frozen fine must not keep accruing")
	})
}
