package domain

import "time"

// Loan is the canonical record of one borrowing transaction. Rows are never
// deleted; a returned loan stays in the ledger as the audit trail.
//
// Book title, author and price are snapshots captured at borrow time so the
// record stays meaningful if the catalog entry is later edited or removed.
type Loan struct {
	ID             int32      `json:"id"`
	Reference      string     `json:"reference"`
	BookID         int32      `json:"book_id"`
	BorrowerID     int32      `json:"borrower_id"`
	BorrowerName   string     `json:"borrower_name"`
	BorrowerEmail  string     `json:"borrower_email"`
	BookTitle      string     `json:"book_title"`
	BookAuthor     string     `json:"book_author"`
	PriceCents     int64      `json:"price_cents"`
	BorrowedAt     time.Time  `json:"borrowed_at"`
	DueAt          time.Time  `json:"due_at"`
	ReturnedAt     *time.Time `json:"returned_at,omitempty"`
	ExtensionCount int32      `json:"extension_count"`
	FineCents      *int64     `json:"fine_cents,omitempty"`
	Notified       bool       `json:"-"`
	CreatedOn      time.Time  `json:"created_on"`
	UpdatedOn      time.Time  `json:"updated_on"`
}

// MaxExtensions caps how many times a single loan may be extended.
const MaxExtensions = 2

func (l *Loan) Active() bool {
	return l.ReturnedAt == nil
}

func (l *Loan) Overdue(now time.Time) bool {
	return l.Active() && now.After(l.DueAt)
}

// MirrorEntry is the per-borrower projection of a Loan. It is a derived
// cache: always rebuildable from the loans table, never the source of truth.
type MirrorEntry struct {
	LoanID         int32     `json:"loan_id"`
	BookID         int32     `json:"book_id"`
	BookTitle      string    `json:"book_title"`
	BorrowedAt     time.Time `json:"borrowed_at"`
	DueAt          time.Time `json:"due_at"`
	Returned       bool      `json:"returned"`
	ExtensionCount int32     `json:"extension_count"`
}

// MirrorEntryFromLoan projects a canonical loan into its mirror form.
func MirrorEntryFromLoan(l *Loan) MirrorEntry {
	return MirrorEntry{
		LoanID:         l.ID,
		BookID:         l.BookID,
		BookTitle:      l.BookTitle,
		BorrowedAt:     l.BorrowedAt,
		DueAt:          l.DueAt,
		Returned:       !l.Active(),
		ExtensionCount: l.ExtensionCount,
	}
}
