package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/service"
)

type BorrowHandler struct {
	borrowSvc service.BorrowService
}

func NewBorrowHandler(borrowSvc service.BorrowService) *BorrowHandler {
	return &BorrowHandler{borrowSvc: borrowSvc}
}

func parseID(r *http.Request, name string) (int32, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, domain.ErrValidation
	}
	return int32(id), nil
}

type borrowRequest struct {
	Email string `json:"email"`
}

// RecordBorrow lends a copy of the book to the user named in the body.
func (h *BorrowHandler) RecordBorrow(w http.ResponseWriter, r *http.Request) {
	bookID, err := parseID(r, "bookId")
	if err != nil {
		writeError(w, err)
		return
	}

	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, domain.ErrValidation)
		return
	}

	loan, err := h.borrowSvc.Borrow(r.Context(), bookID, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Borrowed book recorded successfully.",
		"loan":    loan,
	})
}

// ReturnBorrow settles the loan and reports the total charge.
func (h *BorrowHandler) ReturnBorrow(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r, "loanId")
	if err != nil {
		writeError(w, err)
		return
	}

	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, domain.ErrValidation)
		return
	}

	loan, totalCents, err := h.borrowSvc.Return(r.Context(), loanID, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	message := fmt.Sprintf("The book has been returned successfully. The total charges are $%.2f.", float64(totalCents)/100)
	if loan.FineCents != nil && *loan.FineCents > 0 {
		message = fmt.Sprintf("The book has been returned successfully. The total charges, including a fine, are $%.2f.", float64(totalCents)/100)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"message":            message,
		"total_charge_cents": totalCents,
		"loan":               loan,
	})
}

// ExtendBorrow pushes the due date of the caller's loan.
func (h *BorrowHandler) ExtendBorrow(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r, "loanId")
	if err != nil {
		writeError(w, err)
		return
	}

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}

	loan, err := h.borrowSvc.Extend(r.Context(), loanID, identity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      fmt.Sprintf("Borrow period extended successfully. New due date: %s.", loan.DueAt.Format("Mon Jan 2 2006")),
		"new_due_date": loan.DueAt,
		"loan":         loan,
	})
}

// MyBorrowedBooks lists the caller's loans from the mirror view.
func (h *BorrowHandler) MyBorrowedBooks(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}

	loans, err := h.borrowSvc.ListLoansForBorrower(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"borrowed_books": loans,
	})
}

// AllBorrowedBooks lists every loan in the ledger for administrators.
func (h *BorrowHandler) AllBorrowedBooks(w http.ResponseWriter, r *http.Request) {
	loans, err := h.borrowSvc.ListLoansForAdmin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"borrowed_books": loans,
	})
}
