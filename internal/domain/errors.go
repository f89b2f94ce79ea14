package domain

import "errors"

// Business-rule failures returned by services. Callers match them with
// errors.Is; the HTTP layer maps them onto status codes.
var (
	ErrBookNotFound = errors.New("book not found")
	ErrUserNotFound = errors.New("user not found")
	ErrLoanNotFound = errors.New("loan record not found")

	ErrBookOutOfStock      = errors.New("book not available")
	ErrDuplicateLoan       = errors.New("book already borrowed by this user")
	ErrLoanAlreadyReturned = errors.New("book has already been returned")
	ErrExtensionLimit      = errors.New("maximum number of extensions reached")
	ErrLoanOverdue         = errors.New("loan is overdue and must be returned")
	ErrLoanConflict        = errors.New("loan was modified concurrently")

	ErrUnauthorized = errors.New("not authorized to perform this action")
	ErrValidation   = errors.New("invalid input")

	ErrEmailTaken          = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountNotVerified  = errors.New("account is not verified")
	ErrVerificationExpired = errors.New("verification token has expired")

	// ErrInventoryInvariant signals a release that would push available
	// copies above the total. Correct callers never trigger it.
	ErrInventoryInvariant = errors.New("inventory invariant violated")
)
