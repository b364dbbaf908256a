package library

import "errors"

// Sentinel errors for every validation failure circulation can surface.
// Callers match with errors.Is and map them to their own presentation;
// anything else is an infrastructure failure and means the transaction was
// rolled back with no partial state left behind.
var (
	ErrBookNotFound   = errors.New("book not found")
	ErrUserNotFound   = errors.New("member not found")
	ErrBorrowNotFound = errors.New("loan not found")

	ErrNoCopiesAvailable     = errors.New("no copies of this book are available")
	ErrAlreadyBorrowed       = errors.New("member already has an active loan for this book")
	ErrBorrowLimitReached    = errors.New("member has reached the concurrent loan limit")
	ErrAlreadyReturned       = errors.New("loan has already been returned")
	ErrNotExtendable         = errors.New("loan can no longer be extended")
	ErrExtensionLimitReached = errors.New("loan has reached the extension limit")
	ErrNotAllowed            = errors.New("member may not act on this loan")

	ErrInvalidCredentials = errors.New("invalid member credentials")
	ErrDuplicateReview    = errors.New("member already reviewed this book")
	ErrDuplicateBookmark  = errors.New("book is already bookmarked")
	ErrBookmarkNotFound   = errors.New("bookmark not found")
)
