package library

import (
	"context"
	"time"
)

// LibraryManager is a thin façade over the Database, keeping CLI code simple.
type LibraryManager struct {
	db *Database
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath, opts...)
	if err != nil {
		return nil, err
	}
	return &LibraryManager{db: db}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Policy returns the circulation policy in effect.
func (lm *LibraryManager) Policy() LoanPolicy { return lm.db.policy }

// ------------------ Catalog helpers ------------------

func (lm *LibraryManager) AddBook(title, author string, copies int) (int64, error) {
	return lm.db.AddBook(title, author, copies)
}

func (lm *LibraryManager) GetBook(id int64) (*Book, error) { return lm.db.GetBook(id) }
func (lm *LibraryManager) GetAllBooks() ([]*Book, error)   { return lm.db.GetAllBooks() }

func (lm *LibraryManager) SetBookCopies(id int64, total int) error {
	return lm.db.SetBookCopies(id, total)
}

// ------------------ Member helpers ------------------

func (lm *LibraryManager) AddUser(name, password string, role Role) (*User, error) {
	return lm.db.AddUser(name, password, role)
}

func (lm *LibraryManager) GetUser(id string) (*User, error) { return lm.db.GetUser(id) }
func (lm *LibraryManager) GetAllUsers() ([]*User, error)    { return lm.db.GetAllUsers() }

func (lm *LibraryManager) AuthenticateUser(id, password string) error {
	return lm.db.AuthenticateUser(id, password)
}

// ------------------ Circulation ------------------

func (lm *LibraryManager) BorrowBook(bookID int64, userID string) (*BorrowDetails, error) {
	return lm.db.BorrowBook(bookID, userID)
}

func (lm *LibraryManager) ReturnBook(borrowID int64, actingUserID string, privileged bool) (*BorrowDetails, error) {
	return lm.db.ReturnBook(borrowID, actingUserID, privileged)
}

func (lm *LibraryManager) ExtendBorrow(borrowID int64, actingUserID string, days int, privileged bool) (*BorrowDetails, error) {
	return lm.db.ExtendBorrow(borrowID, actingUserID, days, privileged)
}

func (lm *LibraryManager) SweepOverdue(ctx context.Context) (int, error) {
	return lm.db.SweepOverdue(ctx)
}

// ------------------ Loan queries ------------------

func (lm *LibraryManager) GetBorrowDetails(id int64) (*BorrowDetails, error) {
	return lm.db.GetBorrowDetails(id)
}

func (lm *LibraryManager) GetUserBorrows(userID string) ([]*BorrowDetails, error) {
	return lm.db.GetUserBorrows(userID)
}

func (lm *LibraryManager) GetActiveBorrows() ([]*BorrowDetails, error) {
	return lm.db.GetActiveBorrows()
}

func (lm *LibraryManager) GetOverdueBorrows() ([]*BorrowDetails, error) {
	return lm.db.GetOverdueBorrows()
}

// ------------------ Notifications ------------------

func (lm *LibraryManager) GetNotifications(userID string) ([]*Notification, error) {
	return lm.db.GetNotifications(userID)
}

func (lm *LibraryManager) MarkNotificationRead(id int64) error {
	return lm.db.MarkNotificationRead(id)
}

// NewNotifier returns a periodic sweeper bound to this manager's database.
func (lm *LibraryManager) NewNotifier(interval time.Duration) *Notifier {
	return NewNotifier(lm.db, interval)
}

// ------------------ Reviews & bookmarks ------------------

func (lm *LibraryManager) AddReview(bookID int64, userID string, rating int, comment string) (int64, error) {
	return lm.db.AddReview(bookID, userID, rating, comment)
}

func (lm *LibraryManager) GetBookReviews(bookID int64) ([]*Review, error) {
	return lm.db.GetBookReviews(bookID)
}

func (lm *LibraryManager) AddBookmark(userID string, bookID int64) error {
	return lm.db.AddBookmark(userID, bookID)
}

func (lm *LibraryManager) RemoveBookmark(userID string, bookID int64) error {
	return lm.db.RemoveBookmark(userID, bookID)
}

func (lm *LibraryManager) GetUserBookmarks(userID string) ([]*Book, error) {
	return lm.db.GetUserBookmarks(userID)
}
