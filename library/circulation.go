package library

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// BorrowBook issues a copy of a book to a member. All checks and both
// writes (the loan insert and the counter decrement) run in one immediate
// transaction, so two concurrent calls cannot both take the last copy or
// both pass the duplicate-loan check.
func (d *Database) BorrowBook(bookID int64, userID string) (*BorrowDetails, error) {
	tx, err := d.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var book Book
	err = tx.Get(&book, `SELECT id,title,author,total_copies,available_copies FROM books WHERE id=?`, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	if book.AvailableCopies <= 0 {
		return nil, ErrNoCopiesAvailable
	}

	var user User
	err = tx.Get(&user, `SELECT id,name,role,password_hash,created_at FROM users WHERE id=?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	var hasActive bool
	if err := tx.Get(&hasActive, `SELECT EXISTS(SELECT 1 FROM borrows WHERE user_id=? AND book_id=? AND status=?)`,
		userID, bookID, StatusActive); err != nil {
		return nil, err
	}
	if hasActive {
		return nil, ErrAlreadyBorrowed
	}

	var activeCount int
	if err := tx.Get(&activeCount, `SELECT COUNT(*) FROM borrows WHERE user_id=? AND status=?`,
		userID, StatusActive); err != nil {
		return nil, err
	}
	if activeCount >= d.policy.MaxLoansFor(user.Role) {
		return nil, ErrBorrowLimitReached
	}

	now := d.now().UTC()
	dueDate := now.AddDate(0, 0, d.policy.LoanDaysFor(user.Role))
	res, err := tx.Exec(`INSERT INTO borrows(user_id,book_id,borrow_date,due_date,status) VALUES(?,?,?,?,?)`,
		userID, bookID, now, dueDate, StatusActive)
	if err != nil {
		return nil, err
	}
	borrowID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	// Guarded decrement; a zero row count means we lost a race despite the
	// availability read above, and the whole transaction rolls back.
	upd, err := tx.Exec(`UPDATE books SET available_copies = available_copies - 1 WHERE id=? AND available_copies > 0`, bookID)
	if err != nil {
		return nil, err
	}
	n, err := upd.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoCopiesAvailable
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit borrow: %w", err)
	}
	return d.GetBorrowDetails(borrowID)
}

// ReturnBook closes a loan and gives the copy back to the pool. The acting
// member must own the loan unless privileged (librarian/admin). Returning
// an overdue loan is allowed.
func (d *Database) ReturnBook(borrowID int64, actingUserID string, privileged bool) (*BorrowDetails, error) {
	tx, err := d.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	borrow, err := getBorrowTx(tx, borrowID)
	if err != nil {
		return nil, err
	}
	if borrow.Status == StatusReturned {
		return nil, ErrAlreadyReturned
	}
	if borrow.UserID != actingUserID && !privileged {
		return nil, ErrNotAllowed
	}
	if !borrow.Status.CanTransition(StatusReturned) {
		return nil, ErrAlreadyReturned
	}

	now := d.now().UTC()
	if _, err := tx.Exec(`UPDATE borrows SET status=?, return_date=? WHERE id=?`, StatusReturned, now, borrowID); err != nil {
		return nil, err
	}

	// The cap should be unreachable while the invariants hold; min() keeps
	// the counter legal even against a corrupted row.
	if _, err := tx.Exec(`UPDATE books SET available_copies = min(available_copies + 1, total_copies) WHERE id=?`, borrow.BookID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit return: %w", err)
	}
	return d.GetBorrowDetails(borrowID)
}

// ExtendBorrow pushes a loan's due date forward by days (the policy default
// when days is zero or negative, capped at the policy maximum). Overdue-ness
// is re-evaluated against the clock rather than trusting the stored status,
// so a loan past its due date cannot be extended even before the sweep has
// flipped it.
func (d *Database) ExtendBorrow(borrowID int64, actingUserID string, days int, privileged bool) (*BorrowDetails, error) {
	tx, err := d.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	borrow, err := getBorrowTx(tx, borrowID)
	if err != nil {
		return nil, err
	}
	if borrow.Status != StatusActive {
		return nil, ErrNotExtendable
	}
	if borrow.UserID != actingUserID && !privileged {
		return nil, ErrNotAllowed
	}

	now := d.now().UTC()
	if now.After(borrow.DueDate) {
		return nil, ErrNotExtendable
	}
	if borrow.ExtensionCount >= d.policy.MaxExtensions {
		return nil, ErrExtensionLimitReached
	}

	if days <= 0 {
		days = d.policy.DefaultExtensionDays
	}
	if days > d.policy.MaxExtensionDays {
		days = d.policy.MaxExtensionDays
	}

	newDue := borrow.DueDate.AddDate(0, 0, days)
	if _, err := tx.Exec(`UPDATE borrows SET due_date=?, extension_count=extension_count+1 WHERE id=?`, newDue, borrowID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit extension: %w", err)
	}
	return d.GetBorrowDetails(borrowID)
}

func getBorrowTx(tx *sqlx.Tx, borrowID int64) (*Borrow, error) {
	var b Borrow
	err := tx.Get(&b, `SELECT id,user_id,book_id,borrow_date,due_date,return_date,status,extension_count FROM borrows WHERE id=?`, borrowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
