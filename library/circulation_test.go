package library

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorrowCapacity(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Single Copy", "Author", 1)
	alice := addStudent(t, db, "Alice")
	bob := addStudent(t, db, "Bob")

	loan, err := db.BorrowBook(bookID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, loan.Status)
	assert.Equal(t, "Single Copy", loan.BookTitle)
	assert.Equal(t, "Alice", loan.UserName)

	b, _ := db.GetBook(bookID)
	assert.Equal(t, 0, b.AvailableCopies)

	_, err = db.BorrowBook(bookID, bob.ID)
	assert.ErrorIs(t, err, ErrNoCopiesAvailable)

	// A failed borrow must not leave a loan row behind.
	loans, err := db.GetUserBorrows(bob.ID)
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestBorrowDuplicate(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Two Copies", "Author", 2)
	alice := addStudent(t, db, "Alice")

	_, err := db.BorrowBook(bookID, alice.ID)
	require.NoError(t, err)

	_, err = db.BorrowBook(bookID, alice.ID)
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)

	b, _ := db.GetBook(bookID)
	assert.Equal(t, 1, b.AvailableCopies)
}

func TestBorrowUnknownBookAndMember(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Known", "Author", 1)
	alice := addStudent(t, db, "Alice")

	_, err := db.BorrowBook(99999, alice.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	_, err = db.BorrowBook(bookID, "no-such-member")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestBorrowLimit(t *testing.T) {
	policy := DefaultLoanPolicy()
	policy.DefaultMaxLoans = 2
	db := tempDB(t, WithLoanPolicy(policy))

	alice := addStudent(t, db, "Alice")
	var bookIDs []int64
	for _, title := range []string{"One", "Two", "Three"} {
		id, err := db.AddBook(title, "Author", 1)
		require.NoError(t, err)
		bookIDs = append(bookIDs, id)
	}

	_, err := db.BorrowBook(bookIDs[0], alice.ID)
	require.NoError(t, err)
	_, err = db.BorrowBook(bookIDs[1], alice.ID)
	require.NoError(t, err)

	_, err = db.BorrowBook(bookIDs[2], alice.ID)
	assert.ErrorIs(t, err, ErrBorrowLimitReached)

	// Returning one frees a slot.
	loans, _ := db.GetUserBorrows(alice.ID)
	require.NotEmpty(t, loans)
	_, err = db.ReturnBook(loans[0].ID, alice.ID, false)
	require.NoError(t, err)

	_, err = db.BorrowBook(bookIDs[2], alice.ID)
	assert.NoError(t, err)
}

func TestTeacherLoanPeriod(t *testing.T) {
	frozen := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	db := tempDB(t, WithClock(func() time.Time { return frozen }))

	bookID, _ := db.AddBook("Long Loan", "Author", 2)
	student := addStudent(t, db, "Student")
	teacher, err := db.AddUser("Teacher", "pw", RoleTeacher)
	require.NoError(t, err)

	studentLoan, err := db.BorrowBook(bookID, student.ID)
	require.NoError(t, err)
	assert.True(t, studentLoan.DueDate.Equal(frozen.AddDate(0, 0, 14)))

	teacherLoan, err := db.BorrowBook(bookID, teacher.ID)
	require.NoError(t, err)
	assert.True(t, teacherLoan.DueDate.Equal(frozen.AddDate(0, 0, 30)))
}

func TestReturnRoundTrip(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Round Trip", "Author", 2)
	alice := addStudent(t, db, "Alice")

	before, _ := db.GetBook(bookID)
	loan, err := db.BorrowBook(bookID, alice.ID)
	require.NoError(t, err)

	returned, err := db.ReturnBook(loan.ID, alice.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)

	after, _ := db.GetBook(bookID)
	assert.Equal(t, before.AvailableCopies, after.AvailableCopies)

	_, err = db.ReturnBook(loan.ID, alice.ID, false)
	assert.ErrorIs(t, err, ErrAlreadyReturned)
}

func TestReturnPrivilege(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Guarded", "Author", 1)
	alice := addStudent(t, db, "Alice")
	bob := addStudent(t, db, "Bob")
	librarian, err := db.AddUser("Librarian", "pw", RoleLibrarian)
	require.NoError(t, err)

	loan, err := db.BorrowBook(bookID, alice.ID)
	require.NoError(t, err)

	_, err = db.ReturnBook(loan.ID, bob.ID, bob.Role.Privileged())
	assert.ErrorIs(t, err, ErrNotAllowed)

	_, err = db.ReturnBook(loan.ID, librarian.ID, librarian.Role.Privileged())
	assert.NoError(t, err)
}

func TestReturnUnknownLoan(t *testing.T) {
	db := tempDB(t)
	alice := addStudent(t, db, "Alice")

	_, err := db.ReturnBook(99999, alice.ID, false)
	assert.ErrorIs(t, err, ErrBorrowNotFound)
}

func TestExtendDefaultDays(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Extendable", "Author", 1)
	alice := addStudent(t, db, "Alice")

	loan, err := db.BorrowBook(bookID, alice.ID)
	require.NoError(t, err)

	extended, err := db.ExtendBorrow(loan.ID, alice.ID, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, extended.ExtensionCount)
	assert.True(t, extended.DueDate.Equal(loan.DueDate.AddDate(0, 0, 7)))

	// Explicit day counts are honored, oversized ones are capped.
	extended, err = db.ExtendBorrow(loan.ID, alice.ID, 3, false)
	require.NoError(t, err)
	assert.Equal(t, 2, extended.ExtensionCount)
	assert.True(t, extended.DueDate.Equal(loan.DueDate.AddDate(0, 0, 10)))

	extended, err = db.ExtendBorrow(loan.ID, alice.ID, 365, false)
	require.NoError(t, err)
	assert.True(t, extended.DueDate.Equal(loan.DueDate.AddDate(0, 0, 40)))
}

func TestExtendLimit(t *testing.T) {
	policy := DefaultLoanPolicy()
	policy.MaxExtensions = 1
	db := tempDB(t, WithLoanPolicy(policy))

	bookID, _ := db.AddBook("Once Only", "Author", 1)
	alice := addStudent(t, db, "Alice")

	loan, err := db.BorrowBook(bookID, alice.ID)
	require.NoError(t, err)

	extended, err := db.ExtendBorrow(loan.ID, alice.ID, 0, false)
	require.NoError(t, err)

	_, err = db.ExtendBorrow(loan.ID, alice.ID, 0, false)
	assert.ErrorIs(t, err, ErrExtensionLimitReached)

	// Due date unchanged by the failed extension.
	after, err := db.GetBorrow(loan.ID)
	require.NoError(t, err)
	assert.True(t, after.DueDate.Equal(extended.DueDate))
}

func TestExtendPastDueFailsBeforeSweep(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	db := tempDB(t, WithClock(func() time.Time { return now }))

	bookID, _ := db.AddBook("Late", "Author", 1)
	alice := addStudent(t, db, "Alice")

	loan, err := db.BorrowBook(bookID, alice.ID)
	require.NoError(t, err)

	// Past the due date but the sweep has not run: status is still active,
	// yet the extension must be refused on the live clock.
	now = now.AddDate(0, 0, 15)
	_, err = db.ExtendBorrow(loan.ID, alice.ID, 0, false)
	assert.ErrorIs(t, err, ErrNotExtendable)

	after, err := db.GetBorrow(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, after.Status)
	assert.True(t, after.DueDate.Equal(loan.DueDate))
}

func TestExtendReturnedLoan(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Done", "Author", 1)
	alice := addStudent(t, db, "Alice")

	loan, err := db.BorrowBook(bookID, alice.ID)
	require.NoError(t, err)
	_, err = db.ReturnBook(loan.ID, alice.ID, false)
	require.NoError(t, err)

	_, err = db.ExtendBorrow(loan.ID, alice.ID, 0, false)
	assert.ErrorIs(t, err, ErrNotExtendable)
}

func TestExtendPrivilege(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Guarded", "Author", 1)
	alice := addStudent(t, db, "Alice")
	bob := addStudent(t, db, "Bob")
	admin, err := db.AddUser("Admin", "pw", RoleAdmin)
	require.NoError(t, err)

	loan, err := db.BorrowBook(bookID, alice.ID)
	require.NoError(t, err)

	_, err = db.ExtendBorrow(loan.ID, bob.ID, 0, bob.Role.Privileged())
	assert.ErrorIs(t, err, ErrNotAllowed)

	_, err = db.ExtendBorrow(loan.ID, admin.ID, 0, admin.Role.Privileged())
	assert.NoError(t, err)
}

// TestConcurrentBorrowSingleCopy launches competing borrows against the last
// copy of a book; exactly one may win.
func TestConcurrentBorrowSingleCopy(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Contested", "Author", 1)

	const n = 8
	users := make([]*User, n)
	for i := 0; i < n; i++ {
		users[i] = addStudent(t, db, "Member")
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = db.BorrowBook(bookID, users[i].ID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrNoCopiesAvailable)
		}
	}
	assert.Equal(t, 1, successes)

	b, _ := db.GetBook(bookID)
	assert.Equal(t, 0, b.AvailableCopies)
	assert.Equal(t, 1, b.TotalCopies)
}

// TestCounterBoundsInvariant churns loans through borrow/return cycles and
// checks the counters stay within bounds throughout.
func TestCounterBoundsInvariant(t *testing.T) {
	db := tempDB(t)
	bookID, _ := db.AddBook("Churned", "Author", 2)
	users := []*User{
		addStudent(t, db, "Alice"),
		addStudent(t, db, "Bob"),
		addStudent(t, db, "Charlie"),
	}

	check := func() {
		b, err := db.GetBook(bookID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, b.AvailableCopies, 0)
		assert.LessOrEqual(t, b.AvailableCopies, b.TotalCopies)
	}

	for round := 0; round < 3; round++ {
		var loanIDs []int64
		for _, u := range users {
			loan, err := db.BorrowBook(bookID, u.ID)
			if err == nil {
				loanIDs = append(loanIDs, loan.ID)
			}
			check()
		}
		for i, id := range loanIDs {
			_, err := db.ReturnBook(id, users[i].ID, false)
			require.NoError(t, err)
			check()
		}
	}

	b, _ := db.GetBook(bookID)
	assert.Equal(t, 2, b.AvailableCopies)
}
