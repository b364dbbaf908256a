package library

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryManagerFacade(t *testing.T) {
	mgr, err := NewLibraryManager(filepath.Join(t.TempDir(), "facade.db"))
	require.NoError(t, err)
	defer mgr.Close()

	bookID, err := mgr.AddBook("Facade", "Author", 1)
	require.NoError(t, err)

	user, err := mgr.AddUser("Alice", "pw", RoleStudent)
	require.NoError(t, err)
	require.NoError(t, mgr.AuthenticateUser(user.ID, "pw"))

	loan, err := mgr.BorrowBook(bookID, user.ID)
	require.NoError(t, err)

	active, err := mgr.GetActiveBorrows()
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = mgr.ReturnBook(loan.ID, user.ID, false)
	require.NoError(t, err)

	count, err := mgr.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Equal(t, 5, mgr.Policy().MaxLoansFor(RoleStudent))
}
