package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// Database provides high-level helpers around a SQLite connection. Every
// multi-step write goes through a single transaction; the DSN forces
// immediate transactions so the write lock is taken before the first read,
// serializing concurrent read-check-write sequences.
type Database struct {
	db     *sqlx.DB
	policy LoanPolicy
	now    func() time.Time

	addBookStmt *sqlx.Stmt
	addUserStmt *sqlx.Stmt
}

// Option configures a Database at open time.
type Option func(*Database) error

// WithLoanPolicy replaces the default circulation policy.
func WithLoanPolicy(policy LoanPolicy) Option {
	return func(d *Database) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		d.policy = policy
		return nil
	}
}

// WithClock replaces the time source, mainly for tests that need to move a
// loan past its due date.
func WithClock(now func() time.Time) Option {
	return func(d *Database) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		d.now = now
		return nil
	}
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies
// schema migrations, and prepares common statements.
func NewDatabase(dbPath string, opts ...Option) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// busy_timeout keeps concurrent writers waiting instead of failing,
	// txlock=immediate takes the write lock at BEGIN.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{
		db:     db,
		policy: DefaultLoanPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(database); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.addBookStmt != nil {
		d.addBookStmt.Close()
	}
	if d.addUserStmt != nil {
		d.addUserStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            total_copies INTEGER NOT NULL DEFAULT 1,
            available_copies INTEGER NOT NULL DEFAULT 1,
            CHECK (total_copies >= 0),
            CHECK (available_copies >= 0 AND available_copies <= total_copies)
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            role TEXT NOT NULL,
            password_hash TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS borrows (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id TEXT NOT NULL REFERENCES users(id),
            book_id INTEGER NOT NULL REFERENCES books(id),
            borrow_date DATETIME NOT NULL,
            due_date DATETIME NOT NULL,
            return_date DATETIME,
            status TEXT NOT NULL DEFAULT 'active',
            extension_count INTEGER NOT NULL DEFAULT 0
        );`,
		// One active loan per (member, book); backs the in-transaction check.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_borrows_one_active
            ON borrows(user_id, book_id) WHERE status = 'active';`,
		`CREATE INDEX IF NOT EXISTS idx_borrows_status_due ON borrows(status, due_date);`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id TEXT NOT NULL REFERENCES users(id),
            borrow_id INTEGER REFERENCES borrows(id),
            kind TEXT NOT NULL,
            message TEXT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS reviews (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id),
            user_id TEXT NOT NULL REFERENCES users(id),
            rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            UNIQUE(book_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS bookmarks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id TEXT NOT NULL REFERENCES users(id),
            book_id INTEGER NOT NULL REFERENCES books(id),
            created_at DATETIME NOT NULL,
            UNIQUE(user_id, book_id)
        );`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addBookStmt, err = d.db.Preparex(`INSERT INTO books(title,author,total_copies,available_copies) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	if d.addUserStmt, err = d.db.Preparex(`INSERT INTO users(id,name,role,password_hash,created_at) VALUES(?,?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// AddBook inserts a title with the given number of copies, all available.
func (d *Database) AddBook(title, author string, copies int) (int64, error) {
	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("book title cannot be empty")
	}
	if copies < 0 {
		return 0, fmt.Errorf("copies must not be negative, got %d", copies)
	}
	res, err := d.addBookStmt.Exec(title, author, copies, copies)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetBook fetches a single book.
func (d *Database) GetBook(id int64) (*Book, error) {
	var b Book
	err := d.db.Get(&b, `SELECT id,title,author,total_copies,available_copies FROM books WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetAllBooks returns the catalog ordered by id.
func (d *Database) GetAllBooks() ([]*Book, error) {
	var books []*Book
	if err := d.db.Select(&books, `SELECT id,title,author,total_copies,available_copies FROM books ORDER BY id`); err != nil {
		return nil, err
	}
	return books, nil
}

// SetBookCopies adjusts total_copies for a title, keeping available_copies
// consistent with the number of copies currently on loan. Shrinking below
// the on-loan count leaves available_copies at zero; outstanding loans are
// not recalled.
func (d *Database) SetBookCopies(id int64, total int) error {
	if total < 0 {
		return fmt.Errorf("total copies must not be negative, got %d", total)
	}

	tx, err := d.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var b Book
	err = tx.Get(&b, `SELECT id,title,author,total_copies,available_copies FROM books WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookNotFound
	}
	if err != nil {
		return err
	}

	onLoan := b.TotalCopies - b.AvailableCopies
	available := total - onLoan
	if available < 0 {
		available = 0
	}

	if _, err := tx.Exec(`UPDATE books SET total_copies=?, available_copies=? WHERE id=?`, total, available, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// AddUser registers a member with a bcrypt-hashed password and returns the
// created record.
func (d *Database) AddUser(name, password string, role Role) (*User, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("member name cannot be empty")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    d.now().UTC(),
	}
	if _, err := d.addUserStmt.Exec(u.ID, u.Name, u.Role, u.PasswordHash, u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a single member.
func (d *Database) GetUser(id string) (*User, error) {
	var u User
	err := d.db.Get(&u, `SELECT id,name,role,password_hash,created_at FROM users WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetAllUsers returns all members ordered by registration time.
func (d *Database) GetAllUsers() ([]*User, error) {
	var users []*User
	if err := d.db.Select(&users, `SELECT id,name,role,password_hash,created_at FROM users ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	return users, nil
}

// AuthenticateUser verifies a member's password.
func (d *Database) AuthenticateUser(id, password string) error {
	u, err := d.GetUser(id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// ---------------------------------------------------------------------------
// Loan queries
// ---------------------------------------------------------------------------

const borrowDetailsQuery = `
    SELECT br.id, br.user_id, br.book_id, br.borrow_date, br.due_date,
           br.return_date, br.status, br.extension_count,
           b.title AS book_title, b.author AS book_author, u.name AS user_name
    FROM borrows br
    JOIN books b ON b.id = br.book_id
    JOIN users u ON u.id = br.user_id`

// GetBorrow fetches a bare loan record.
func (d *Database) GetBorrow(id int64) (*Borrow, error) {
	var b Borrow
	err := d.db.Get(&b, `SELECT id,user_id,book_id,borrow_date,due_date,return_date,status,extension_count FROM borrows WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBorrowDetails fetches a loan joined with book and member display fields.
func (d *Database) GetBorrowDetails(id int64) (*BorrowDetails, error) {
	var bd BorrowDetails
	err := d.db.Get(&bd, borrowDetailsQuery+` WHERE br.id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bd, nil
}

// GetUserBorrows returns all loans of a member, newest first.
func (d *Database) GetUserBorrows(userID string) ([]*BorrowDetails, error) {
	var loans []*BorrowDetails
	err := d.db.Select(&loans, borrowDetailsQuery+` WHERE br.user_id=? ORDER BY br.borrow_date DESC, br.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// GetActiveBorrows returns loans that are still out, oldest due first.
func (d *Database) GetActiveBorrows() ([]*BorrowDetails, error) {
	var loans []*BorrowDetails
	err := d.db.Select(&loans, borrowDetailsQuery+` WHERE br.status IN (?,?) ORDER BY br.due_date, br.id`, StatusActive, StatusOverdue)
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// GetOverdueBorrows returns loans already marked overdue by the sweep.
func (d *Database) GetOverdueBorrows() ([]*BorrowDetails, error) {
	var loans []*BorrowDetails
	err := d.db.Select(&loans, borrowDetailsQuery+` WHERE br.status=? ORDER BY br.due_date, br.id`, StatusOverdue)
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

// CreateNotification records a message for a member.
func (d *Database) CreateNotification(userID string, borrowID *int64, kind, message string) error {
	_, err := d.db.Exec(`INSERT INTO notifications(user_id,borrow_id,kind,message,created_at) VALUES(?,?,?,?,?)`,
		userID, borrowID, kind, message, d.now().UTC())
	return err
}

// GetNotifications returns a member's notifications, newest first.
func (d *Database) GetNotifications(userID string) ([]*Notification, error) {
	var ns []*Notification
	err := d.db.Select(&ns, `SELECT id,user_id,borrow_id,kind,message,is_read,created_at FROM notifications WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return ns, nil
}

// MarkNotificationRead flags a notification as read.
func (d *Database) MarkNotificationRead(id int64) error {
	res, err := d.db.Exec(`UPDATE notifications SET is_read=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("notification %d not found", id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reviews & bookmarks
// ---------------------------------------------------------------------------

// AddReview records a member's rating of a book, one per member per book.
func (d *Database) AddReview(bookID int64, userID string, rating int, comment string) (int64, error) {
	if rating < 1 || rating > 5 {
		return 0, fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	if _, err := d.GetBook(bookID); err != nil {
		return 0, err
	}
	if _, err := d.GetUser(userID); err != nil {
		return 0, err
	}
	res, err := d.db.Exec(`INSERT INTO reviews(book_id,user_id,rating,comment,created_at) VALUES(?,?,?,?,?)`,
		bookID, userID, rating, comment, d.now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, ErrDuplicateReview
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetBookReviews returns reviews of a book, newest first.
func (d *Database) GetBookReviews(bookID int64) ([]*Review, error) {
	var rs []*Review
	err := d.db.Select(&rs, `SELECT id,book_id,user_id,rating,comment,created_at FROM reviews WHERE book_id=? ORDER BY created_at DESC, id DESC`, bookID)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// AddBookmark marks a book for a member.
func (d *Database) AddBookmark(userID string, bookID int64) error {
	if _, err := d.GetBook(bookID); err != nil {
		return err
	}
	if _, err := d.GetUser(userID); err != nil {
		return err
	}
	_, err := d.db.Exec(`INSERT INTO bookmarks(user_id,book_id,created_at) VALUES(?,?,?)`, userID, bookID, d.now().UTC())
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateBookmark
	}
	return err
}

// RemoveBookmark deletes a member's bookmark.
func (d *Database) RemoveBookmark(userID string, bookID int64) error {
	res, err := d.db.Exec(`DELETE FROM bookmarks WHERE user_id=? AND book_id=?`, userID, bookID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookmarkNotFound
	}
	return nil
}

// GetUserBookmarks returns the books a member has marked, oldest first.
func (d *Database) GetUserBookmarks(userID string) ([]*Book, error) {
	var books []*Book
	err := d.db.Select(&books, `
        SELECT b.id, b.title, b.author, b.total_copies, b.available_copies
        FROM bookmarks bm
        JOIN books b ON b.id = bm.book_id
        WHERE bm.user_id = ?
        ORDER BY bm.created_at, bm.id`, userID)
	if err != nil {
		return nil, err
	}
	return books, nil
}
