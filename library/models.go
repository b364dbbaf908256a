package library

import "time"

// Role classifies a member for loan-policy purposes. The role decides how
// many concurrent loans a member may hold and how long a loan runs.
type Role string

const (
	RoleStudent   Role = "student"
	RoleTeacher   Role = "teacher"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleLibrarian, RoleAdmin:
		return true
	}
	return false
}

// Privileged reports whether the role may act on loans held by other members.
func (r Role) Privileged() bool {
	return r == RoleLibrarian || r == RoleAdmin
}

// Book represents a title in the catalog together with its copy counters.
// available_copies is only ever moved by circulation operations; the catalog
// side adjusts total_copies.
type Book struct {
	ID              int64  `db:"id" json:"id"`
	Title           string `db:"title" json:"title"`
	Author          string `db:"author" json:"author"`
	TotalCopies     int    `db:"total_copies" json:"total_copies"`
	AvailableCopies int    `db:"available_copies" json:"available_copies"`
}

// User represents a registered library member.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Role         Role      `db:"role" json:"role"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// BorrowStatus is the state of a loan.
type BorrowStatus string

const (
	StatusActive   BorrowStatus = "active"
	StatusReturned BorrowStatus = "returned"
	StatusOverdue  BorrowStatus = "overdue"
)

// borrowTransitions is the single transition table for the loan state
// machine. Returns and the overdue sweep both consult it; no other place
// decides whether a status change is legal.
var borrowTransitions = map[BorrowStatus][]BorrowStatus{
	StatusActive:   {StatusReturned, StatusOverdue},
	StatusOverdue:  {StatusReturned},
	StatusReturned: {},
}

// CanTransition reports whether a loan in status s may move to status to.
func (s BorrowStatus) CanTransition(to BorrowStatus) bool {
	for _, next := range borrowTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Borrow is one physical loan of a book to a member.
type Borrow struct {
	ID             int64        `db:"id" json:"id"`
	UserID         string       `db:"user_id" json:"user_id"`
	BookID         int64        `db:"book_id" json:"book_id"`
	BorrowDate     time.Time    `db:"borrow_date" json:"borrow_date"`
	DueDate        time.Time    `db:"due_date" json:"due_date"`
	ReturnDate     *time.Time   `db:"return_date" json:"return_date,omitempty"`
	Status         BorrowStatus `db:"status" json:"status"`
	ExtensionCount int          `db:"extension_count" json:"extension_count"`
}

// BorrowDetails is a Borrow joined with display fields from books and users.
type BorrowDetails struct {
	Borrow
	BookTitle  string `db:"book_title" json:"book_title"`
	BookAuthor string `db:"book_author" json:"book_author"`
	UserName   string `db:"user_name" json:"user_name"`
}

// Notification kinds.
const (
	NotificationOverdue = "overdue"
	NotificationInfo    = "info"
)

// Notification is a message for a member, optionally tied to a loan.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	BorrowID  *int64    `db:"borrow_id" json:"borrow_id,omitempty"`
	Kind      string    `db:"kind" json:"kind"`
	Message   string    `db:"message" json:"message"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Review is a member's rating of a book, one per member per book.
type Review struct {
	ID        int64     `db:"id" json:"id"`
	BookID    int64     `db:"book_id" json:"book_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Bookmark marks a book a member wants to find again later.
type Bookmark struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	BookID    int64     `db:"book_id" json:"book_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
