package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nurdamiron/narxoz-library-backend-sub000/library"
)

var dbPath string

func defaultDBPath() string {
	if p := os.Getenv("LIBRARY_DB"); p != "" {
		return p
	}
	return "library.db"
}

func openManager() (*library.LibraryManager, error) {
	mgr, err := library.NewLibraryManager(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	return mgr, nil
}

// resolveActor loads the acting member once at the boundary and derives the
// privilege decision from their role; the service only ever sees the result.
func resolveActor(mgr *library.LibraryManager, memberID string) (*library.User, bool, error) {
	if memberID == "" {
		return nil, false, fmt.Errorf("--member is required")
	}
	user, err := mgr.GetUser(memberID)
	if err != nil {
		return nil, false, err
	}
	return user, user.Role.Privileged(), nil
}

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

func printLoan(bd *library.BorrowDetails) {
	returned := "-"
	if bd.ReturnDate != nil {
		returned = bd.ReturnDate.Format("02 Jan 2006")
	}
	fmt.Printf("%-5d %-30s %-20s %-9s due %-12s returned %-12s ext %d\n",
		bd.ID, bd.BookTitle, bd.UserName, bd.Status, bd.DueDate.Format("02 Jan 2006"), returned, bd.ExtensionCount)
}

func newBooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Manage the catalog",
	}

	var title, author string
	var copies int
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a title to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			id, err := mgr.AddBook(title, author, copies)
			if err != nil {
				return err
			}
			fmt.Printf("Added book %d: %s by %s (%d copies)\n", id, title, author, copies)
			return nil
		},
	}
	addCmd.Flags().StringVar(&title, "title", "", "book title")
	addCmd.Flags().StringVar(&author, "author", "", "book author")
	addCmd.Flags().IntVar(&copies, "copies", 1, "number of copies")
	addCmd.MarkFlagRequired("title")
	addCmd.MarkFlagRequired("author")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			books, err := mgr.GetAllBooks()
			if err != nil {
				return err
			}
			fmt.Printf("%-5s %-30s %-25s %-9s %-9s\n", "ID", "TITLE", "AUTHOR", "AVAILABLE", "TOTAL")
			for _, b := range books {
				fmt.Printf("%-5d %-30s %-25s %-9d %-9d\n", b.ID, b.Title, b.Author, b.AvailableCopies, b.TotalCopies)
			}
			return nil
		},
	}

	setCopiesCmd := &cobra.Command{
		Use:   "set-copies <bookID> <total>",
		Short: "Adjust the total copy count of a title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid book id %q", args[0])
			}
			total, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid copy count %q", args[1])
			}

			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := mgr.SetBookCopies(bookID, total); err != nil {
				return err
			}
			fmt.Printf("Book %d now has %d total copies\n", bookID, total)
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, setCopiesCmd)
	return cmd
}

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage members",
	}

	var name, role string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}

			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			user, err := mgr.AddUser(name, password, library.Role(role))
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s (%s) with id %s\n", user.Name, user.Role, user.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "member name")
	addCmd.Flags().StringVar(&role, "role", string(library.RoleStudent), "member role (student, teacher, librarian, admin)")
	addCmd.MarkFlagRequired("name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			users, err := mgr.GetAllUsers()
			if err != nil {
				return err
			}
			fmt.Printf("%-36s %-25s %-10s\n", "ID", "NAME", "ROLE")
			for _, u := range users {
				fmt.Printf("%-36s %-25s %-10s\n", u.ID, u.Name, u.Role)
			}
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

func newBorrowCmd() *cobra.Command {
	var memberID string
	cmd := &cobra.Command{
		Use:   "borrow <bookID>",
		Short: "Issue a book to a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid book id %q", args[0])
			}

			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			user, _, err := resolveActor(mgr, memberID)
			if err != nil {
				return err
			}
			loan, err := mgr.BorrowBook(bookID, user.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Issued %q to %s, due %s (loan %d)\n",
				loan.BookTitle, loan.UserName, loan.DueDate.Format("02 Jan 2006"), loan.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "acting member id")
	return cmd
}

func newReturnCmd() *cobra.Command {
	var memberID string
	cmd := &cobra.Command{
		Use:   "return <loanID>",
		Short: "Take a book back from a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			borrowID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid loan id %q", args[0])
			}

			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			user, privileged, err := resolveActor(mgr, memberID)
			if err != nil {
				return err
			}
			loan, err := mgr.ReturnBook(borrowID, user.ID, privileged)
			if err != nil {
				return err
			}
			fmt.Printf("Returned %q for %s on %s\n",
				loan.BookTitle, loan.UserName, loan.ReturnDate.Format("02 Jan 2006"))
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "acting member id")
	return cmd
}

func newExtendCmd() *cobra.Command {
	var memberID string
	var days int
	cmd := &cobra.Command{
		Use:   "extend <loanID>",
		Short: "Push a loan's due date forward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			borrowID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid loan id %q", args[0])
			}

			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			user, privileged, err := resolveActor(mgr, memberID)
			if err != nil {
				return err
			}
			loan, err := mgr.ExtendBorrow(borrowID, user.ID, days, privileged)
			if err != nil {
				return err
			}
			fmt.Printf("Loan %d now due %s (extension %d)\n",
				loan.ID, loan.DueDate.Format("02 Jan 2006"), loan.ExtensionCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "acting member id")
	cmd.Flags().IntVar(&days, "days", 0, "days to extend (policy default when omitted)")
	return cmd
}

func newLoansCmd() *cobra.Command {
	var memberID string
	var overdueOnly bool
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List loans",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			var loans []*library.BorrowDetails
			switch {
			case memberID != "":
				loans, err = mgr.GetUserBorrows(memberID)
			case overdueOnly:
				loans, err = mgr.GetOverdueBorrows()
			default:
				loans, err = mgr.GetActiveBorrows()
			}
			if err != nil {
				return err
			}
			for _, l := range loans {
				printLoan(l)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "list all loans of this member")
	cmd.Flags().BoolVar(&overdueOnly, "overdue", false, "list only overdue loans")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark loans past their due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			count, err := mgr.SweepOverdue(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("%d loans marked overdue\n", count)
			return nil
		},
	}
}

func newNotificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notifications <memberID>",
		Short: "Show a member's notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ns, err := mgr.GetNotifications(args[0])
			if err != nil {
				return err
			}
			for _, n := range ns {
				read := " "
				if n.IsRead {
					read = "*"
				}
				fmt.Printf("%s [%s] %s %s\n", read, n.Kind, n.CreatedAt.Format("02 Jan 2006"), n.Message)
			}
			return nil
		},
	}
}

func newReviewCmd() *cobra.Command {
	var memberID, comment string
	var rating int
	cmd := &cobra.Command{
		Use:   "review <bookID>",
		Short: "Leave a rating for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid book id %q", args[0])
			}

			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			user, _, err := resolveActor(mgr, memberID)
			if err != nil {
				return err
			}
			if _, err := mgr.AddReview(bookID, user.ID, rating, comment); err != nil {
				return err
			}
			fmt.Printf("Review saved for book %d\n", bookID)
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "acting member id")
	cmd.Flags().IntVar(&rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&comment, "comment", "", "optional comment")
	cmd.MarkFlagRequired("rating")
	return cmd
}

func newBookmarkCmd() *cobra.Command {
	var memberID string
	var remove bool
	cmd := &cobra.Command{
		Use:   "bookmark <bookID>",
		Short: "Bookmark a book (or remove the bookmark)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid book id %q", args[0])
			}

			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			user, _, err := resolveActor(mgr, memberID)
			if err != nil {
				return err
			}
			if remove {
				if err := mgr.RemoveBookmark(user.ID, bookID); err != nil {
					return err
				}
				fmt.Printf("Bookmark removed for book %d\n", bookID)
				return nil
			}
			if err := mgr.AddBookmark(user.ID, bookID); err != nil {
				return err
			}
			fmt.Printf("Book %d bookmarked\n", bookID)
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "acting member id")
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the bookmark instead")
	return cmd
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "narxoz-library",
		Short:         "University library circulation backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "path to the SQLite database")

	rootCmd.AddCommand(
		newBooksCmd(),
		newUsersCmd(),
		newBorrowCmd(),
		newReturnCmd(),
		newExtendCmd(),
		newLoansCmd(),
		newSweepCmd(),
		newNotificationsCmd(),
		newReviewCmd(),
		newBookmarkCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
