package main

import (
	"fmt"
	"os"

	"github.com/nurdamiron/narxoz-library-backend-sub000/library"
)

const dbFile = "library.db"

func main() {
	// Clean up any existing database files
	fmt.Println("Cleaning up existing database files...")
	dbFiles := []string{dbFile, dbFile + "-shm", dbFile + "-wal"}
	for _, file := range dbFiles {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			fmt.Printf("Warning: Could not remove %s: %v\n", file, err)
		}
	}

	mgr, err := library.NewLibraryManager(dbFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating database: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	books := []struct {
		title  string
		author string
		copies int
	}{
		{"1984", "George Orwell", 3},
		{"Animal Farm", "George Orwell", 2},
		{"The Art of War", "Sun Tzu", 1},
		{"The Fellowship of the Ring", "J.R.R. Tolkien", 2},
		{"The Two Towers", "J.R.R. Tolkien", 2},
		{"The Return of the King", "J.R.R. Tolkien", 2},
		{"Romeo and Juliet", "William Shakespeare", 4},
		{"The Three Musketeers", "Alexandre Dumas", 1},
		{"Abai Zholy", "Mukhtar Auezov", 5},
		{"Clean Code", "Robert C. Martin", 2},
	}

	added := 0
	for _, b := range books {
		if _, err := mgr.AddBook(b.title, b.author, b.copies); err != nil {
			fmt.Fprintf(os.Stderr, "Error adding %q: %v\n", b.title, err)
			continue
		}
		added++
	}
	fmt.Printf("Imported %d books.\n", added)

	members := []struct {
		name string
		role library.Role
	}{
		{"Aigerim Bekova", library.RoleStudent},
		{"Daniyar Akhmetov", library.RoleStudent},
		{"Professor Satpayev", library.RoleTeacher},
		{"Head Librarian", library.RoleLibrarian},
		{"System Admin", library.RoleAdmin},
	}

	for _, m := range members {
		user, err := mgr.AddUser(m.name, "changeme", m.role)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error adding member %q: %v\n", m.name, err)
			continue
		}
		fmt.Printf("Registered %s (%s): %s\n", user.Name, user.Role, user.ID)
	}

	fmt.Println("Seeding complete. Default member password is \"changeme\".")
}
