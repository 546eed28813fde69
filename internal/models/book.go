package models

import "time"

type BookStatus string

const (
	BookStatusAvailable   BookStatus = "available"
	BookStatusBorrowed    BookStatus = "borrowed"
	BookStatusUnavailable BookStatus = "unavailable"
)

type Book struct {
	ID        string
	Title     string
	Author    string
	Category  string
	ISBN      string
	Shelf     string
	Copies    int
	Available int
	Status    BookStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BorrowStatus string

const (
	BorrowStatusBorrowed BorrowStatus = "borrowed"
	BorrowStatusReturned BorrowStatus = "returned"
	BorrowStatusOverdue  BorrowStatus = "overdue"
)

type BorrowLocation string

const (
	BorrowInside  BorrowLocation = "inside"
	BorrowOutside BorrowLocation = "outside"
)

type BorrowRecord struct {
	ID         string
	BookID     string
	BookTitle  string
	StudentID  string
	Location   BorrowLocation
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
	Status     BorrowStatus
}

type Reservation struct {
	ID          string
	BookID      string
	BookTitle   string
	StudentID   string
	StudentName string
	CreatedAt   time.Time
}
