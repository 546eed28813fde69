package models

import "time"

type LibrarySessionStatus string

const (
	LibraryInside    LibrarySessionStatus = "inside_library"
	LibraryLoggedOut LibrarySessionStatus = "logged_out"
)

// LibrarySession is one physical visit. Entries take odd action numbers
// and exits the following even number.
type LibrarySession struct {
	ID          string
	UserID      string
	UserType    UserType
	FullName    string
	Method      LoginMethod
	Status      LibrarySessionStatus
	ActionCount int
	EnteredAt   time.Time
	ExitedAt    *time.Time
}

type AIExchange struct {
	ID        string
	UserID    string
	Prompt    string
	Response  string
	Model     string
	CreatedAt time.Time
}
