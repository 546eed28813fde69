package service

import (
	"strings"

	"wiselib/api/internal/models"
)

type Event string

const (
	EventWelcome              Event = "welcome"
	EventStudentRegistered    Event = "student_registered"
	EventAdminRegistered      Event = "admin_registered"
	EventPasswordResetRequest Event = "password_reset_request"
	EventPasswordResetCode    Event = "password_reset_code"
	EventPasswordChanged      Event = "password_changed"
	EventPasswordReset        Event = "password_reset"
	EventTwoFactorChanged     Event = "two_factor_changed"
	EventLibraryEntry         Event = "library_entry"
	EventLibraryExit          Event = "library_exit"
	EventForgottenLogout      Event = "forgotten_logout"
	EventBookReserved         Event = "book_reserved"
	EventBookBorrowed         Event = "book_borrowed"
	EventBookReturned         Event = "book_returned"
	EventBookOverdue          Event = "book_overdue"
	EventQRRegenerated        Event = "qr_regenerated"
)

type template struct {
	title    string
	kind     models.NotificationType
	messages []string
}

var templates = map[Event]template{
	EventWelcome: {"Welcome", models.NotificationSystem, []string{
		"Welcome to the library! Your account {userId} is now active.",
		"Hello! Your library account {userId} has been successfully created.",
		"Great to have you! Account {userId} is ready to use.",
		"Welcome aboard! Your account {userId} is all set.",
	}},
	EventStudentRegistered: {"New student", models.NotificationSystem, []string{
		"New student {userId} ({fullName}) registered successfully at {timestamp}",
		"Student account created: {userId} - {fullName} at {timestamp}",
		"{fullName} ({userId}) joined as a student at {timestamp}",
	}},
	EventAdminRegistered: {"New administrator", models.NotificationSystem, []string{
		"New admin {userId} ({fullName}) registered successfully at {timestamp}",
		"Admin account created: {userId} - {fullName} at {timestamp}",
		"{fullName} ({userId}) joined as an admin at {timestamp}",
	}},
	EventPasswordResetRequest: {"Password reset request", models.NotificationSecurity, []string{
		"Password reset requested for {userId} at {timestamp}",
		"User {userId} has requested a password reset at {timestamp}",
		"{userId} initiated password recovery at {timestamp}",
	}},
	EventPasswordResetCode: {"Password reset code", models.NotificationSecurity, []string{
		"Your password reset code is {code}. It expires in {minutes} minutes.",
		"Use code {code} to reset your password within {minutes} minutes.",
	}},
	EventPasswordChanged: {"Password changed", models.NotificationSecurity, []string{
		"Password changed for {userId} ({fullName}) at {timestamp}",
		"{fullName} ({userId}) updated the account password at {timestamp}",
	}},
	EventPasswordReset: {"Password reset", models.NotificationSecurity, []string{
		"Password reset completed for {userId} at {timestamp}",
		"{fullName} ({userId}) reset the account password at {timestamp}",
	}},
	EventTwoFactorChanged: {"Two-factor authentication", models.NotificationSecurity, []string{
		"Two-factor authentication {state} for {userId} at {timestamp}",
	}},
	EventLibraryEntry: {"Library entry", models.NotificationLibrary, []string{
		"{userId} logged into library using {method} at {timestamp}",
		"Library access: {userId} entered via {method} at {timestamp}",
		"{userId} successfully entered the library ({method}) at {timestamp}",
	}},
	EventLibraryExit: {"Library exit", models.NotificationLibrary, []string{
		"{userId} logged out from library at {timestamp}",
		"Library session ended for {userId} at {timestamp}",
		"{userId} exited library at {timestamp}",
	}},
	EventForgottenLogout: {"Forgotten logout", models.NotificationLibrary, []string{
		"{fullName} ({userId}) has been inside the library since {enteredAt} without logging out",
		"Possible forgotten logout: {userId} entered at {enteredAt} and never exited",
	}},
	EventBookReserved: {"Book reserved", models.NotificationReservation, []string{
		"{userId} reserved '{bookTitle}' ({bookId}) at {timestamp}",
		"Book reservation: '{bookTitle}' ({bookId}) by {userId} at {timestamp}",
		"{userId} placed a hold on '{bookTitle}' ({bookId}) at {timestamp}",
	}},
	EventBookBorrowed: {"Book borrowed", models.NotificationBorrow, []string{
		"{userId} borrowed '{bookTitle}' ({bookId}) at {timestamp}. Due {dueAt}.",
		"Book checked out: '{bookTitle}' ({bookId}) by {userId} at {timestamp}. Due {dueAt}.",
		"{userId} took out '{bookTitle}' ({bookId}) at {timestamp}. Due {dueAt}.",
	}},
	EventBookReturned: {"Book returned", models.NotificationReturn, []string{
		"{userId} returned '{bookTitle}' ({bookId}) at {timestamp}",
		"Book returned: '{bookTitle}' ({bookId}) by {userId} at {timestamp}",
		"{userId} checked in '{bookTitle}' ({bookId}) at {timestamp}",
	}},
	EventBookOverdue: {"Overdue book", models.NotificationOverdue, []string{
		"OVERDUE: {userId} has '{bookTitle}' ({bookId}) overdue since {dueAt}. Fine so far: PHP {fine}.",
		"Book overdue alert: '{bookTitle}' ({bookId}) - {userId} - due {dueAt}. Fine so far: PHP {fine}.",
	}},
	EventQRRegenerated: {"QR code regenerated", models.NotificationSecurity, []string{
		"A new QR code was generated for {userId} at {timestamp}",
	}},
}

// fill replaces every {key} in msg. Unknown placeholders are left as is.
func fill(msg string, vars map[string]string) string {
	if len(vars) == 0 {
		return msg
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
