package handlers

import (
	"time"

	"wiselib/api/internal/models"
	"wiselib/api/internal/service"
)

type userResponse struct {
	ID                string     `json:"id"`
	Type              string     `json:"userType"`
	FirstName         string     `json:"firstName"`
	MiddleName        string     `json:"middleName,omitempty"`
	LastName          string     `json:"lastName"`
	Suffix            string     `json:"suffix,omitempty"`
	FullName          string     `json:"fullName"`
	Email             string     `json:"email"`
	Course            string     `json:"course,omitempty"`
	YearLevel         string     `json:"yearLevel,omitempty"`
	Section           string     `json:"section,omitempty"`
	Department        string     `json:"department,omitempty"`
	Position          string     `json:"position,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	Address           string     `json:"address,omitempty"`
	Gender            string     `json:"gender,omitempty"`
	Birthdate         string     `json:"birthdate,omitempty"`
	TwoFactorEnabled  bool       `json:"twoFactorEnabled"`
	QRCodeActive      bool       `json:"qrCodeActive"`
	QRCodeGeneratedAt *time.Time `json:"qrCodeGeneratedAt,omitempty"`
	IsActive          bool       `json:"isActive"`
	HasAvatar         bool       `json:"hasAvatar"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:                u.ID,
		Type:              string(u.Type),
		FirstName:         u.FirstName,
		MiddleName:        u.MiddleName,
		LastName:          u.LastName,
		Suffix:            u.Suffix,
		FullName:          u.FullName,
		Email:             u.Email,
		Course:            u.Course,
		YearLevel:         u.YearLevel,
		Section:           u.Section,
		Department:        u.Department,
		Position:          u.Position,
		Phone:             u.Phone,
		Address:           u.Address,
		Gender:            u.Gender,
		Birthdate:         u.Birthdate,
		TwoFactorEnabled:  u.TwoFactorEnabled,
		QRCodeActive:      u.QRCodeActive,
		QRCodeGeneratedAt: u.QRCodeGeneratedAt,
		IsActive:          u.IsActive,
		HasAvatar:         u.AvatarKey != "",
		CreatedAt:         u.CreatedAt,
	}
}

type authResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	DeviceID     string       `json:"deviceId"`
	Method       string       `json:"loginMethod"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	User         userResponse `json:"user"`
}

func newAuthResponse(res service.AuthResult) authResponse {
	return authResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		DeviceID:     res.DeviceID,
		Method:       string(res.Method),
		ExpiresAt:    res.ExpiresAt,
		User:         newUserResponse(res.User),
	}
}

type sessionResponse struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	Current    bool      `json:"current"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type loginRecordResponse struct {
	Method    string    `json:"method"`
	Success   bool      `json:"success"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type activityResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func newActivityResponses(items []models.Activity) []activityResponse {
	out := make([]activityResponse, 0, len(items))
	for _, a := range items {
		out = append(out, activityResponse{ID: a.ID, UserID: a.UserID, Action: string(a.Action), Details: a.Details, CreatedAt: a.CreatedAt})
	}
	return out
}

type bookResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Category  string    `json:"category"`
	ISBN      string    `json:"isbn"`
	Shelf     string    `json:"shelf"`
	Copies    int       `json:"copies"`
	Available int       `json:"available"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func newBookResponse(b models.Book) bookResponse {
	return bookResponse{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		Category:  b.Category,
		ISBN:      b.ISBN,
		Shelf:     b.Shelf,
		Copies:    b.Copies,
		Available: b.Available,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt,
	}
}

type loanResponse struct {
	ID           string     `json:"id"`
	BookID       string     `json:"bookId"`
	BookTitle    string     `json:"bookTitle"`
	StudentID    string     `json:"studentId"`
	Location     string     `json:"location"`
	Status       string     `json:"status"`
	BorrowedAt   time.Time  `json:"borrowedAt"`
	DueAt        time.Time  `json:"dueAt"`
	ReturnedAt   *time.Time `json:"returnedAt,omitempty"`
	IsOverdue    bool       `json:"isOverdue"`
	BusinessDays int        `json:"businessDays"`
	CalendarDays int        `json:"calendarDays"`
	Fine         int        `json:"fine"`
	Message      string     `json:"message"`
}

func newLoanResponse(l service.Loan) loanResponse {
	r := l.Record
	return loanResponse{
		ID:           r.ID,
		BookID:       r.BookID,
		BookTitle:    r.BookTitle,
		StudentID:    r.StudentID,
		Location:     string(r.Location),
		Status:       string(r.Status),
		BorrowedAt:   r.BorrowedAt,
		DueAt:        r.DueAt,
		ReturnedAt:   r.ReturnedAt,
		IsOverdue:    l.Overdue.IsOverdue,
		BusinessDays: l.Overdue.BusinessDays,
		CalendarDays: l.Overdue.CalendarDays,
		Fine:         l.Overdue.Fine,
		Message:      l.Message,
	}
}

type reservationResponse struct {
	ID          string    `json:"id"`
	BookID      string    `json:"bookId"`
	BookTitle   string    `json:"bookTitle"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newReservationResponse(r models.Reservation) reservationResponse {
	return reservationResponse{
		ID:          r.ID,
		BookID:      r.BookID,
		BookTitle:   r.BookTitle,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		CreatedAt:   r.CreatedAt,
	}
}

type librarySessionResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	UserType    string     `json:"userType"`
	FullName    string     `json:"fullName"`
	Method      string     `json:"loginMethod"`
	Status      string     `json:"status"`
	ActionCount int        `json:"actionCount"`
	EnteredAt   time.Time  `json:"enteredAt"`
	ExitedAt    *time.Time `json:"exitedAt,omitempty"`
}

func newLibrarySessionResponse(s models.LibrarySession) librarySessionResponse {
	return librarySessionResponse{
		ID:          s.ID,
		UserID:      s.UserID,
		UserType:    string(s.UserType),
		FullName:    s.FullName,
		Method:      string(s.Method),
		Status:      string(s.Status),
		ActionCount: s.ActionCount,
		EnteredAt:   s.EnteredAt,
		ExitedAt:    s.ExitedAt,
	}
}

func newLibrarySessionResponses(items []models.LibrarySession) []librarySessionResponse {
	out := make([]librarySessionResponse, 0, len(items))
	for _, s := range items {
		out = append(out, newLibrarySessionResponse(s))
	}
	return out
}
