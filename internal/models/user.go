package models

import (
	"regexp"
	"strings"
	"time"
)

type UserType string

const (
	UserTypeAdmin   UserType = "admin"
	UserTypeStudent UserType = "student"
)

func (t UserType) Valid() bool {
	return t == UserTypeAdmin || t == UserTypeStudent
}

var (
	studentIDPattern = regexp.MustCompile(`^KC-\d{2}-[A-D]-\d{5}$`)
	adminIDPattern   = regexp.MustCompile(`^KCL-\d{5}$`)
)

// ValidID reports whether id has the format issued for this user type.
func (t UserType) ValidID(id string) bool {
	switch t {
	case UserTypeStudent:
		return studentIDPattern.MatchString(id)
	case UserTypeAdmin:
		return adminIDPattern.MatchString(id)
	}
	return false
}

// ComposeFullName joins the name parts the way badges print them.
func ComposeFullName(first, middle, last, suffix string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{first, middle, last, suffix} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type User struct {
	ID         string
	FirstName  string
	MiddleName string
	LastName   string
	Suffix     string
	FullName   string
	Email      string
	Type       UserType

	// student
	Course    string
	YearLevel string
	Section   string

	// admin
	Department string
	Position   string

	Phone     string
	Address   string
	Gender    string
	Birthdate string

	PasswordHash     []byte
	TwoFactorEnabled bool
	TwoFactorKey     string

	QRCodeData        string
	QRCodeGeneratedAt *time.Time
	QRCodeActive      bool

	IsActive  bool
	AvatarKey string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Session struct {
	ID               string
	UserID           string
	DeviceID         string
	DeviceName       string
	RefreshTokenHash []byte
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	LastSeenAt       time.Time
	ExpiresAt        time.Time
}

type LoginMethod string

const (
	LoginMethodManual  LoginMethod = "MANUAL"
	LoginMethodQR      LoginMethod = "QR_CODE"
	LoginMethodQRTwoFA LoginMethod = "QR_CODE_2FA"
	LoginMethodKioskQR LoginMethod = "KIOSK_QR"
	LoginMethodKioskID LoginMethod = "KIOSK_MANUAL"
)

type LoginRecord struct {
	ID           string
	UserID       string
	Method       LoginMethod
	Success      bool
	IPAddress    string
	UserAgent    string
	ErrorMessage string
	CreatedAt    time.Time
}
