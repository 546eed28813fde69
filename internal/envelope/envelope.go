package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"wiselib/api/internal/models"
)

const (
	RoleAdministrator = "Administrator"
	RoleStudent       = "Student"

	BookMarker = "BOOK"
)

type Settings struct {
	SystemID   string
	AdminTag   string
	StudentTag string
}

func DefaultSettings() Settings {
	return Settings{
		SystemID:   "LIBRARY",
		AdminTag:   "ORG-TAG-ADMIN",
		StudentTag: "ORG-TAG-STUDENT",
	}
}

func (s Settings) TagFor(t models.UserType) string {
	if t == models.UserTypeAdmin {
		return s.AdminTag
	}
	return s.StudentTag
}

func RoleFor(t models.UserType) string {
	if t == models.UserTypeAdmin {
		return RoleAdministrator
	}
	return RoleStudent
}

// UserEnvelope is the identity claim encoded into a user's QR badge.
type UserEnvelope struct {
	FullName          string          `json:"fullName"`
	UserID            string          `json:"userId"`
	UserType          models.UserType `json:"userType"`
	SystemID          string          `json:"systemId"`
	SystemTag         string          `json:"systemTag"`
	Timestamp         int64           `json:"timestamp"`
	BearerToken       string          `json:"bearerToken"`
	Role              string          `json:"role"`
	TwoFactorSetupKey string          `json:"twoFactorSetupKey,omitempty"`

	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	Course     string `json:"course,omitempty"`
	Year       string `json:"year,omitempty"`
	Section    string `json:"section,omitempty"`
}

// BookEnvelope is the payload printed on book labels.
type BookEnvelope struct {
	Type     string `json:"t"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`
	ISBN     string `json:"isbn"`
}

func NewBookEnvelope(book models.Book) BookEnvelope {
	return BookEnvelope{
		Type:     BookMarker,
		ID:       book.ID,
		Title:    book.Title,
		Author:   book.Author,
		Category: book.Category,
		ISBN:     book.ISBN,
	}
}

func BearerToken(userID string, timestamp int64) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s-%d", userID, timestamp)))
}

func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(data), nil
}

type Variant int

const (
	VariantUnknown Variant = iota
	VariantUser
	VariantBook
)

func (v Variant) String() string {
	switch v {
	case VariantUser:
		return "user"
	case VariantBook:
		return "book"
	default:
		return "unknown"
	}
}

// Detect tells user badges from book labels without validating either.
func Detect(raw string) Variant {
	w, err := decodeWire(raw)
	if err != nil {
		return VariantUnknown
	}
	switch {
	case w.is("t", BookMarker):
		return VariantBook
	case w.present("userId"):
		return VariantUser
	default:
		return VariantUnknown
	}
}

func ParseBook(raw string) (BookEnvelope, error) {
	var env BookEnvelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &env); err != nil {
		return BookEnvelope{}, &ValidationError{Kind: ErrMalformedEnvelope, Err: err}
	}
	if env.Type != BookMarker {
		return BookEnvelope{}, fail(ErrMalformedEnvelope)
	}
	if env.ID == "" {
		return BookEnvelope{}, &ValidationError{Kind: ErrIncompleteEnvelope, Missing: []string{"id"}}
	}
	return env, nil
}
