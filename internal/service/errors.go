package service

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("account is deactivated")
	ErrTwoFactorRequired  = errors.New("two-factor code required")
	ErrInvalidTwoFactor   = errors.New("invalid two-factor code")
	ErrTwoFactorNotSetUp  = errors.New("two-factor setup not started")
	ErrInvalidResetCode   = errors.New("invalid or expired reset code")
	ErrNotStudent         = errors.New("only students can borrow books")
	ErrAlreadyInside      = errors.New("already inside the library")
	ErrNotInside          = errors.New("not inside the library")
	ErrAIUnavailable      = errors.New("assistant unavailable")
)
