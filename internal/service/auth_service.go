package service

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wiselib/api/internal/cache"
	"wiselib/api/internal/config"
	"wiselib/api/internal/envelope"
	"wiselib/api/internal/ids"
	"wiselib/api/internal/metrics"
	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
	"wiselib/api/internal/security"
)

const (
	maxResetAttempts = 5
	totpSetupTTL     = 10 * time.Minute
)

type badgeIssuer interface {
	Issue(ctx context.Context, user models.User) (QRCode, error)
	Verify(ctx context.Context, payload string) (ScanResult, error)
}

type AuthService struct {
	users     userStore
	sessions  sessionStore
	logins    loginStore
	badges    badgeIssuer
	cache     *cache.Store
	directory directory
	activity  *ActivityService
	notifier  *NotificationService
	metrics   *metrics.Collector
	cfg       *config.AppConfig
	log       zerolog.Logger
	now       func() time.Time
}

func NewAuthService(
	users userStore,
	sessions sessionStore,
	logins loginStore,
	badges badgeIssuer,
	store *cache.Store,
	dir directory,
	activity *ActivityService,
	notifier *NotificationService,
	m *metrics.Collector,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		logins:    logins,
		badges:    badges,
		cache:     store,
		directory: dir,
		activity:  activity,
		notifier:  notifier,
		metrics:   m,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

type RegisterInput struct {
	ID         string
	Type       models.UserType
	FirstName  string
	MiddleName string
	LastName   string
	Suffix     string
	Email      string
	Password   string
	Course     string
	YearLevel  string
	Section    string
	Department string
	Position   string
	Phone      string
	Address    string
	Gender     string
	Birthdate  string
}

type RegisterResult struct {
	User models.User
	// QR is nil when the badge could not be issued; it can be generated later.
	QR *QRCode
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	input.ID = strings.ToUpper(strings.TrimSpace(input.ID))
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))

	if !input.Type.Valid() {
		return RegisterResult{}, fmt.Errorf("%w: user type must be admin or student", ErrInvalidInput)
	}
	if !input.Type.ValidID(input.ID) {
		return RegisterResult{}, fmt.Errorf("%w: id %q does not match the %s format", ErrInvalidInput, input.ID, input.Type)
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return RegisterResult{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return RegisterResult{}, fmt.Errorf("%w: first and last name required", ErrInvalidInput)
	}
	if len(input.Password) < security.MinPasswordLength {
		return RegisterResult{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, security.MinPasswordLength)
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	user := models.User{
		ID:           input.ID,
		FirstName:    strings.TrimSpace(input.FirstName),
		MiddleName:   strings.TrimSpace(input.MiddleName),
		LastName:     strings.TrimSpace(input.LastName),
		Suffix:       strings.TrimSpace(input.Suffix),
		Email:        input.Email,
		Type:         input.Type,
		Phone:        input.Phone,
		Address:      input.Address,
		Gender:       input.Gender,
		Birthdate:    input.Birthdate,
		PasswordHash: hash,
		QRCodeActive: true,
		IsActive:     true,
	}
	user.FullName = models.ComposeFullName(user.FirstName, user.MiddleName, user.LastName, user.Suffix)
	if user.Type == models.UserTypeStudent {
		user.Course, user.YearLevel, user.Section = input.Course, input.YearLevel, input.Section
	} else {
		user.Department, user.Position = input.Department, input.Position
	}

	if err := s.users.Create(ctx, user); err != nil {
		return RegisterResult{}, err
	}

	result := RegisterResult{User: user}
	if s.badges != nil {
		code, err := s.badges.Issue(ctx, user)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("issue badge at registration failed")
		} else {
			result.QR = &code
			result.User.QRCodeData = code.Payload
			result.User.QRCodeGeneratedAt = &code.GeneratedAt
		}
	}

	s.sync(ctx, "register", user)

	event := EventStudentRegistered
	if user.Type == models.UserTypeAdmin {
		event = EventAdminRegistered
	}
	vars := map[string]string{"userId": user.ID, "fullName": user.FullName}
	s.notifier.Inform(ctx, NotifyInput{Receiver: models.AdminReceiver, Event: event, Vars: vars})
	s.notifier.Inform(ctx, NotifyInput{Receiver: user.ID, Event: EventWelcome, Vars: vars})

	s.log.Info().Str("user_id", user.ID).Str("user_type", string(user.Type)).Msg("user registered")
	return result, nil
}

type LoginInput struct {
	Login      string
	Password   string
	TOTPCode   string
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
	DeviceID     string
	SessionID    string
	Method       models.LoginMethod
	ExpiresAt    time.Time
}

// Login authenticates with a user id or email and a password.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	login := strings.TrimSpace(input.Login)
	method := models.LoginMethodManual

	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.recordLogin(ctx, login, method, input, ErrInvalidCredentials)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		s.recordLogin(ctx, user.ID, method, input, ErrInvalidCredentials)
		return AuthResult{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.recordLogin(ctx, user.ID, method, input, ErrUserInactive)
		return AuthResult{}, ErrUserInactive
	}
	if user.TwoFactorEnabled {
		if err := s.checkTOTP(user, input.TOTPCode); err != nil {
			s.recordLogin(ctx, user.ID, method, input, err)
			return AuthResult{}, err
		}
	}

	return s.completeLogin(ctx, user, method, input)
}

type QRLoginInput struct {
	Payload    string
	TOTPCode   string
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

// LoginWithQR authenticates with a scanned badge. The second factor is only
// asked for when configured and enabled on the account.
func (s *AuthService) LoginWithQR(ctx context.Context, input QRLoginInput) (AuthResult, error) {
	meta := LoginInput{DeviceID: input.DeviceID, DeviceName: input.DeviceName, IPAddress: input.IPAddress, UserAgent: input.UserAgent}
	method := models.LoginMethodQR

	scan, err := s.badges.Verify(ctx, input.Payload)
	if err != nil {
		s.recordLogin(ctx, "", method, meta, err)
		return AuthResult{}, err
	}
	if scan.Variant != envelope.VariantUser {
		err := fmt.Errorf("%w: book codes cannot be used to sign in", ErrInvalidInput)
		s.recordLogin(ctx, "", method, meta, err)
		return AuthResult{}, err
	}

	user := scan.User
	if s.cfg.Security.QRLoginTwoFactor && user.TwoFactorEnabled {
		method = models.LoginMethodQRTwoFA
		if err := s.checkTOTP(user, input.TOTPCode); err != nil {
			s.recordLogin(ctx, user.ID, method, meta, err)
			return AuthResult{}, err
		}
	}
	return s.completeLogin(ctx, user, method, meta)
}

func (s *AuthService) checkTOTP(user models.User, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrTwoFactorRequired
	}
	if !security.ValidateTOTP(code, user.TwoFactorKey) {
		return ErrInvalidTwoFactor
	}
	return nil
}

func (s *AuthService) completeLogin(ctx context.Context, user models.User, method models.LoginMethod, input LoginInput) (AuthResult, error) {
	deviceID := input.DeviceID
	if deviceID == "" {
		deviceID = ids.New()
	}
	deviceName := input.DeviceName
	if deviceName == "" {
		deviceName = "Unknown Device"
	}

	result, err := s.createSession(ctx, user, method, deviceID, deviceName, input.IPAddress, input.UserAgent)
	if err != nil {
		return AuthResult{}, err
	}
	s.recordLogin(ctx, user.ID, method, input, nil)
	s.activity.Record(ctx, user.ID, models.ActivityLogin, string(method))
	return result, nil
}

func (s *AuthService) recordLogin(ctx context.Context, userID string, method models.LoginMethod, input LoginInput, loginErr error) {
	s.metrics.RecordLogin(string(method), loginErr == nil)

	rec := models.LoginRecord{
		ID:        ids.New(),
		UserID:    userID,
		Method:    method,
		Success:   loginErr == nil,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		CreatedAt: s.now(),
	}
	if loginErr != nil {
		rec.ErrorMessage = loginErr.Error()
	}
	if err := s.logins.Create(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("record login attempt failed")
	}

	ev := s.log.Info()
	if loginErr != nil {
		ev = s.log.Warn().Err(loginErr)
	}
	ev.Str("user_id", userID).Str("method", string(method)).Msg("login attempt")
}

func (s *AuthService) createSession(
	ctx context.Context,
	user models.User,
	method models.LoginMethod,
	deviceID string,
	deviceName string,
	ipAddress string,
	userAgent string,
) (AuthResult, error) {
	refreshToken, refreshHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now()
	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		DeviceID:         deviceID,
		DeviceName:       deviceName,
		RefreshTokenHash: refreshHash,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		CreatedAt:        now,
		LastSeenAt:       now,
		ExpiresAt:        now.Add(s.cfg.Security.JWTRefreshTTL),
	}

	accessToken, err := s.accessToken(user, session, method)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.sessions.Upsert(ctx, session); err != nil {
		return AuthResult{}, err
	}
	if err := s.sessions.Trim(ctx, user.ID, s.cfg.Security.MaxSessions); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		DeviceID:     deviceID,
		SessionID:    session.ID,
		Method:       method,
		ExpiresAt:    now.Add(s.cfg.Security.JWTAccessTTL),
	}, nil
}

func (s *AuthService) accessToken(user models.User, session models.Session, method models.LoginMethod) (string, error) {
	return security.GenerateAccessToken(s.cfg.Security.JWTAccessSecret, security.AccessTokenInput{
		UserID:    user.ID,
		SessionID: session.ID,
		DeviceID:  session.DeviceID,
		UserType:  string(user.Type),
		Method:    string(method),
		TTL:       s.cfg.Security.JWTAccessTTL,
	})
}

type RefreshInput struct {
	UserID       string
	RefreshToken string
	DeviceID     string
}

func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (AuthResult, error) {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if !user.IsActive {
		return AuthResult{}, ErrUserInactive
	}

	session, err := s.sessions.FindByRefreshHash(ctx, input.UserID, security.HashRefreshToken(input.RefreshToken))
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	if session.DeviceID != input.DeviceID {
		return AuthResult{}, ErrInvalidCredentials
	}
	now := s.now()
	if session.ExpiresAt.Before(now) {
		_ = s.sessions.DeleteByID(ctx, session.ID)
		return AuthResult{}, ErrInvalidCredentials
	}

	refreshToken, newHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, err
	}
	session.RefreshTokenHash = newHash
	session.LastSeenAt = now
	session.ExpiresAt = now.Add(s.cfg.Security.JWTRefreshTTL)
	if err := s.sessions.Upsert(ctx, session); err != nil {
		return AuthResult{}, err
	}

	accessToken, err := s.accessToken(user, session, models.LoginMethodManual)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		DeviceID:     session.DeviceID,
		SessionID:    session.ID,
		Method:       models.LoginMethodManual,
		ExpiresAt:    now.Add(s.cfg.Security.JWTAccessTTL),
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID string, deviceID string) error {
	if err := s.sessions.DeleteByDevice(ctx, userID, deviceID); err != nil {
		return err
	}
	s.activity.Record(ctx, userID, models.ActivityLogout, "")
	return nil
}

func (s *AuthService) Sessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

func (s *AuthService) LoginHistory(ctx context.Context, userID string, limit int) ([]models.LoginRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	return s.logins.List(ctx, userID, limit)
}

// ChangePassword replaces the password and signs out every other session.
func (s *AuthService) ChangePassword(ctx context.Context, userID, sessionID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := security.VerifyPassword(current, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	if err := s.setPassword(ctx, user, next); err != nil {
		return err
	}
	if err := s.sessions.DeleteByUser(ctx, userID, sessionID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("revoke other sessions failed")
	}

	s.activity.Record(ctx, userID, models.ActivityPasswordChange, "")
	s.notifier.Inform(ctx, NotifyInput{
		Receiver: userID,
		Event:    EventPasswordChanged,
		Vars:     map[string]string{"userId": user.ID, "fullName": user.FullName},
	})
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, user models.User, password string) error {
	if len(password) < security.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, security.MinPasswordLength)
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}

type ResetMethod string

const (
	ResetByEmail ResetMethod = "email"
	ResetByAdmin ResetMethod = "admin"
)

type resetEntry struct {
	Hash      string    `json:"hash"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func resetKey(userID string) string {
	return "reset:" + userID
}

// RequestPasswordReset issues a six digit code valid for the configured TTL.
// The code goes to the user's inbox, or to the admins when they are asked to
// relay it. Unknown accounts are not reported to the caller.
func (s *AuthService) RequestPasswordReset(ctx context.Context, login string, method ResetMethod) error {
	user, err := s.users.FindByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.log.Info().Str("login", login).Msg("password reset for unknown account")
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	code, err := security.GenerateResetCode()
	if err != nil {
		return err
	}
	ttl := s.cfg.Security.ResetCodeTTL
	entry := resetEntry{
		Hash:      security.HashResetCode(s.cfg.Security.SignatureSecret, user.ID, code),
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.cache.SetJSON(ctx, resetKey(user.ID), entry, ttl); err != nil {
		return err
	}

	minutes := strconv.Itoa(int(ttl.Minutes()))
	vars := map[string]string{"userId": user.ID, "fullName": user.FullName, "code": code, "minutes": minutes}
	switch method {
	case ResetByAdmin:
		s.notifier.Inform(ctx, NotifyInput{
			Receiver:       models.AdminReceiver,
			Event:          EventPasswordResetRequest,
			Vars:           vars,
			ActionRequired: true,
			Meta: map[string]string{
				"requesterId":    user.ID,
				"requesterName":  user.FullName,
				"requesterEmail": user.Email,
				"code":           code,
			},
		})
	default:
		s.notifier.Inform(ctx, NotifyInput{Receiver: user.ID, Event: EventPasswordResetCode, Vars: vars})
		if s.directory != nil {
			if res := s.directory.SyncPasswordReset(ctx, user.ID); res.Attempted && !res.OK {
				s.log.Warn().Str("user_id", user.ID).Str("sync", res.String()).Msg("directory reset notice failed")
			}
		}
	}
	return nil
}

// VerifyResetCode checks a code without consuming it.
func (s *AuthService) VerifyResetCode(ctx context.Context, login, code string) error {
	user, err := s.users.FindByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidResetCode
		}
		return err
	}
	return s.checkResetCode(ctx, user.ID, code)
}

func (s *AuthService) ResetPassword(ctx context.Context, login, code, password string) error {
	user, err := s.users.FindByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidResetCode
		}
		return err
	}
	if err := s.checkResetCode(ctx, user.ID, code); err != nil {
		return err
	}
	if err := s.setPassword(ctx, user, password); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, resetKey(user.ID)); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("clear reset code failed")
	}
	if err := s.sessions.DeleteByUser(ctx, user.ID, ""); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("revoke sessions after reset failed")
	}

	s.activity.Record(ctx, user.ID, models.ActivityPasswordReset, "")
	s.notifier.Inform(ctx, NotifyInput{
		Receiver: user.ID,
		Event:    EventPasswordReset,
		Vars:     map[string]string{"userId": user.ID, "fullName": user.FullName},
	})
	return nil
}

func (s *AuthService) checkResetCode(ctx context.Context, userID, code string) error {
	var entry resetEntry
	found, err := s.cache.GetJSON(ctx, resetKey(userID), &entry)
	if err != nil {
		return err
	}
	now := s.now()
	if !found || now.After(entry.ExpiresAt) {
		return ErrInvalidResetCode
	}

	want := security.HashResetCode(s.cfg.Security.SignatureSecret, userID, strings.TrimSpace(code))
	if hmac.Equal([]byte(want), []byte(entry.Hash)) {
		return nil
	}

	entry.Attempts++
	if entry.Attempts >= maxResetAttempts {
		_ = s.cache.Delete(ctx, resetKey(userID))
		return ErrInvalidResetCode
	}
	if err := s.cache.SetJSON(ctx, resetKey(userID), entry, entry.ExpiresAt.Sub(now)); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("store reset attempt failed")
	}
	return ErrInvalidResetCode
}

func totpSetupKey(userID string) string {
	return "totp-setup:" + userID
}

// SetupTwoFactor starts enrolment. The secret is kept aside until a valid
// code confirms it.
func (s *AuthService) SetupTwoFactor(ctx context.Context, user models.User) (security.TOTPSetup, error) {
	account := user.Email
	if account == "" {
		account = user.ID
	}
	setup, err := security.GenerateTOTP(s.cfg.Security.TOTPIssuer, account)
	if err != nil {
		return security.TOTPSetup{}, err
	}
	if err := s.cache.SetJSON(ctx, totpSetupKey(user.ID), setup.Secret, totpSetupTTL); err != nil {
		return security.TOTPSetup{}, err
	}
	return setup, nil
}

func (s *AuthService) EnableTwoFactor(ctx context.Context, user models.User, code string) error {
	var secret string
	found, err := s.cache.GetJSON(ctx, totpSetupKey(user.ID), &secret)
	if err != nil {
		return err
	}
	if !found {
		return ErrTwoFactorNotSetUp
	}
	if !security.ValidateTOTP(strings.TrimSpace(code), secret) {
		return ErrInvalidTwoFactor
	}
	if err := s.users.SetTwoFactor(ctx, user.ID, true, secret); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, totpSetupKey(user.ID))

	s.activity.Record(ctx, user.ID, models.ActivityTwoFAEnable, "")
	s.notifier.Inform(ctx, NotifyInput{
		Receiver: user.ID,
		Event:    EventTwoFactorChanged,
		Vars:     map[string]string{"userId": user.ID, "state": "enabled"},
	})
	return nil
}

func (s *AuthService) DisableTwoFactor(ctx context.Context, user models.User, code string) error {
	if !user.TwoFactorEnabled {
		return nil
	}
	if err := s.checkTOTP(user, code); err != nil {
		return err
	}
	if err := s.users.SetTwoFactor(ctx, user.ID, false, ""); err != nil {
		return err
	}

	s.activity.Record(ctx, user.ID, models.ActivityTwoFADisable, "")
	s.notifier.Inform(ctx, NotifyInput{
		Receiver: user.ID,
		Event:    EventTwoFactorChanged,
		Vars:     map[string]string{"userId": user.ID, "state": "disabled"},
	})
	return nil
}

func (s *AuthService) sync(ctx context.Context, op string, user models.User) {
	if s.directory == nil {
		return
	}
	res := s.directory.SyncUser(ctx, user)
	if !res.Attempted {
		return
	}
	ev := s.log.Debug()
	if !res.OK {
		ev = s.log.Warn()
	}
	ev.Str("user_id", user.ID).Str("op", op).Str("sync", res.String()).Msg("directory sync")
}
