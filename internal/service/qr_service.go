package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"wiselib/api/internal/config"
	"wiselib/api/internal/envelope"
	"wiselib/api/internal/media/qrcode"
	"wiselib/api/internal/metrics"
	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
	"wiselib/api/internal/security"
	"wiselib/api/internal/storage"
)

type QRCode struct {
	UserID      string
	Payload     string
	Envelope    envelope.UserEnvelope
	PNG         []byte
	GeneratedAt time.Time
}

type BookQRCode struct {
	Payload string
	PNG     []byte
}

// ScanResult is an accepted badge or book code.
type ScanResult struct {
	Variant envelope.Variant
	User    models.User
	Age     time.Duration
	Book    models.Book
}

type QRService struct {
	users     userStore
	books     bookStore
	builder   *envelope.Builder
	validator *envelope.Validator
	objects   objectStore
	bucket    string
	activity  *ActivityService
	notifier  *NotificationService
	metrics   *metrics.Collector
	cfg       *config.AppConfig
	log       zerolog.Logger
	now       func() time.Time
}

func NewQRService(
	users userStore,
	books bookStore,
	builder *envelope.Builder,
	validator *envelope.Validator,
	objects objectStore,
	activity *ActivityService,
	notifier *NotificationService,
	m *metrics.Collector,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *QRService {
	return &QRService{
		users:     users,
		books:     books,
		builder:   builder,
		validator: validator,
		objects:   objects,
		bucket:    cfg.Storage.BucketQR,
		activity:  activity,
		notifier:  notifier,
		metrics:   m,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func qrObjectKey(userID string) string {
	return "users/" + userID + ".png"
}

// Generate issues a fresh envelope for an active user and stores it with its
// PNG rendering.
func (s *QRService) Generate(ctx context.Context, userID string) (QRCode, error) {
	env, err := s.builder.Build(ctx, userID)
	if err != nil {
		return QRCode{}, err
	}
	return s.store(ctx, env)
}

// Issue stores an envelope for an already loaded record regardless of its
// active flag. Registration and the start-up upgrade use it.
func (s *QRService) Issue(ctx context.Context, user models.User) (QRCode, error) {
	return s.store(ctx, s.builder.ForUser(user))
}

// Regenerate is Generate on explicit request; earlier badges stay valid.
func (s *QRService) Regenerate(ctx context.Context, userID string) (QRCode, error) {
	code, err := s.Generate(ctx, userID)
	if err != nil {
		return QRCode{}, err
	}
	s.activity.Record(ctx, userID, models.ActivityQRRegenerate, "")
	s.notifier.Inform(ctx, NotifyInput{
		Receiver: userID,
		Event:    EventQRRegenerated,
		Vars:     map[string]string{"userId": userID},
	})
	return code, nil
}

func (s *QRService) store(ctx context.Context, env envelope.UserEnvelope) (QRCode, error) {
	payload, err := envelope.Encode(env)
	if err != nil {
		return QRCode{}, err
	}
	png, err := qrcode.Render(payload, s.cfg.QR.ImageSize)
	if err != nil {
		return QRCode{}, fmt.Errorf("render qr: %w", err)
	}

	generatedAt := time.UnixMilli(env.Timestamp)
	if err := s.users.SetQRCode(ctx, env.UserID, payload, generatedAt); err != nil {
		return QRCode{}, err
	}
	if s.objects != nil {
		if err := s.objects.Put(ctx, s.bucket, qrObjectKey(env.UserID), png, "image/png"); err != nil {
			// the payload is authoritative, the image is re-rendered on demand
			s.log.Warn().Err(err).Str("user_id", env.UserID).Msg("store qr image failed")
		}
	}

	return QRCode{
		UserID:      env.UserID,
		Payload:     payload,
		Envelope:    env,
		PNG:         png,
		GeneratedAt: generatedAt,
	}, nil
}

// Image returns the stored PNG of a user's current badge.
func (s *QRService) Image(ctx context.Context, userID string) ([]byte, error) {
	if s.objects != nil {
		obj, err := s.objects.Get(ctx, s.bucket, qrObjectKey(userID))
		if err == nil {
			return obj.Data, nil
		}
		if !errors.Is(err, storage.ErrObjectNotFound) {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("load qr image failed")
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.QRCodeData == "" {
		return nil, envelope.ErrRecordNotFound
	}
	return qrcode.Render(user.QRCodeData, s.cfg.QR.ImageSize)
}

// Download is Image plus the activity entry the profile page records.
func (s *QRService) Download(ctx context.Context, userID string) ([]byte, error) {
	png, err := s.Image(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, userID, models.ActivityQRDownload, "")
	return png, nil
}

// ImageLink returns a signed, expiring path to a badge image.
func (s *QRService) ImageLink(userID string, ttl time.Duration) string {
	exp, sig := security.SignObjectLink(s.cfg.Security.SignatureSecret, qrObjectKey(userID), s.now().Add(ttl))
	q := url.Values{"exp": {exp}, "sig": {sig}}
	return "/api/qr/image/" + url.PathEscape(userID) + "?" + q.Encode()
}

func (s *QRService) VerifyImageLink(userID, exp, sig string) bool {
	return security.VerifyObjectLink(s.cfg.Security.SignatureSecret, qrObjectKey(userID), exp, sig, s.now())
}

func (s *QRService) BookCode(ctx context.Context, bookID string) (BookQRCode, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return BookQRCode{}, err
	}
	payload, err := envelope.Encode(envelope.NewBookEnvelope(book))
	if err != nil {
		return BookQRCode{}, err
	}
	png, err := qrcode.Render(payload, s.cfg.QR.ImageSize)
	if err != nil {
		return BookQRCode{}, fmt.Errorf("render qr: %w", err)
	}
	return BookQRCode{Payload: payload, PNG: png}, nil
}

// Verify checks a decoded payload: book codes are resolved against the
// catalogue, everything else goes through the envelope validator.
func (s *QRService) Verify(ctx context.Context, payload string) (ScanResult, error) {
	if envelope.Detect(payload) == envelope.VariantBook {
		env, err := envelope.ParseBook(payload)
		if err != nil {
			return ScanResult{}, err
		}
		book, err := s.books.GetByID(ctx, env.ID)
		if err != nil {
			return ScanResult{}, err
		}
		return ScanResult{Variant: envelope.VariantBook, Book: book}, nil
	}

	res, err := s.validator.Validate(ctx, payload)
	if err != nil {
		s.metrics.RecordValidation(outcome(err))
		return ScanResult{}, err
	}
	s.metrics.RecordValidation("ok")
	return ScanResult{Variant: envelope.VariantUser, User: res.User, Age: res.Age}, nil
}

// Decode reads a QR code from an uploaded image and verifies it.
func (s *QRService) Decode(ctx context.Context, input UploadInput) (ScanResult, error) {
	data, _, err := readImage(input)
	if err != nil {
		return ScanResult{}, err
	}
	payload, err := qrcode.DecodeBytes(data)
	if err != nil {
		return ScanResult{}, err
	}
	return s.Verify(ctx, payload)
}

// UpgradeLegacy gives every record without a standard envelope a fresh one.
func (s *QRService) UpgradeLegacy(ctx context.Context) (int, error) {
	users, err := s.users.List(ctx, repository.UserFilter{})
	if err != nil {
		return 0, err
	}
	upgraded := 0
	for _, u := range users {
		if s.validator.IsStandard(u.QRCodeData) {
			continue
		}
		if _, err := s.Issue(ctx, u); err != nil {
			s.log.Warn().Err(err).Str("user_id", u.ID).Msg("upgrade qr code failed")
			continue
		}
		upgraded++
	}
	if upgraded > 0 {
		s.log.Info().Int("count", upgraded).Msg("upgraded legacy qr codes")
	}
	return upgraded, nil
}

func (s *QRService) SetActive(ctx context.Context, userID string, active bool) error {
	return s.users.SetQRActive(ctx, userID, active)
}

func outcome(err error) string {
	if code := envelope.Code(err); code != "" {
		return code
	}
	return "error"
}
