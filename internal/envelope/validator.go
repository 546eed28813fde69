package envelope

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
)

type Result struct {
	User     models.User
	Envelope UserEnvelope
	// Age is zero when the envelope has no timestamp.
	Age time.Duration
}

// Validator is the only place badge payloads are checked. HTTP login, the
// kiosk, image scans and the scanner loop all go through Validate.
type Validator struct {
	store    RecordStore
	settings Settings
	now      func() time.Time
	log      zerolog.Logger
}

func NewValidator(store RecordStore, settings Settings, log zerolog.Logger) *Validator {
	return &Validator{store: store, settings: settings, now: time.Now, log: log}
}

func (v *Validator) Settings() Settings {
	return v.settings
}

func (v *Validator) Validate(ctx context.Context, raw string) (Result, error) {
	wire, err := v.checkStructure(raw)
	if err != nil {
		return Result{}, err
	}

	userID, ok := wire.text("userId")
	if !ok {
		return Result{}, fail(ErrRecordNotFound)
	}
	user, err := v.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Result{}, fail(ErrRecordNotFound)
		}
		return Result{}, err
	}

	if !user.IsActive || !user.QRCodeActive {
		return Result{}, fail(ErrRecordInactive)
	}
	if !wire.is("systemTag", v.settings.TagFor(user.Type)) {
		return Result{}, fail(ErrTagMismatch)
	}
	if !wire.is("fullName", user.FullName) {
		return Result{}, fail(ErrIdentityMismatch)
	}
	if !wire.is("userType", string(user.Type)) {
		return Result{}, fail(ErrTypeMismatch)
	}
	if !wire.is("role", RoleFor(user.Type)) {
		return Result{}, fail(ErrRoleMismatch)
	}

	res := Result{User: user, Envelope: wire.toUser()}
	// stale envelopes are accepted, age is only reported
	if ts, ok := wire.timestamp(); ok {
		res.Age = v.now().Sub(time.UnixMilli(ts))
		v.log.Debug().
			Str("user_id", user.ID).
			Dur("envelope_age", res.Age).
			Msg("envelope accepted")
	}
	return res, nil
}

// IsStandard reports whether a stored payload passes the structural steps of
// Validate. Records failing it get a fresh envelope at start-up.
func (v *Validator) IsStandard(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	_, err := v.checkStructure(raw)
	return err == nil
}

func (v *Validator) checkStructure(raw string) (wireEnvelope, error) {
	wire, err := decodeWire(raw)
	if err != nil {
		return nil, err
	}
	if missing := wire.missing(); len(missing) > 0 {
		return nil, &ValidationError{Kind: ErrIncompleteEnvelope, Missing: missing}
	}
	if !wire.is("systemId", v.settings.SystemID) {
		return nil, fail(ErrWrongSystem)
	}
	if wire.token() == "" {
		return nil, fail(ErrMissingToken)
	}
	return wire, nil
}
