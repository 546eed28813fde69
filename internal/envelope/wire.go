package envelope

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"wiselib/api/internal/models"
)

var (
	requiredFields = []string{"userId", "systemTag", "fullName", "systemId", "userType", "role"}
	tokenFields    = []string{"bearerToken", "sessionToken", "encryptedPasswordToken", "encryptedToken", "authCode", "realTimeAuthCode"}
)

// wireEnvelope is a decoded badge payload. Values keep their JSON form so a
// field of an unexpected type never fails the whole decode.
type wireEnvelope map[string]json.RawMessage

func decodeWire(raw string) (wireEnvelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &w); err != nil {
		return nil, &ValidationError{Kind: ErrMalformedEnvelope, Err: err}
	}
	if w == nil {
		return nil, fail(ErrMalformedEnvelope)
	}
	return w, nil
}

func (w wireEnvelope) value(name string) []byte {
	return bytes.TrimSpace(w[name])
}

// text returns the field when it holds a JSON string.
func (w wireEnvelope) text(name string) (string, bool) {
	v := w.value(name)
	if len(v) == 0 || v[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func (w wireEnvelope) is(name, want string) bool {
	s, ok := w.text(name)
	return ok && s == want
}

// present is true for non-empty strings, true, non-zero numbers, objects and
// arrays.
func (w wireEnvelope) present(name string) bool {
	v := w.value(name)
	if len(v) == 0 {
		return false
	}
	switch v[0] {
	case '"':
		s, _ := w.text(name)
		return s != ""
	case 'n', 'f':
		return false
	case 't', '{', '[':
		return true
	default:
		f, err := strconv.ParseFloat(string(v), 64)
		return err == nil && f != 0
	}
}

// loose renders a present field as text, empty otherwise.
func (w wireEnvelope) loose(name string) string {
	if !w.present(name) {
		return ""
	}
	if s, ok := w.text(name); ok {
		return s
	}
	return string(w.value(name))
}

func (w wireEnvelope) missing() []string {
	var missing []string
	for _, name := range requiredFields {
		if !w.present(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func (w wireEnvelope) token() string {
	for _, name := range tokenFields {
		if t := w.loose(name); t != "" {
			return t
		}
	}
	return ""
}

// timestamp reads epoch milliseconds from a number, a numeric string or an
// RFC 3339 string.
func (w wireEnvelope) timestamp() (int64, bool) {
	v := w.value("timestamp")
	if len(v) == 0 {
		return 0, false
	}
	s := string(v)
	if v[0] == '"' {
		s, _ = w.text("timestamp")
		s = strings.TrimSpace(s)
		if at, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return at.UnixMilli(), true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int64(f), true
}

func (w wireEnvelope) toUser() UserEnvelope {
	ts, _ := w.timestamp()
	userID, _ := w.text("userId")
	fullName, _ := w.text("fullName")
	userType, _ := w.text("userType")
	systemID, _ := w.text("systemId")
	systemTag, _ := w.text("systemTag")
	role, _ := w.text("role")
	return UserEnvelope{
		FullName:          fullName,
		UserID:            userID,
		UserType:          models.UserType(userType),
		SystemID:          systemID,
		SystemTag:         systemTag,
		Timestamp:         ts,
		BearerToken:       w.token(),
		Role:              role,
		TwoFactorSetupKey: w.loose("twoFactorSetupKey"),
		Email:             w.loose("email"),
		Department:        w.loose("department"),
		Course:            w.loose("course"),
		Year:              w.loose("year"),
		Section:           w.loose("section"),
	}
}
