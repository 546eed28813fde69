package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
)

type fakeStore map[string]models.User

func (f fakeStore) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := f[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func sampleStore() fakeStore {
	return fakeStore{
		"KC-23-A-00243": {
			ID:           "KC-23-A-00243",
			FullName:     "Juan Miguel Dela Cruz",
			Type:         models.UserTypeStudent,
			Course:       "BSCS",
			IsActive:     true,
			QRCodeActive: true,
		},
		"KCL-00001": {
			ID:           "KCL-00001",
			FullName:     "John Mark Santos",
			Type:         models.UserTypeAdmin,
			Department:   "IT",
			IsActive:     true,
			QRCodeActive: true,
		},
	}
}

func newPair(store fakeStore) (*Builder, *Validator) {
	settings := DefaultSettings()
	return NewBuilder(store, settings), NewValidator(store, settings, zerolog.Nop())
}

func encodeMap(t *testing.T, m map[string]any) string {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	return string(data)
}

func validStudent() map[string]any {
	return map[string]any{
		"userId":      "KC-23-A-00243",
		"fullName":    "Juan Miguel Dela Cruz",
		"systemTag":   "ORG-TAG-STUDENT",
		"userType":    "student",
		"role":        "Student",
		"systemId":    "LIBRARY",
		"timestamp":   time.Now().UnixMilli(),
		"bearerToken": "dG9rZW4=",
	}
}

func TestValidateMissingFields(t *testing.T) {
	_, v := newPair(sampleStore())
	required := []string{"userId", "systemTag", "fullName", "systemId", "userType", "role"}

	for _, field := range required {
		t.Run(field, func(t *testing.T) {
			m := validStudent()
			delete(m, field)
			_, err := v.Validate(context.Background(), encodeMap(t, m))
			require.ErrorIs(t, err, ErrIncompleteEnvelope)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, []string{field}, verr.Missing)
		})
	}

	t.Run("several", func(t *testing.T) {
		m := validStudent()
		delete(m, "role")
		m["userId"] = ""
		_, err := v.Validate(context.Background(), encodeMap(t, m))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"userId", "role"}, verr.Missing)
	})
}

func TestValidateMalformed(t *testing.T) {
	_, v := newPair(sampleStore())
	for _, raw := range []string{"", "not json", "[1,2]", "null", `"KC-23-A-00243"`, `{"userId":`} {
		_, err := v.Validate(context.Background(), raw)
		assert.ErrorIs(t, err, ErrMalformedEnvelope, raw)
	}
}

func TestValidateToleratesFieldTypes(t *testing.T) {
	_, v := newPair(sampleStore())

	tests := []struct {
		name  string
		field string
		value any
	}{
		{"numeric year", "year", 3},
		{"bool two factor key", "twoFactorSetupKey", false},
		{"object department", "department", map[string]any{"code": "IT"}},
		{"null email", "email", nil},
		{"iso timestamp", "timestamp", "2024-03-01T08:30:00Z"},
		{"numeric string timestamp", "timestamp", "1700000000000"},
		{"garbage timestamp", "timestamp", "yesterday"},
		{"bool timestamp", "timestamp", true},
		{"float timestamp", "timestamp", 1.7e12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validStudent()
			m[tt.field] = tt.value
			res, err := v.Validate(context.Background(), encodeMap(t, m))
			require.NoError(t, err)
			assert.Equal(t, "KC-23-A-00243", res.User.ID)
		})
	}
}

func TestValidateTimestampForms(t *testing.T) {
	_, v := newPair(sampleStore())
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	tests := []struct {
		value any
		age   time.Duration
	}{
		{now.Add(-time.Hour).UnixMilli(), time.Hour},
		{"2024-03-01T08:30:00Z", 2 * time.Hour},
		{strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10), time.Minute},
		{"not a time", 0},
		{false, 0},
	}
	for _, tt := range tests {
		m := validStudent()
		m["timestamp"] = tt.value
		res, err := v.Validate(context.Background(), encodeMap(t, m))
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.age, res.Age, tt.value)
	}
}

func TestValidateNonStringIdentityFields(t *testing.T) {
	_, v := newPair(sampleStore())

	tests := []struct {
		field string
		value any
		want  error
	}{
		{"userId", 12345, ErrRecordNotFound},
		{"systemId", 1, ErrWrongSystem},
		{"bearerToken", 0, ErrMissingToken},
		{"systemTag", true, ErrTagMismatch},
		{"fullName", []string{"Juan"}, ErrIdentityMismatch},
		{"userType", 1, ErrTypeMismatch},
		{"role", map[string]any{"name": "Student"}, ErrRoleMismatch},
		{"role", false, ErrIncompleteEnvelope},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			m := validStudent()
			m[tt.field] = tt.value
			_, err := v.Validate(context.Background(), encodeMap(t, m))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateKeepsLooseOptionalFields(t *testing.T) {
	_, v := newPair(sampleStore())

	m := validStudent()
	m["year"] = 3
	m["course"] = "BSCS"
	m["twoFactorSetupKey"] = false
	res, err := v.Validate(context.Background(), encodeMap(t, m))
	require.NoError(t, err)
	assert.Equal(t, "3", res.Envelope.Year)
	assert.Equal(t, "BSCS", res.Envelope.Course)
	assert.Empty(t, res.Envelope.TwoFactorSetupKey)
	assert.Equal(t, "dG9rZW4=", res.Envelope.BearerToken)
}

func TestValidateWrongSystemWinsOverOtherFields(t *testing.T) {
	_, v := newPair(sampleStore())

	m := validStudent()
	m["systemId"] = "OTHER"
	m["userId"] = "KC-99-D-99999"
	delete(m, "bearerToken")

	_, err := v.Validate(context.Background(), encodeMap(t, m))
	assert.ErrorIs(t, err, ErrWrongSystem)
}

func TestValidateTokenFields(t *testing.T) {
	_, v := newPair(sampleStore())

	m := validStudent()
	delete(m, "bearerToken")
	_, err := v.Validate(context.Background(), encodeMap(t, m))
	require.ErrorIs(t, err, ErrMissingToken)

	for _, legacy := range []string{"sessionToken", "encryptedPasswordToken", "encryptedToken", "authCode", "realTimeAuthCode"} {
		m := validStudent()
		delete(m, "bearerToken")
		m[legacy] = "abc"
		_, err := v.Validate(context.Background(), encodeMap(t, m))
		assert.NoError(t, err, legacy)
	}
}

func TestValidateUnknownRecord(t *testing.T) {
	_, v := newPair(sampleStore())
	m := validStudent()
	m["userId"] = "KC-24-B-00001"
	_, err := v.Validate(context.Background(), encodeMap(t, m))
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Equal(t, "record_not_found", Code(err))
}

func TestValidateInactive(t *testing.T) {
	store := sampleStore()
	u := store["KC-23-A-00243"]
	u.QRCodeActive = false
	store[u.ID] = u
	_, v := newPair(store)

	_, err := v.Validate(context.Background(), encodeMap(t, validStudent()))
	assert.ErrorIs(t, err, ErrRecordInactive)

	u.QRCodeActive = true
	u.IsActive = false
	store[u.ID] = u
	_, err = v.Validate(context.Background(), encodeMap(t, validStudent()))
	assert.ErrorIs(t, err, ErrRecordInactive)
}

func TestValidateTagMismatch(t *testing.T) {
	_, v := newPair(sampleStore())

	student := validStudent()
	student["systemTag"] = "ORG-TAG-ADMIN"
	_, err := v.Validate(context.Background(), encodeMap(t, student))
	assert.ErrorIs(t, err, ErrTagMismatch)

	admin := validStudent()
	admin["userId"] = "KCL-00001"
	admin["fullName"] = "John Mark Santos"
	admin["userType"] = "admin"
	admin["role"] = "Administrator"
	admin["systemTag"] = "ORG-TAG-STUDENT"
	_, err = v.Validate(context.Background(), encodeMap(t, admin))
	assert.ErrorIs(t, err, ErrTagMismatch)
}

func TestValidateTypeAndRoleMismatch(t *testing.T) {
	_, v := newPair(sampleStore())

	m := validStudent()
	m["userType"] = "admin"
	_, err := v.Validate(context.Background(), encodeMap(t, m))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	m = validStudent()
	m["role"] = "Administrator"
	_, err = v.Validate(context.Background(), encodeMap(t, m))
	assert.ErrorIs(t, err, ErrRoleMismatch)
}

func TestRoundTrip(t *testing.T) {
	store := sampleStore()
	b, v := newPair(store)

	for id := range store {
		env, err := b.Build(context.Background(), id)
		require.NoError(t, err)
		raw, err := Encode(env)
		require.NoError(t, err)

		res, err := v.Validate(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, id, res.User.ID)
	}
}

func TestRegenerationKeepsPriorEnvelopeValid(t *testing.T) {
	b, v := newPair(sampleStore())
	clock := time.UnixMilli(1_700_000_000_000)
	b.now = func() time.Time { return clock }

	first, err := b.Build(context.Background(), "KCL-00001")
	require.NoError(t, err)
	clock = clock.Add(3 * time.Second)
	second, err := b.Build(context.Background(), "KCL-00001")
	require.NoError(t, err)

	assert.NotEqual(t, first.BearerToken, second.BearerToken)
	assert.NotEqual(t, first.Timestamp, second.Timestamp)

	for _, env := range []UserEnvelope{first, second} {
		raw, err := Encode(env)
		require.NoError(t, err)
		_, err = v.Validate(context.Background(), raw)
		assert.NoError(t, err)
	}
}

func TestStaleEnvelopeAccepted(t *testing.T) {
	_, v := newPair(sampleStore())
	v.now = func() time.Time { return time.UnixMilli(1_800_000_000_000) }

	m := validStudent()
	m["timestamp"] = int64(1_600_000_000_000)
	res, err := v.Validate(context.Background(), encodeMap(t, m))
	require.NoError(t, err)
	assert.Greater(t, res.Age, 24*time.Hour)
}

func TestBuildErrors(t *testing.T) {
	store := sampleStore()
	u := store["KCL-00001"]
	u.IsActive = false
	store[u.ID] = u
	b, _ := newPair(store)

	_, err := b.Build(context.Background(), "KCL-99999")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = b.Build(context.Background(), "KCL-00001")
	assert.ErrorIs(t, err, ErrRecordInactive)
}

func TestJuanExample(t *testing.T) {
	store := sampleStore()
	settings := DefaultSettings()
	settings.StudentTag = "STUDENT-TAG"
	v := NewValidator(store, settings, zerolog.Nop())

	m := map[string]any{
		"userId":      "KC-23-A-00243",
		"fullName":    "Juan Miguel Dela Cruz",
		"systemTag":   "STUDENT-TAG",
		"userType":    "student",
		"role":        "Student",
		"systemId":    "LIBRARY",
		"bearerToken": BearerToken("KC-23-A-00243", 1),
	}
	res, err := v.Validate(context.Background(), encodeMap(t, m))
	require.NoError(t, err)
	assert.Equal(t, "KC-23-A-00243", res.User.ID)
	assert.Zero(t, res.Age)

	m["fullName"] = "Juan Dela Cruz"
	_, err = v.Validate(context.Background(), encodeMap(t, m))
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.Equal(t, "identity_mismatch", Code(err))
}

func TestIsStandard(t *testing.T) {
	b, v := newPair(sampleStore())
	env, err := b.Build(context.Background(), "KCL-00001")
	require.NoError(t, err)
	raw, err := Encode(env)
	require.NoError(t, err)

	assert.True(t, v.IsStandard(raw))
	assert.False(t, v.IsStandard(""))
	assert.False(t, v.IsStandard(`{"userId":"KCL-00001","sessionToken":"x"}`))
}

func TestDetectAndParseBook(t *testing.T) {
	raw, err := Encode(NewBookEnvelope(models.Book{ID: "CS-AI-001", Title: "Introduction to Artificial Intelligence"}))
	require.NoError(t, err)

	assert.Equal(t, VariantBook, Detect(raw))
	assert.Equal(t, VariantUser, Detect(encodeMap(t, validStudent())))
	assert.Equal(t, VariantUnknown, Detect("hello"))

	book, err := ParseBook(raw)
	require.NoError(t, err)
	assert.Equal(t, "CS-AI-001", book.ID)

	_, err = ParseBook(`{"t":"BOOK"}`)
	assert.ErrorIs(t, err, ErrIncompleteEnvelope)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "S0NMLTAwMDAxLTE=", BearerToken("KCL-00001", 1))
}
