package service

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiselib/api/internal/envelope"
	"wiselib/api/internal/models"
	"wiselib/api/internal/storage"
)

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeObjects) Get(_ context.Context, bucket, key string) (storage.Object, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return storage.Object{}, storage.ErrObjectNotFound
	}
	return storage.Object{Data: data, ContentType: "image/png"}, nil
}

func (f *fakeObjects) Remove(_ context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

type qrFixture struct {
	svc      *QRService
	users    *fakeUsers
	objects  *fakeObjects
	activity *fakeActivity
}

func newQRFixture(t *testing.T, users ...models.User) qrFixture {
	t.Helper()
	cfg := testConfig()
	cfg.QR.ImageSize = 256
	cfg.Storage.BucketQR = "qr"
	notifier, _, _ := newTestNotifier(t)

	f := qrFixture{
		users:    newFakeUsers(users...),
		objects:  &fakeObjects{objects: map[string][]byte{}},
		activity: &fakeActivity{},
	}
	settings := envelope.DefaultSettings()
	builder := envelope.NewBuilder(f.users, settings)
	validator := envelope.NewValidator(f.users, settings, zerolog.Nop())
	f.svc = NewQRService(f.users, newFakeBooks(SampleBook), builder, validator, f.objects,
		NewActivityService(f.activity, zerolog.Nop()), notifier, nil, cfg, zerolog.Nop())
	f.svc.now = clock
	return f
}

func TestGenerateAndVerify(t *testing.T) {
	student := testStudent()
	student.QRCodeActive = true
	f := newQRFixture(t, student)
	ctx := context.Background()

	code, err := f.svc.Generate(ctx, student.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, code.PNG)
	assert.Contains(t, f.objects.objects, "qr/users/KC-23-A-00001.png")

	stored, _ := f.users.GetByID(ctx, student.ID)
	assert.Equal(t, code.Payload, stored.QRCodeData)

	res, err := f.svc.Verify(ctx, code.Payload)
	require.NoError(t, err)
	assert.Equal(t, envelope.VariantUser, res.Variant)
	assert.Equal(t, student.ID, res.User.ID)

	require.NoError(t, f.svc.SetActive(ctx, student.ID, false))
	_, err = f.svc.Verify(ctx, code.Payload)
	assert.ErrorIs(t, err, envelope.ErrRecordInactive)

	_, err = f.svc.Verify(ctx, "not json")
	assert.ErrorIs(t, err, envelope.ErrMalformedEnvelope)
}

func TestGenerateRejectsUnknownUser(t *testing.T) {
	f := newQRFixture(t)
	_, err := f.svc.Generate(context.Background(), "KC-99-A-99999")
	assert.ErrorIs(t, err, envelope.ErrRecordNotFound)
}

func TestRegenerateRecordsActivity(t *testing.T) {
	student := testStudent()
	student.QRCodeActive = true
	f := newQRFixture(t, student)

	_, err := f.svc.Regenerate(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.ActivityAction{models.ActivityQRRegenerate}, f.activity.actions(student.ID))
}

func TestImageFallsBackToPayload(t *testing.T) {
	student := testStudent()
	student.QRCodeActive = true
	f := newQRFixture(t, student)
	ctx := context.Background()

	_, err := f.svc.Image(ctx, student.ID)
	assert.ErrorIs(t, err, envelope.ErrRecordNotFound)

	_, err = f.svc.Generate(ctx, student.ID)
	require.NoError(t, err)
	f.objects.objects = map[string][]byte{}

	png, err := f.svc.Download(ctx, student.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))
	assert.Equal(t, []models.ActivityAction{models.ActivityQRDownload}, f.activity.actions(student.ID))
}

func TestImageLink(t *testing.T) {
	f := newQRFixture(t)
	link := f.svc.ImageLink("KC-23-A-00001", time.Minute)
	require.True(t, strings.HasPrefix(link, "/api/qr/image/KC-23-A-00001?"))

	u, err := url.Parse(link)
	require.NoError(t, err)
	exp, sig := u.Query().Get("exp"), u.Query().Get("sig")
	assert.True(t, f.svc.VerifyImageLink("KC-23-A-00001", exp, sig))
	assert.False(t, f.svc.VerifyImageLink("KC-23-A-00002", exp, sig))

	f.svc.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }
	assert.False(t, f.svc.VerifyImageLink("KC-23-A-00001", exp, sig))
}

func TestBookCodeVerifies(t *testing.T) {
	f := newQRFixture(t)
	ctx := context.Background()

	code, err := f.svc.BookCode(ctx, SampleBook.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, code.PNG)

	res, err := f.svc.Verify(ctx, code.Payload)
	require.NoError(t, err)
	assert.Equal(t, envelope.VariantBook, res.Variant)
	assert.Equal(t, SampleBook.Title, res.Book.Title)
}

func TestUpgradeLegacy(t *testing.T) {
	legacy := testStudent()
	legacy.QRCodeData = "KC-23-A-00001"
	f := newQRFixture(t, legacy, testAdmin())
	ctx := context.Background()

	n, err := f.svc.UpgradeLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.UpgradeLegacy(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
