package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiselib/api/internal/cache"
	"wiselib/api/internal/config"
	applog "wiselib/api/internal/log"
	"wiselib/api/internal/models"
	"wiselib/api/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUsers map[string]models.User

func (s stubUsers) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := s[id]
	if !ok {
		return models.User{}, errors.New("not found")
	}
	return u, nil
}

type stubSessions map[string]models.Session

func (s stubSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	sess, ok := s[id]
	if !ok {
		return models.Session{}, errors.New("not found")
	}
	return sess, nil
}

func (s stubSessions) Touch(context.Context, string, string, string) error { return nil }

func ok(c *gin.Context) { c.Status(http.StatusNoContent) }

func perform(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	w := perform(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
	assert.Equal(t, w.Header().Get(requestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc")
	w = perform(r, req)
	assert.Equal(t, "abc", w.Body.String())

	r.GET("/ctx", func(c *gin.Context) { c.String(http.StatusOK, applog.RequestID(c.Request.Context())) })
	req = httptest.NewRequest(http.MethodGet, "/ctx", nil)
	req.Header.Set(requestIDHeader, "from-kiosk")
	w = perform(r, req)
	assert.Equal(t, "from-kiosk", w.Body.String())
}

func TestLoggerRecordsActor(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID(), Logger(zerolog.New(&buf)))
	r.GET("/api/books", func(c *gin.Context) {
		c.Set(CurrentUserKey, models.User{ID: "KC-23-A-00001", Type: models.UserTypeStudent})
		c.Status(http.StatusOK)
	})
	r.POST("/api/kiosk/enter", func(c *gin.Context) {
		c.Set(KioskDeviceKey, "kiosk-1")
		c.Status(http.StatusOK)
	})

	perform(r, httptest.NewRequest(http.MethodGet, "/api/books", nil))
	out := buf.String()
	assert.Contains(t, out, `"user_id":"KC-23-A-00001"`)
	assert.Contains(t, out, `"user_type":"student"`)
	assert.Contains(t, out, `"route":"/api/books"`)

	buf.Reset()
	perform(r, httptest.NewRequest(http.MethodPost, "/api/kiosk/enter", nil))
	assert.Contains(t, buf.String(), `"kiosk":"kiosk-1"`)
	assert.NotContains(t, buf.String(), "user_id")
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/", ok)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := perform(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), security.HeaderSignature)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = perform(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.New(&buf)))
	r.GET("/", func(c *gin.Context) {
		c.Set(CurrentUserKey, models.User{ID: "KCL-00001", Type: models.UserTypeAdmin})
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-7")
	w := perform(r, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_server_error")
	assert.Contains(t, w.Body.String(), `"request_id":"req-7"`)
	assert.Contains(t, buf.String(), `"user_id":"KCL-00001"`)
	assert.Contains(t, buf.String(), "panic recovered")
}

func authRouter(t *testing.T) (*gin.Engine, *config.AppConfig) {
	t.Helper()
	cfg := &config.AppConfig{Security: config.SecurityConfig{JWTAccessSecret: "secret"}}
	users := stubUsers{
		"KC-23-A-00001": {ID: "KC-23-A-00001", Type: models.UserTypeStudent, IsActive: true},
		"KCL-00001":     {ID: "KCL-00001", Type: models.UserTypeAdmin, IsActive: true},
		"KC-23-A-00009": {ID: "KC-23-A-00009", Type: models.UserTypeStudent},
	}
	sessions := stubSessions{
		"s1": {ID: "s1", UserID: "KC-23-A-00001", DeviceID: "d1"},
		"s2": {ID: "s2", UserID: "KCL-00001", DeviceID: "d2"},
		"s3": {ID: "s3", UserID: "KC-23-A-00009", DeviceID: "d3"},
	}

	r := gin.New()
	api := r.Group("/", Auth(cfg, users, sessions))
	api.GET("/me", func(c *gin.Context) {
		user, _ := CurrentUser(c)
		claims, _ := Claims(c)
		c.String(http.StatusOK, user.ID+"/"+claims.DeviceID)
	})
	api.GET("/admin", RequireAdmin(), ok)
	return r, cfg
}

func token(t *testing.T, cfg *config.AppConfig, userID, sessionID, deviceID string) string {
	t.Helper()
	tok, err := security.GenerateAccessToken(cfg.Security.JWTAccessSecret, security.AccessTokenInput{
		UserID: userID, SessionID: sessionID, DeviceID: deviceID, TTL: time.Minute,
	})
	require.NoError(t, err)
	return tok
}

func authed(path, tok string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func TestAuth(t *testing.T) {
	r, cfg := authRouter(t)

	w := perform(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing_token")

	w = perform(r, authed("/me", "garbage"))
	assert.Contains(t, w.Body.String(), "invalid_token")

	w = perform(r, authed("/me", token(t, cfg, "KC-23-A-00001", "s1", "d1")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "KC-23-A-00001/d1", w.Body.String())

	w = perform(r, authed("/me", token(t, cfg, "KC-23-A-00001", "s1", "other")))
	assert.Contains(t, w.Body.String(), "session_mismatch")

	w = perform(r, authed("/me", token(t, cfg, "KC-23-A-00001", "gone", "d1")))
	assert.Contains(t, w.Body.String(), "session_not_found")

	w = perform(r, authed("/me", token(t, cfg, "KC-23-A-00009", "s3", "d3")))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "user_inactive")
}

func TestRequireAdmin(t *testing.T) {
	r, cfg := authRouter(t)

	w := perform(r, authed("/admin", token(t, cfg, "KC-23-A-00001", "s1", "d1")))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = perform(r, authed("/admin", token(t, cfg, "KCL-00001", "s2", "d2")))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestKioskSignature(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	nonces := cache.NewStore(client, "test")

	r := gin.New()
	r.POST("/api/kiosk/scan", KioskSignature("kiosk-secret", nonces, zerolog.Nop()), func(c *gin.Context) {
		body, _ := c.GetRawData()
		c.String(http.StatusOK, c.GetString(KioskDeviceKey)+":"+string(body))
	})

	body := []byte(`{"payload":"x"}`)
	signed := func(secret string, at time.Time) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/kiosk/scan", bytes.NewReader(body))
		security.SignRequest(req, secret, "kiosk-1", body, at)
		return req
	}

	w := perform(r, httptest.NewRequest(http.MethodPost, "/api/kiosk/scan", bytes.NewReader(body)))
	assert.Contains(t, w.Body.String(), "signature_required")

	req := signed("kiosk-secret", time.Now())
	w = perform(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `kiosk-1:{"payload":"x"}`, w.Body.String())

	replay := httptest.NewRequest(http.MethodPost, "/api/kiosk/scan", bytes.NewReader(body))
	replay.Header = req.Header.Clone()
	w = perform(r, replay)
	assert.Contains(t, w.Body.String(), "replay_detected")

	w = perform(r, signed("wrong", time.Now()))
	assert.Contains(t, w.Body.String(), "invalid_signature")

	w = perform(r, signed("kiosk-secret", time.Now().Add(-10*time.Minute)))
	assert.Contains(t, w.Body.String(), "request_expired")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 2})
	defer rl.Stop()

	r := gin.New()
	r.POST("/login", rl.Middleware(), ok)

	for i := 0; i < 2; i++ {
		w := perform(r, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	w := perform(r, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w = perform(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 2, rl.Count())

	rl.cleanup(time.Now().Add(time.Hour))
	assert.Zero(t, rl.Count())
}
