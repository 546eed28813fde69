package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wiselib/api/internal/config"
	"wiselib/api/internal/middleware"
	"wiselib/api/internal/models"
	"wiselib/api/internal/realtime"
	"wiselib/api/internal/service"
)

type Services struct {
	Auth          *service.AuthService
	Users         *service.UserService
	QR            *service.QRService
	Books         *service.BookService
	Borrows       *service.BorrowService
	Reservations  *service.ReservationService
	Notifications *service.NotificationService
	Activity      *service.ActivityService
	Library       *service.LibraryService
	Stats         *service.StatsService
	AI            *service.AIService
}

type TaskQueue interface {
	Enqueue(ctx context.Context, taskType string, payload any) (string, error)
}

// Probe reports whether a backing service answers.
type Probe func(ctx context.Context) error

type Deps struct {
	Users    middleware.UserLookup
	Sessions middleware.SessionLookup
	Nonces   middleware.NonceClaimer
	Hub      *realtime.Hub
	Tasks    TaskQueue
	// LoginLimiter throttles the credential endpoints when set.
	LoginLimiter *middleware.RateLimiter
	Database     Probe
	Cache        Probe
}

type HandlerSet struct {
	log  zerolog.Logger
	cfg  *config.AppConfig
	svc  Services
	deps Deps
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, svc Services, deps Deps) HandlerSet {
	return HandlerSet{log: log, cfg: cfg, svc: svc, deps: deps}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api")

	throttle := func(c *gin.Context) { c.Next() }
	if h.deps.LoginLimiter != nil {
		throttle = h.deps.LoginLimiter.Middleware()
	}

	auth := api.Group("/auth")
	auth.POST("/register", h.RegisterUser)
	auth.POST("/login", throttle, h.Login)
	auth.POST("/qr-login", throttle, h.QRLogin)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/password-reset", throttle, h.RequestPasswordReset)
	auth.POST("/password-reset/verify", throttle, h.VerifyResetCode)
	auth.POST("/password-reset/confirm", throttle, h.ResetPassword)

	// signed image links work without a session
	api.GET("/qr/image/:id", h.SignedQRImage)

	kiosk := api.Group("/kiosk", middleware.KioskSignature(h.cfg.Security.SignatureSecret, h.deps.Nonces, h.log))
	kiosk.POST("/verify", h.KioskVerify)
	kiosk.POST("/enter", h.KioskEnter)
	kiosk.POST("/exit", h.KioskExit)
	kiosk.POST("/scan", h.KioskScan)

	protected := api.Group("", middleware.Auth(h.cfg, h.deps.Users, h.deps.Sessions))
	{
		protected.GET("/ws", h.Realtime)

		me := protected.Group("/auth")
		me.GET("/me", h.Me)
		me.POST("/logout", h.Logout)
		me.GET("/sessions", h.ListSessions)
		me.DELETE("/sessions/:deviceId", h.RevokeSession)
		me.GET("/logins", h.LoginHistory)
		me.POST("/password", h.ChangePassword)
		me.POST("/2fa/setup", h.SetupTwoFactor)
		me.POST("/2fa/enable", h.EnableTwoFactor)
		me.POST("/2fa/disable", h.DisableTwoFactor)

		protected.PUT("/users/me", h.UpdateProfile)
		protected.POST("/users/me/avatar", h.UploadAvatar)
		protected.GET("/users/:id/avatar", h.Avatar)
		protected.GET("/activity", h.MyActivity)

		protected.GET("/qr/me", h.MyQRCode)
		protected.GET("/qr/me/download", h.DownloadQRCode)
		protected.POST("/qr/regenerate", h.RegenerateQRCode)
		protected.POST("/qr/verify", h.VerifyQRCode)
		protected.POST("/qr/decode", h.DecodeQRImage)

		protected.GET("/books", h.ListBooks)
		protected.GET("/books/:id", h.GetBook)
		protected.POST("/books/:id/reservations", h.Reserve)
		protected.DELETE("/reservations/:id", h.CancelReservation)

		protected.GET("/borrows", h.ListBorrows)
		protected.POST("/borrows", h.Borrow)

		protected.GET("/notifications", h.ListNotifications)
		protected.POST("/notifications/read-all", h.MarkAllNotificationsRead)
		protected.POST("/notifications/:id/read", h.MarkNotificationRead)
		protected.DELETE("/notifications/:id", h.DeleteNotification)

		protected.POST("/ai/chat", h.Chat)
	}

	admin := protected.Group("", middleware.RequireAdmin())
	{
		admin.GET("/users", h.AdminListUsers)
		admin.GET("/users/:id", h.AdminGetUser)
		admin.PATCH("/users/:id/active", h.AdminSetActive)
		admin.PATCH("/users/:id/qr-active", h.AdminSetQRActive)
		admin.DELETE("/users/:id", h.AdminDeleteUser)
		admin.GET("/users/:id/activity", h.AdminUserActivity)
		admin.POST("/users/:id/qr", h.AdminGenerateQRCode)

		admin.POST("/books", h.CreateBook)
		admin.PUT("/books/:id", h.UpdateBook)
		admin.DELETE("/books/:id", h.DeleteBook)
		admin.GET("/books/:id/qr", h.BookQRCode)
		admin.GET("/reservations", h.ListReservations)

		admin.POST("/borrows/:id/return", h.ReturnBook)

		admin.GET("/library/inside", h.LibraryInside)
		admin.GET("/library/sessions", h.LibrarySessions)

		admin.GET("/stats", h.Stats)
		admin.POST("/jobs/:task", h.RunJob)
		admin.POST("/notifications", h.SendNotification)
		admin.GET("/ai/logs", h.AILogs)
	}
}

func currentUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return user, ok
}

func isAdmin(user models.User) bool {
	return user.Type == models.UserTypeAdmin
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return false
	}
	return true
}
