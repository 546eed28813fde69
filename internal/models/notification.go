package models

import "time"

type NotificationType string

const (
	NotificationBorrow      NotificationType = "borrow"
	NotificationReturn      NotificationType = "return"
	NotificationOverdue     NotificationType = "overdue"
	NotificationReservation NotificationType = "reservation"
	NotificationSystem      NotificationType = "system"
	NotificationSecurity    NotificationType = "security"
	NotificationLibrary     NotificationType = "library"
)

type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "unread"
	NotificationRead   NotificationStatus = "read"
)

// AdminReceiver addresses a notification to every administrator.
const AdminReceiver = "ADMIN"

type Notification struct {
	ID             string
	ReceiverID     string
	Title          string
	Message        string
	Type           NotificationType
	Status         NotificationStatus
	ActionRequired bool
	Meta           map[string]string
	CreatedAt      time.Time
}

type ActivityAction string

const (
	ActivityLogin          ActivityAction = "login"
	ActivityLogout         ActivityAction = "logout"
	ActivityPasswordChange ActivityAction = "password_change"
	ActivityPasswordReset  ActivityAction = "password_reset"
	ActivityEmailUpdate    ActivityAction = "email_update"
	ActivityProfileUpdate  ActivityAction = "profile_update"
	ActivityQRDownload     ActivityAction = "qr_download"
	ActivityQRRegenerate   ActivityAction = "qr_regenerate"
	ActivityTwoFAEnable    ActivityAction = "2fa_enable"
	ActivityTwoFADisable   ActivityAction = "2fa_disable"
	ActivityLibraryEntry   ActivityAction = "library_entry"
	ActivityLibraryExit    ActivityAction = "library_exit"
)

type Activity struct {
	ID        string
	UserID    string
	Action    ActivityAction
	Details   string
	CreatedAt time.Time
}
