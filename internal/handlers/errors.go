package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/borrowing"
	"wiselib/api/internal/envelope"
	"wiselib/api/internal/media/qrcode"
	"wiselib/api/internal/media/sniffer"
	"wiselib/api/internal/repository"
	"wiselib/api/internal/service"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{service.ErrUserInactive, http.StatusForbidden, "user_inactive"},
	{service.ErrTwoFactorRequired, http.StatusUnauthorized, "two_factor_required"},
	{service.ErrInvalidTwoFactor, http.StatusUnauthorized, "invalid_two_factor"},
	{service.ErrTwoFactorNotSetUp, http.StatusConflict, "two_factor_not_set_up"},
	{service.ErrInvalidResetCode, http.StatusBadRequest, "invalid_reset_code"},
	{service.ErrNotStudent, http.StatusForbidden, "not_student"},
	{service.ErrNotOwner, http.StatusForbidden, "forbidden"},
	{service.ErrAlreadyInside, http.StatusConflict, "already_inside"},
	{service.ErrNotInside, http.StatusConflict, "not_inside"},
	{service.ErrAIUnavailable, http.StatusServiceUnavailable, "ai_unavailable"},
	{service.ErrNoAvatar, http.StatusNotFound, "no_avatar"},
	{service.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, "file_too_large"},
	{sniffer.ErrUnsupportedType, http.StatusUnsupportedMediaType, "unsupported_type"},
	{envelope.ErrRecordNotFound, http.StatusNotFound, "qr_not_found"},
	{qrcode.ErrNoCode, http.StatusUnprocessableEntity, "no_qr_code"},
	{borrowing.ErrLimitReached, http.StatusConflict, "borrow_limit_reached"},
	{repository.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{repository.ErrUserIDTaken, http.StatusConflict, "user_id_taken"},
	{repository.ErrUserEmailUsed, http.StatusConflict, "email_taken"},
	{repository.ErrBookNotFound, http.StatusNotFound, "book_not_found"},
	{repository.ErrBookExists, http.StatusConflict, "book_exists"},
	{repository.ErrBookUnavailable, http.StatusConflict, "book_unavailable"},
	{repository.ErrBorrowNotFound, http.StatusNotFound, "borrow_not_found"},
	{repository.ErrReservationNotFound, http.StatusNotFound, "reservation_not_found"},
	{repository.ErrNotificationNotFound, http.StatusNotFound, "notification_not_found"},
	{repository.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
}

func classify(err error) (int, string) {
	// badge rejections carry their own codes
	var verr *envelope.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, envelope.Code(err)
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h HandlerSet) fail(c *gin.Context, err error) {
	status, code := classify(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError && code == "internal_error" {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": code, "message": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
