package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/middleware"
	"wiselib/api/internal/models"
	"wiselib/api/internal/service"
)

type registerRequest struct {
	ID         string `json:"id" binding:"required"`
	Type       string `json:"userType" binding:"required"`
	FirstName  string `json:"firstName" binding:"required"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName" binding:"required"`
	Suffix     string `json:"suffix"`
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Course     string `json:"course"`
	YearLevel  string `json:"yearLevel"`
	Section    string `json:"section"`
	Department string `json:"department"`
	Position   string `json:"position"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	Gender     string `json:"gender"`
	Birthdate  string `json:"birthdate"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Auth.Register(c.Request.Context(), service.RegisterInput{
		ID:         req.ID,
		Type:       models.UserType(req.Type),
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Suffix:     req.Suffix,
		Email:      req.Email,
		Password:   req.Password,
		Course:     req.Course,
		YearLevel:  req.YearLevel,
		Section:    req.Section,
		Department: req.Department,
		Position:   req.Position,
		Phone:      req.Phone,
		Address:    req.Address,
		Gender:     req.Gender,
		Birthdate:  req.Birthdate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{"user": newUserResponse(res.User)}
	if res.QR != nil {
		body["qrCode"] = gin.H{
			"payload": res.QR.Payload,
			"image":   "data:image/png;base64," + base64.StdEncoding.EncodeToString(res.QR.PNG),
		}
	}
	c.JSON(http.StatusCreated, body)
}

type loginRequest struct {
	Login      string `json:"login" binding:"required"`
	Password   string `json:"password" binding:"required"`
	TOTPCode   string `json:"totpCode"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Auth.Login(c.Request.Context(), service.LoginInput{
		Login:      req.Login,
		Password:   req.Password,
		TOTPCode:   req.TOTPCode,
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse(res))
}

type qrLoginRequest struct {
	Payload    string `json:"qrData" binding:"required"`
	TOTPCode   string `json:"totpCode"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

func (h HandlerSet) QRLogin(c *gin.Context) {
	var req qrLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Auth.LoginWithQR(c.Request.Context(), service.QRLoginInput{
		Payload:    req.Payload,
		TOTPCode:   req.TOTPCode,
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse(res))
}

type refreshRequest struct {
	UserID       string `json:"userId" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
	DeviceID     string `json:"deviceId" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Auth.Refresh(c.Request.Context(), service.RefreshInput{
		UserID:       req.UserID,
		RefreshToken: req.RefreshToken,
		DeviceID:     req.DeviceID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse(res))
}

func (h HandlerSet) Logout(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.svc.Auth.Logout(c.Request.Context(), claims.UserID, claims.DeviceID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessions, err := h.svc.Auth.Sessions(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	claims, _ := middleware.Claims(c)

	items := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, sessionResponse{
			DeviceID:   s.DeviceID,
			DeviceName: s.DeviceName,
			IPAddress:  s.IPAddress,
			UserAgent:  s.UserAgent,
			Current:    s.ID == claims.SessionID,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			ExpiresAt:  s.ExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) RevokeSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.Auth.Logout(c.Request.Context(), user.ID, c.Param("deviceId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) LoginHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	records, err := h.svc.Auth.LoginHistory(c.Request.Context(), user.ID, queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]loginRecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, loginRecordResponse{
			Method:    string(r.Method),
			Success:   r.Success,
			IPAddress: r.IPAddress,
			UserAgent: r.UserAgent,
			Error:     r.ErrorMessage,
			CreatedAt: r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type changePasswordRequest struct {
	Current string `json:"currentPassword" binding:"required"`
	Next    string `json:"newPassword" binding:"required"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.svc.Auth.ChangePassword(c.Request.Context(), claims.UserID, claims.SessionID, req.Current, req.Next); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_changed"})
}

type resetRequest struct {
	Login  string `json:"login" binding:"required"`
	Method string `json:"method"`
}

func (h HandlerSet) RequestPasswordReset(c *gin.Context) {
	var req resetRequest
	if !bindJSON(c, &req) {
		return
	}
	method := service.ResetByEmail
	if req.Method == string(service.ResetByAdmin) {
		method = service.ResetByAdmin
	}
	if err := h.svc.Auth.RequestPasswordReset(c.Request.Context(), req.Login, method); err != nil {
		h.fail(c, err)
		return
	}
	// same answer whether or not the account exists
	c.JSON(http.StatusAccepted, gin.H{"status": "reset_requested"})
}

type resetCodeRequest struct {
	Login string `json:"login" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func (h HandlerSet) VerifyResetCode(c *gin.Context) {
	var req resetCodeRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Auth.VerifyResetCode(c.Request.Context(), req.Login, req.Code); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "code_valid"})
}

type resetPasswordRequest struct {
	Login    string `json:"login" binding:"required"`
	Code     string `json:"code" binding:"required"`
	Password string `json:"newPassword" binding:"required"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Auth.ResetPassword(c.Request.Context(), req.Login, req.Code, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_reset"})
}

func (h HandlerSet) SetupTwoFactor(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	setup, err := h.svc.Auth.SetupTwoFactor(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret": setup.Secret,
		"url":    setup.URL,
		"qrCode": "data:image/png;base64," + base64.StdEncoding.EncodeToString(setup.QRCode),
	})
}

type totpRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h HandlerSet) EnableTwoFactor(c *gin.Context) {
	h.toggleTwoFactor(c, true)
}

func (h HandlerSet) DisableTwoFactor(c *gin.Context) {
	h.toggleTwoFactor(c, false)
}

func (h HandlerSet) toggleTwoFactor(c *gin.Context, enable bool) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req totpRequest
	if !bindJSON(c, &req) {
		return
	}
	var err error
	if enable {
		err = h.svc.Auth.EnableTwoFactor(c.Request.Context(), user, req.Code)
	} else {
		err = h.svc.Auth.DisableTwoFactor(c.Request.Context(), user, req.Code)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"twoFactorEnabled": enable})
}
